package query

import (
	"fmt"
	"strings"

	"github.com/classbase/classbase/core"
)

const (
	// DefaultLimit applies when a query does not specify a limit.
	DefaultLimit = 100
	// MaxLimit is the hard ceiling for a single query result.
	MaxLimit = 1000
	// maxSubqueryDepth bounds matchesQuery nesting. The operator has no
	// natural depth limit, the cap only protects against pathological
	// requests.
	maxSubqueryDepth = 12

	// FieldCreatedAt is the implicit creation-order field used for the
	// default sort.
	FieldCreatedAt = "created_at"
)

// SortKey is one step of a sort order.
type SortKey struct {
	Field      string
	Descending bool
}

// Descriptor is the canonical, validated shape of a read query. An
// empty Select means all fields.
type Descriptor struct {
	Select  []string
	Include []string
	Where   ConstraintMap
	Sort    []SortKey
	Skip    int
	Limit   int
}

// Params carries the untrusted, already-decoded query parameters of
// one request. Skip and Limit are pointers so that absence can be told
// apart from zero.
type Params struct {
	Select  []string
	Include []string
	Where   map[string]interface{}
	Sort    []interface{}
	Skip    *int
	Limit   *int
}

// paramsFromObject reads Params from a decoded JSON object, as found
// in the operand of matchesQuery.
func paramsFromObject(object map[string]interface{}) (Params, error) {
	var p Params
	for key, value := range object {
		switch key {
		case "class":
			// consumed by the caller
		case "select":
			names, err := stringList(value)
			if err != nil {
				return p, fmt.Errorf("select: %s", err.Error())
			}
			p.Select = names
		case "include":
			names, err := stringList(value)
			if err != nil {
				return p, fmt.Errorf("include: %s", err.Error())
			}
			p.Include = names
		case "where":
			where, ok := value.(map[string]interface{})
			if !ok {
				return p, fmt.Errorf("where must be an object")
			}
			p.Where = where
		case "sort":
			list, ok := value.([]interface{})
			if !ok {
				return p, fmt.Errorf("sort must be an array")
			}
			p.Sort = list
		case "skip":
			n, ok := integer(value)
			if !ok {
				return p, fmt.Errorf("skip must be an integer")
			}
			p.Skip = &n
		case "limit":
			n, ok := integer(value)
			if !ok {
				return p, fmt.Errorf("limit must be an integer")
			}
			p.Limit = &n
		default:
			return p, fmt.Errorf("unknown query key '%s'", key)
		}
	}
	return p, nil
}

func stringList(value interface{}) ([]string, error) {
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("must be an array of field names")
	}
	names := make([]string, 0, len(list))
	for _, element := range list {
		name, ok := element.(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("must be an array of field names")
		}
		names = append(names, name)
	}
	return names, nil
}

func integer(value interface{}) (int, bool) {
	switch n := value.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

// parseSort accepts field names, optionally prefixed with '-' for
// descending order, and single-key {field: "asc"|"desc"} objects.
func parseSort(raw []interface{}) ([]SortKey, error) {
	var keys []SortKey
	for _, element := range raw {
		switch v := element.(type) {
		case string:
			if v == "" || v == "-" {
				return nil, core.ValidationError("sort: empty field name")
			}
			if strings.HasPrefix(v, "-") {
				keys = append(keys, SortKey{Field: v[1:], Descending: true})
			} else {
				keys = append(keys, SortKey{Field: v})
			}
		case map[string]interface{}:
			if len(v) != 1 {
				return nil, core.ValidationError("sort: object must have exactly one field")
			}
			for field, direction := range v {
				d, ok := direction.(string)
				if !ok || (d != "asc" && d != "desc") {
					return nil, core.ValidationError("sort: direction for %s must be asc or desc", field)
				}
				keys = append(keys, SortKey{Field: field, Descending: d == "desc"})
			}
		default:
			return nil, core.ValidationError("sort: element must be a field name or {field: direction}")
		}
	}
	return keys, nil
}

// assembleShape validates all parts of the query and applies the
// defaults for sort, skip and limit. Subqueries are validated but not
// yet resolved.
func assembleShape(p Params, depth int) (Descriptor, error) {
	where, err := parseConstraints(p.Where, depth)
	if err != nil {
		return Descriptor{}, err
	}

	sort, err := parseSort(p.Sort)
	if err != nil {
		return Descriptor{}, err
	}
	if len(sort) == 0 {
		sort = []SortKey{{Field: FieldCreatedAt}}
	}

	skip := 0
	if p.Skip != nil {
		if *p.Skip < 0 {
			return Descriptor{}, core.ValidationError("skip must not be negative")
		}
		skip = *p.Skip
	}

	limit := DefaultLimit
	if p.Limit != nil {
		if *p.Limit < 1 || *p.Limit > MaxLimit {
			return Descriptor{}, core.ValidationError("limit must be between 1 and %d", MaxLimit)
		}
		limit = *p.Limit
	}

	return Descriptor{
		Select:  append([]string(nil), p.Select...),
		Include: append([]string(nil), p.Include...),
		Where:   where,
		Sort:    sort,
		Skip:    skip,
		Limit:   limit,
	}, nil
}
