/*Package query turns untrusted request parameters into a safe,
structured query descriptor for a named class.

The package performs pure transforms only, it never touches storage.
Subqueries are resolved through a caller-supplied resolver, see
Assembler.
*/
package query

import (
	"github.com/classbase/classbase/core"
)

// Op is a filter operator from the fixed allow-list.
type Op string

// all supported operators
const (
	OpEqual              Op = "eq"
	OpNotEqual           Op = "ne"
	OpLessThan           Op = "lt"
	OpLessThanOrEqual    Op = "lte"
	OpGreaterThan        Op = "gt"
	OpGreaterThanOrEqual Op = "gte"
	OpIn                 Op = "in"
	OpNotIn              Op = "nin"
	OpExists             Op = "exists"
	OpMatchesQuery       Op = "matchesQuery"
)

// operatorOrder is the canonical evaluation order. Raw constraints
// arrive as JSON objects without a defined key order, so parsing emits
// the operators of one field in this fixed order to keep descriptors
// deterministic.
var operatorOrder = []Op{
	OpEqual, OpNotEqual,
	OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual,
	OpIn, OpNotIn, OpExists, OpMatchesQuery,
}

// Condition is one validated (operator, operand) pair.
type Condition struct {
	Op    Op
	Value interface{}
}

// ConstraintMap maps a field name to its ordered conditions. Field
// names are opaque here; whether a field exists is the business of the
// class accessor.
type ConstraintMap map[string][]Condition

// Subquery is the validated operand of the matchesQuery operator: a
// complete query against another class.
type Subquery struct {
	Class string
	Query Descriptor
}

// ParseConstraints validates a raw where mapping. A literal value is
// sugar for an equality constraint; a JSON object value is read as an
// operator mapping and every operator must be on the allow-list.
func ParseConstraints(raw map[string]interface{}) (ConstraintMap, error) {
	return parseConstraints(raw, 0)
}

func parseConstraints(raw map[string]interface{}, depth int) (ConstraintMap, error) {
	if depth > maxSubqueryDepth {
		return nil, core.ValidationError("subquery nesting exceeds %d levels", maxSubqueryDepth)
	}
	constraints := make(ConstraintMap, len(raw))
	for field, value := range raw {
		if field == "" {
			return nil, core.ValidationError("empty field name in where clause")
		}
		object, ok := value.(map[string]interface{})
		if !ok {
			// literal value, sugar for equality
			constraints[field] = []Condition{{Op: OpEqual, Value: value}}
			continue
		}
		for key := range object {
			if !knownOperator(Op(key)) {
				return nil, core.ValidationError("field %s: unknown operator %s", field, key)
			}
		}
		var conditions []Condition
		for _, op := range operatorOrder {
			operand, ok := object[string(op)]
			if !ok {
				continue
			}
			condition, err := parseCondition(field, op, operand, depth)
			if err != nil {
				return nil, err
			}
			conditions = append(conditions, condition)
		}
		if len(conditions) == 0 {
			return nil, core.ValidationError("field %s: empty constraint object", field)
		}
		constraints[field] = conditions
	}
	return constraints, nil
}

func knownOperator(op Op) bool {
	for _, known := range operatorOrder {
		if op == known {
			return true
		}
	}
	return false
}

func parseCondition(field string, op Op, operand interface{}, depth int) (Condition, error) {
	switch op {
	case OpEqual, OpNotEqual:
		// any operand goes

	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		switch operand.(type) {
		case float64, int, int64, string:
		default:
			return Condition{}, core.ValidationError(
				"field %s: operator %s requires a number or string operand", field, op)
		}

	case OpIn, OpNotIn:
		if _, ok := operand.([]interface{}); !ok {
			return Condition{}, core.ValidationError(
				"field %s: operator %s requires an array operand", field, op)
		}

	case OpExists:
		if _, ok := operand.(bool); !ok {
			return Condition{}, core.ValidationError(
				"field %s: operator %s requires a boolean operand", field, op)
		}

	case OpMatchesQuery:
		object, ok := operand.(map[string]interface{})
		if !ok {
			return Condition{}, core.ValidationError(
				"field %s: operator %s requires a query object operand", field, op)
		}
		subquery, err := parseSubquery(field, object, depth+1)
		if err != nil {
			return Condition{}, err
		}
		return Condition{Op: op, Value: subquery}, nil
	}
	return Condition{Op: op, Value: operand}, nil
}

// parseSubquery validates the full nested query shape, including the
// mandatory class name. Nested wheres recurse with a growing depth.
func parseSubquery(field string, object map[string]interface{}, depth int) (*Subquery, error) {
	class, _ := object["class"].(string)
	if class == "" {
		return nil, core.ValidationError("field %s: matchesQuery requires a class name", field)
	}
	params, err := paramsFromObject(object)
	if err != nil {
		return nil, core.ValidationError("field %s: %s", field, err.Error())
	}
	descriptor, err := assembleShape(params, depth)
	if err != nil {
		return nil, err
	}
	return &Subquery{Class: class, Query: descriptor}, nil
}
