/*Package store implements the class accessor contract and the session
store on postgres.

Each class gets one table with a jsonb properties column, so classes
stay schema-flexible without schema migrations. Validated query
descriptors translate to parameterized SQL over that column.
*/
package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/csql"
	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/query"
)

// field names must be safe to splice into a jsonb path expression;
// values always travel as query parameters
var fieldNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// Class is a postgres backed class accessor.
type Class struct {
	db         *csql.DB
	definition model.Definition
	table      string
}

// NewClass realizes a class accessor for the given definition. It
// creates the table if it does not exist yet; a failure to do so is an
// invalid static configuration and panics.
func NewClass(db *csql.DB, definition model.Definition) *Class {
	table := fmt.Sprintf("%s.\"class/%s\"", db.Schema, definition.Name)
	createQuery := "CREATE table IF NOT EXISTS " + table + `
(id uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY,
created_at timestamp NOT NULL DEFAULT now(),
updated_at timestamp NOT NULL DEFAULT now(),
properties jsonb NOT NULL DEFAULT '{}'::jsonb
);`
	createQuery += fmt.Sprintf("CREATE index IF NOT EXISTS %s ON %s(created_at);",
		"sort_index_"+definition.Name+"_created_at", table)

	if _, err := db.Exec(createQuery); err != nil {
		logger.Default().WithError(err).Errorf("cannot create table for class %s", definition.Name)
		panic("invalid configuration")
	}
	return &Class{db: db, definition: definition, table: table}
}

// Name returns the class name.
func (c *Class) Name() string { return c.definition.Name }

// Definition returns the class definition.
func (c *Class) Definition() model.Definition { return c.definition }

// ToPointer returns a pointer to a record of this class.
func (c *Class) ToPointer(id uuid.UUID) core.Pointer {
	return core.Pointer{ClassName: c.definition.Name, ID: id}
}

// Find returns all records matching the descriptor.
func (c *Class) Find(ctx context.Context, q query.Descriptor) ([]*model.Record, error) {
	where, parameters, err := buildWhere(q.Where)
	if err != nil {
		return nil, err
	}
	orderBy, err := buildOrderBy(q.Sort)
	if err != nil {
		return nil, err
	}

	sqlQuery := "SELECT id, created_at, updated_at, properties FROM " + c.table + where + orderBy
	limit := q.Limit
	if limit < 1 || limit > query.MaxLimit {
		limit = query.DefaultLimit
	}
	sqlQuery += " LIMIT $" + strconv.Itoa(len(parameters)+1) + " OFFSET $" + strconv.Itoa(len(parameters)+2) + ";"
	parameters = append(parameters, limit, q.Skip)

	rows, err := c.db.QueryContext(ctx, sqlQuery, parameters...)
	if err != nil {
		return nil, core.DatabaseError(err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		record, err := scanRecord(rows, c.definition.Name)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, core.DatabaseError(err)
	}
	return records, nil
}

// First returns the first match, or nil when there is none.
func (c *Class) First(ctx context.Context, q query.Descriptor) (*model.Record, error) {
	q.Skip = 0
	q.Limit = 1
	records, err := c.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// GetByID returns one record by id, or nil when absent.
func (c *Class) GetByID(ctx context.Context, id uuid.UUID) (*model.Record, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT id, created_at, updated_at, properties FROM "+c.table+" WHERE id = $1;", id)
	record, err := scanRecord(row, c.definition.Name)
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Save persists the record. A record without id gets a fresh one; a
// record with id replaces the stored version, keeping its creation
// time.
func (c *Class) Save(ctx context.Context, r *model.Record) error {
	id := r.ID()
	if id == uuid.Nil {
		id = uuid.New()
	}
	properties, err := json.Marshal(r.Keys())
	if err != nil {
		return core.DatabaseError(err)
	}
	var createdAt, updatedAt time.Time
	err = c.db.QueryRowContext(ctx,
		"INSERT INTO "+c.table+" (id, properties) VALUES($1, $2) "+
			"ON CONFLICT (id) DO UPDATE SET properties = $2, updated_at = now() "+
			"RETURNING created_at, updated_at;",
		id, properties).Scan(&createdAt, &updatedAt)
	if err != nil {
		return core.DatabaseError(err)
	}
	r.Bind(id, createdAt, updatedAt)
	return nil
}

// Destroy removes a record. Destroying an absent record is a no-op.
func (c *Class) Destroy(ctx context.Context, id uuid.UUID) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM "+c.table+" WHERE id = $1;", id); err != nil {
		return core.DatabaseError(err)
	}
	return nil
}

type scanner interface {
	Scan(values ...interface{}) error
}

func scanRecord(row scanner, class string) (*model.Record, error) {
	var (
		id                   uuid.UUID
		createdAt, updatedAt time.Time
		properties           json.RawMessage
	)
	if err := row.Scan(&id, &createdAt, &updatedAt, &properties); err != nil {
		if err == csql.ErrNoRows {
			return nil, err
		}
		return nil, core.DatabaseError(err)
	}
	var keys map[string]interface{}
	if err := json.Unmarshal(properties, &keys); err != nil {
		return nil, core.DatabaseError(err)
	}
	return model.Hydrate(class, id, createdAt, updatedAt, keys), nil
}

// buildWhere translates a resolved constraint map into a parameterized
// WHERE clause. Fields iterate in sorted order so the generated SQL is
// deterministic.
func buildWhere(constraints query.ConstraintMap) (string, []interface{}, error) {
	if len(constraints) == 0 {
		return " ", nil, nil
	}
	fields := make([]string, 0, len(constraints))
	for field := range constraints {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var clauses []string
	var parameters []interface{}
	for _, field := range fields {
		if !fieldNamePattern.MatchString(field) {
			return "", nil, core.ValidationError("invalid field name '%s'", field)
		}
		for _, condition := range constraints[field] {
			clause, parameter, err := buildCondition(field, condition, len(parameters)+1)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, clause)
			if parameter != nil {
				parameters = append(parameters, parameter)
			}
		}
	}
	return " WHERE " + strings.Join(clauses, " AND ") + " ", parameters, nil
}

func buildCondition(field string, condition query.Condition, next int) (string, interface{}, error) {
	if isMetaField(field) {
		return buildMetaCondition(field, condition, next)
	}

	path := "properties->>'" + field + "'"
	parameter := "$" + strconv.Itoa(next)

	switch condition.Op {
	case query.OpEqual, query.OpNotEqual:
		// typed equality via jsonb containment
		object, err := json.Marshal(map[string]interface{}{field: condition.Value})
		if err != nil {
			return "", nil, core.ValidationError("field %s: operand is not serializable", field)
		}
		if condition.Op == query.OpEqual {
			return "(properties @> " + parameter + "::jsonb)", string(object), nil
		}
		return "(NOT properties @> " + parameter + "::jsonb)", string(object), nil

	case query.OpLessThan, query.OpLessThanOrEqual, query.OpGreaterThan, query.OpGreaterThanOrEqual:
		comparator := sqlComparator(condition.Op)
		if _, isString := condition.Value.(string); isString {
			return "(" + path + " " + comparator + " " + parameter + ")", condition.Value, nil
		}
		return "((" + path + ")::numeric " + comparator + " " + parameter + ")", condition.Value, nil

	case query.OpIn, query.OpNotIn:
		candidates, err := json.Marshal(condition.Value)
		if err != nil {
			return "", nil, core.ValidationError("field %s: operand is not serializable", field)
		}
		contains := parameter + "::jsonb @> (properties->'" + field + "')"
		if condition.Op == query.OpIn {
			return "(properties ? '" + field + "' AND " + contains + ")", string(candidates), nil
		}
		return "(NOT properties ? '" + field + "' OR NOT " + contains + ")", string(candidates), nil

	case query.OpExists:
		if condition.Value.(bool) {
			return "(properties ? '" + field + "')", nil, nil
		}
		return "(NOT properties ? '" + field + "')", nil, nil

	case query.OpMatchesQuery:
		return "", nil, core.ValidationError("field %s: unresolved subquery condition", field)
	}
	return "", nil, core.ValidationError("field %s: unknown operator %s", field, condition.Op)
}

// buildMetaCondition handles constraints on id, created_at and
// updated_at, which live in real columns.
func buildMetaCondition(field string, condition query.Condition, next int) (string, interface{}, error) {
	parameter := "$" + strconv.Itoa(next)
	switch condition.Op {
	case query.OpEqual, query.OpNotEqual,
		query.OpLessThan, query.OpLessThanOrEqual, query.OpGreaterThan, query.OpGreaterThanOrEqual:
		comparator := sqlComparator(condition.Op)
		value := condition.Value
		if field == model.KeyID {
			id, ok := idValue(value)
			if !ok {
				return "", nil, core.ValidationError("field id: operand must be an id or pointer")
			}
			value = id
		}
		return "(" + field + " " + comparator + " " + parameter + ")", value, nil

	case query.OpIn, query.OpNotIn:
		candidates := condition.Value.([]interface{})
		values := make([]string, 0, len(candidates))
		for _, candidate := range candidates {
			if field == model.KeyID {
				id, ok := idValue(candidate)
				if !ok {
					return "", nil, core.ValidationError("field id: operand must be an id or pointer")
				}
				values = append(values, id)
				continue
			}
			s, ok := candidate.(string)
			if !ok {
				return "", nil, core.ValidationError("field %s: operand must be a list of strings", field)
			}
			values = append(values, s)
		}
		clause := "(" + field + " = ANY(" + parameter + "))"
		if condition.Op == query.OpNotIn {
			clause = "(NOT " + field + " = ANY(" + parameter + "))"
		}
		return clause, pq.Array(values), nil

	case query.OpExists:
		if condition.Value.(bool) {
			return "(TRUE)", nil, nil
		}
		return "(FALSE)", nil, nil
	}
	return "", nil, core.ValidationError("field %s: operator %s not supported", field, condition.Op)
}

// idValue accepts a plain id string or a pointer representation, as
// produced by subquery resolution.
func idValue(value interface{}) (string, bool) {
	if s, ok := value.(string); ok {
		if _, err := uuid.Parse(s); err == nil {
			return s, true
		}
		return "", false
	}
	if p, ok := value.(core.Pointer); ok {
		return p.ID.String(), true
	}
	if p, ok := core.PointerFromObject(value); ok {
		return p.ID.String(), true
	}
	return "", false
}

func sqlComparator(op query.Op) string {
	switch op {
	case query.OpEqual:
		return "="
	case query.OpNotEqual:
		return "<>"
	case query.OpLessThan:
		return "<"
	case query.OpLessThanOrEqual:
		return "<="
	case query.OpGreaterThan:
		return ">"
	case query.OpGreaterThanOrEqual:
		return ">="
	}
	return "="
}

func isMetaField(field string) bool {
	return field == model.KeyID || field == model.KeyCreatedAt || field == model.KeyUpdatedAt
}

func buildOrderBy(keys []query.SortKey) (string, error) {
	if len(keys) == 0 {
		keys = []query.SortKey{{Field: query.FieldCreatedAt}}
	}
	var columns []string
	for _, key := range keys {
		if !fieldNamePattern.MatchString(key.Field) {
			return "", core.ValidationError("invalid sort field '%s'", key.Field)
		}
		column := "properties->>'" + key.Field + "'"
		if isMetaField(key.Field) {
			column = key.Field
		}
		if key.Descending {
			column += " DESC"
		} else {
			column += " ASC"
		}
		columns = append(columns, column)
	}
	// stable tie break so pagination does not shuffle
	columns = append(columns, "id ASC")
	return " ORDER BY " + strings.Join(columns, ", "), nil
}
