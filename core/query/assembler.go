package query

import (
	"context"

	"github.com/classbase/classbase/core"
)

// SubqueryResolver executes a nested query against another class and
// returns the candidate values for the enclosing field, typically the
// pointers of the matching records. The resolver is supplied by the
// enclosing controller because resolution needs access to other
// classes.
type SubqueryResolver func(ctx context.Context, class string, q Descriptor) ([]interface{}, error)

// Assembler combines selection fields, includes, filter constraints,
// sort order and pagination into one canonical descriptor. It never
// mutates its inputs and performs no storage access of its own;
// subqueries run through the Resolve callback.
type Assembler struct {
	Resolve SubqueryResolver
}

// Assemble validates p, applies the defaults and resolves all
// subqueries depth-first. Each matchesQuery condition is replaced with
// an in condition over the resolver's result, so the storage layer
// only ever sees plain operators.
func (a Assembler) Assemble(ctx context.Context, p Params) (Descriptor, error) {
	descriptor, err := assembleShape(p, 0)
	if err != nil {
		return Descriptor{}, err
	}
	where, err := a.resolveConstraints(ctx, descriptor.Where)
	if err != nil {
		return Descriptor{}, err
	}
	descriptor.Where = where
	return descriptor, nil
}

func (a Assembler) resolveConstraints(ctx context.Context, constraints ConstraintMap) (ConstraintMap, error) {
	resolved := make(ConstraintMap, len(constraints))
	for field, conditions := range constraints {
		list := make([]Condition, 0, len(conditions))
		for _, condition := range conditions {
			if condition.Op != OpMatchesQuery {
				list = append(list, condition)
				continue
			}
			subquery := condition.Value.(*Subquery)
			if a.Resolve == nil {
				return nil, core.ValidationError("field %s: matchesQuery is not supported here", field)
			}
			// depth-first: the inner query's own subqueries first
			innerWhere, err := a.resolveConstraints(ctx, subquery.Query.Where)
			if err != nil {
				return nil, err
			}
			inner := subquery.Query
			inner.Where = innerWhere
			values, err := a.Resolve(ctx, subquery.Class, inner)
			if err != nil {
				return nil, err
			}
			if values == nil {
				values = []interface{}{}
			}
			list = append(list, Condition{Op: OpIn, Value: values})
		}
		resolved[field] = list
	}
	return resolved, nil
}
