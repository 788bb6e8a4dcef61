package query

import (
	"context"
	"errors"
	"testing"

	"github.com/classbase/classbase/core"
)

func intPtr(n int) *int { return &n }

func TestParseConstraints_LiteralSugar(t *testing.T) {
	constraints, err := ParseConstraints(map[string]interface{}{
		"title": "hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	conditions := constraints["title"]
	if len(conditions) != 1 || conditions[0].Op != OpEqual || conditions[0].Value != "hello" {
		t.Fatalf("literal sugar broken: %+v", conditions)
	}
}

func TestParseConstraints_OperatorOrder(t *testing.T) {
	// JSON objects carry no key order, the parser must emit the fixed
	// canonical order regardless
	constraints, err := ParseConstraints(map[string]interface{}{
		"score": map[string]interface{}{
			"lt": float64(10),
			"gt": float64(2),
			"ne": float64(5),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	conditions := constraints["score"]
	want := []Op{OpNotEqual, OpLessThan, OpGreaterThan}
	if len(conditions) != len(want) {
		t.Fatalf("wrong number of conditions: %d", len(conditions))
	}
	for i, op := range want {
		if conditions[i].Op != op {
			t.Fatalf("condition %d: got %s want %s", i, conditions[i].Op, op)
		}
	}
}

func TestParseConstraints_Rejections(t *testing.T) {
	cases := map[string]map[string]interface{}{
		"unknown operator":   {"a": map[string]interface{}{"like": "x%"}},
		"empty object":       {"a": map[string]interface{}{}},
		"in without array":   {"a": map[string]interface{}{"in": "x"}},
		"exists non-boolean": {"a": map[string]interface{}{"exists": "yes"}},
		"lt with object":     {"a": map[string]interface{}{"lt": map[string]interface{}{}}},
		"empty field name":   {"": "x"},
		"subquery w/o class": {"a": map[string]interface{}{"matchesQuery": map[string]interface{}{
			"where": map[string]interface{}{"b": "c"},
		}}},
	}
	for name, raw := range cases {
		if _, err := ParseConstraints(raw); core.KindOf(err) != core.ErrorValidation {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestAssemble_Defaults(t *testing.T) {
	a := Assembler{}
	q, err := a.Assemble(context.Background(), Params{})
	if err != nil {
		t.Fatal(err)
	}
	if q.Skip != 0 || q.Limit != DefaultLimit {
		t.Fatalf("wrong pagination defaults: skip=%d limit=%d", q.Skip, q.Limit)
	}
	if len(q.Sort) != 1 || q.Sort[0].Field != FieldCreatedAt || q.Sort[0].Descending {
		t.Fatalf("wrong sort default: %+v", q.Sort)
	}
}

func TestAssemble_LimitBounds(t *testing.T) {
	a := Assembler{}
	for _, limit := range []int{0, -1, MaxLimit + 1} {
		_, err := a.Assemble(context.Background(), Params{Limit: intPtr(limit)})
		if core.KindOf(err) != core.ErrorValidation {
			t.Fatalf("limit %d accepted", limit)
		}
	}
	q, err := a.Assemble(context.Background(), Params{Limit: intPtr(MaxLimit), Skip: intPtr(5)})
	if err != nil {
		t.Fatal(err)
	}
	if q.Limit != MaxLimit || q.Skip != 5 {
		t.Fatalf("explicit pagination lost: %+v", q)
	}
}

func TestAssemble_DoesNotMutateInput(t *testing.T) {
	where := map[string]interface{}{"done": true}
	p := Params{Where: where, Sort: []interface{}{"-title"}}
	a := Assembler{}
	if _, err := a.Assemble(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if len(where) != 1 || where["done"] != true {
		t.Fatal("input where was mutated")
	}
}

func TestAssemble_SortParsing(t *testing.T) {
	a := Assembler{}
	q, err := a.Assemble(context.Background(), Params{
		Sort: []interface{}{"-score", map[string]interface{}{"title": "asc"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(q.Sort) != 2 {
		t.Fatalf("wrong sort length: %d", len(q.Sort))
	}
	if q.Sort[0].Field != "score" || !q.Sort[0].Descending {
		t.Fatalf("wrong first key: %+v", q.Sort[0])
	}
	if q.Sort[1].Field != "title" || q.Sort[1].Descending {
		t.Fatalf("wrong second key: %+v", q.Sort[1])
	}

	_, err = a.Assemble(context.Background(), Params{
		Sort: []interface{}{map[string]interface{}{"title": "sideways"}},
	})
	if core.KindOf(err) != core.ErrorValidation {
		t.Fatal("invalid sort direction accepted")
	}
}

func TestAssemble_ResolvesSubqueriesDepthFirst(t *testing.T) {
	var resolvedClasses []string
	resolver := func(ctx context.Context, class string, q Descriptor) ([]interface{}, error) {
		resolvedClasses = append(resolvedClasses, class)
		return []interface{}{class + "-result"}, nil
	}

	// two-level nesting: the post subquery references a user subquery
	p := Params{Where: map[string]interface{}{
		"comment": map[string]interface{}{
			"matchesQuery": map[string]interface{}{
				"class": "post",
				"where": map[string]interface{}{
					"author": map[string]interface{}{
						"matchesQuery": map[string]interface{}{
							"class": "user",
							"where": map[string]interface{}{"status": "active"},
						},
					},
				},
			},
		},
	}}

	a := Assembler{Resolve: resolver}
	q, err := a.Assemble(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}

	if len(resolvedClasses) != 2 || resolvedClasses[0] != "user" || resolvedClasses[1] != "post" {
		t.Fatalf("not depth-first: %v", resolvedClasses)
	}

	conditions := q.Where["comment"]
	if len(conditions) != 1 || conditions[0].Op != OpIn {
		t.Fatalf("subquery not replaced with in: %+v", conditions)
	}
	values := conditions[0].Value.([]interface{})
	if len(values) != 1 || values[0] != "post-result" {
		t.Fatalf("wrong resolved values: %v", values)
	}
}

func TestAssemble_SubqueryWithoutResolver(t *testing.T) {
	a := Assembler{}
	_, err := a.Assemble(context.Background(), Params{Where: map[string]interface{}{
		"owner": map[string]interface{}{
			"matchesQuery": map[string]interface{}{"class": "user"},
		},
	}})
	if core.KindOf(err) != core.ErrorValidation {
		t.Fatal("subquery without resolver accepted")
	}
}

func TestAssemble_ResolverErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	a := Assembler{Resolve: func(ctx context.Context, class string, q Descriptor) ([]interface{}, error) {
		return nil, core.DatabaseError(boom)
	}}
	_, err := a.Assemble(context.Background(), Params{Where: map[string]interface{}{
		"owner": map[string]interface{}{
			"matchesQuery": map[string]interface{}{"class": "user"},
		},
	}})
	if core.KindOf(err) != core.ErrorDatabase {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestParseConstraints_DepthCap(t *testing.T) {
	// build nesting beyond the cap
	inner := map[string]interface{}{"leaf": "x"}
	for i := 0; i < 15; i++ {
		inner = map[string]interface{}{
			"owner": map[string]interface{}{
				"matchesQuery": map[string]interface{}{
					"class": "user",
					"where": inner,
				},
			},
		}
	}
	if _, err := ParseConstraints(inner); core.KindOf(err) != core.ErrorValidation {
		t.Fatal("excessive nesting accepted")
	}
}
