package query

import (
	"testing"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
)

func mustMatch(t *testing.T, object map[string]interface{}, raw map[string]interface{}, want bool) {
	t.Helper()
	constraints, err := ParseConstraints(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := MatchesConstraints(object, constraints)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("match = %v, want %v for %v against %v", got, want, object, raw)
	}
}

func TestMatchesConstraints(t *testing.T) {
	object := map[string]interface{}{
		"title": "groceries",
		"done":  false,
		"score": float64(7),
	}

	mustMatch(t, object, map[string]interface{}{"title": "groceries"}, true)
	mustMatch(t, object, map[string]interface{}{"title": "other"}, false)
	mustMatch(t, object, map[string]interface{}{"done": map[string]interface{}{"ne": true}}, true)
	mustMatch(t, object, map[string]interface{}{"score": map[string]interface{}{"gt": float64(5), "lte": float64(7)}}, true)
	mustMatch(t, object, map[string]interface{}{"score": map[string]interface{}{"gt": float64(7)}}, false)
	mustMatch(t, object, map[string]interface{}{"score": map[string]interface{}{"in": []interface{}{float64(1), float64(7)}}}, true)
	mustMatch(t, object, map[string]interface{}{"score": map[string]interface{}{"nin": []interface{}{float64(1), float64(7)}}}, false)
	mustMatch(t, object, map[string]interface{}{"missing": map[string]interface{}{"exists": false}}, true)
	mustMatch(t, object, map[string]interface{}{"title": map[string]interface{}{"exists": true}}, true)
	// absent fields never satisfy comparisons
	mustMatch(t, object, map[string]interface{}{"missing": map[string]interface{}{"gt": float64(0)}}, false)
	// but they do satisfy not-equal
	mustMatch(t, object, map[string]interface{}{"missing": map[string]interface{}{"ne": "x"}}, true)
}

func TestEqualValues_NumberNormalization(t *testing.T) {
	// decoded JSON numbers are float64, stored values may be ints
	if !EqualValues(7, float64(7)) {
		t.Fatal("int and float64 of same value differ")
	}
	if EqualValues(float64(7), "7") {
		t.Fatal("number equals string")
	}
}

func TestEqualValues_Pointers(t *testing.T) {
	id := uuid.New()
	typed := core.Pointer{ClassName: "user", ID: id}
	decoded := map[string]interface{}{"class": "user", "id": id.String()}

	if !EqualValues(typed, decoded) {
		t.Fatal("typed and decoded pointer differ")
	}
	other := map[string]interface{}{"class": "user", "id": uuid.New().String()}
	if EqualValues(typed, other) {
		t.Fatal("different pointers equal")
	}
}

func TestMatchesConstraints_UnresolvedSubquery(t *testing.T) {
	constraints := ConstraintMap{
		"owner": {{Op: OpMatchesQuery, Value: &Subquery{Class: "user"}}},
	}
	_, err := MatchesConstraints(map[string]interface{}{"owner": "x"}, constraints)
	if core.KindOf(err) != core.ErrorValidation {
		t.Fatal("unresolved subquery evaluated")
	}
}
