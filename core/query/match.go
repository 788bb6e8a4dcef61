package query

import (
	"reflect"

	"github.com/classbase/classbase/core"
)

// MatchesConstraints evaluates a validated constraint map against a
// decoded record object. All conditions of all fields must hold.
//
// The map must not contain unresolved matchesQuery conditions; run it
// through an Assembler first.
func MatchesConstraints(object map[string]interface{}, constraints ConstraintMap) (bool, error) {
	for field, conditions := range constraints {
		value, present := object[field]
		for _, condition := range conditions {
			ok, err := matchesCondition(value, present, condition)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func matchesCondition(value interface{}, present bool, condition Condition) (bool, error) {
	switch condition.Op {
	case OpEqual:
		return present && EqualValues(value, condition.Value), nil
	case OpNotEqual:
		return !present || !EqualValues(value, condition.Value), nil
	case OpLessThan, OpLessThanOrEqual, OpGreaterThan, OpGreaterThanOrEqual:
		if !present {
			return false, nil
		}
		order, comparable := CompareValues(value, condition.Value)
		if !comparable {
			return false, nil
		}
		switch condition.Op {
		case OpLessThan:
			return order < 0, nil
		case OpLessThanOrEqual:
			return order <= 0, nil
		case OpGreaterThan:
			return order > 0, nil
		default:
			return order >= 0, nil
		}
	case OpIn, OpNotIn:
		candidates := condition.Value.([]interface{})
		found := false
		if present {
			for _, candidate := range candidates {
				if EqualValues(value, candidate) {
					found = true
					break
				}
			}
		}
		if condition.Op == OpIn {
			return found, nil
		}
		return !found, nil
	case OpExists:
		want := condition.Value.(bool)
		return present == want, nil
	case OpMatchesQuery:
		return false, core.ValidationError("unresolved subquery condition")
	}
	return false, core.ValidationError("unknown operator %s", condition.Op)
}

// EqualValues compares two decoded JSON values. Numbers compare by
// value regardless of their Go type, pointer objects compare by class
// and id.
func EqualValues(a, b interface{}) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if pa, ok := toPointer(a); ok {
		pb, ok := toPointer(b)
		return ok && pa == pb
	}
	return reflect.DeepEqual(a, b)
}

// CompareValues orders two values. Only numbers and strings are
// mutually comparable; the second return value is false otherwise.
func CompareValues(a, b interface{}) (int, bool) {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}

func toFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toPointer(value interface{}) (core.Pointer, bool) {
	if p, ok := value.(core.Pointer); ok {
		return p, true
	}
	return core.PointerFromObject(value)
}
