package core

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestOperations_JSON_Unmarshalling(t *testing.T) {

	type Object struct {
		Operations []Operation `json:"operations"`
	}
	var object Object
	jsonRead := `{"operations":["create","read","update","list","login","logout","me"]}`
	err := json.Unmarshal([]byte(jsonRead), &object)
	if err != nil {
		t.Fatal(err)
	}

	jsonRead = `{"operations":["invalid"]}`
	err = json.Unmarshal([]byte(jsonRead), &object)
	if err == nil {
		t.Fatal("invalid operation accepted")
	}
}

func TestOperation_IsMutation(t *testing.T) {
	mutations := map[Operation]bool{
		OperationCreate: true,
		OperationUpdate: true,
		OperationDelete: true,
		OperationRead:   false,
		OperationList:   false,
		OperationLogin:  false,
		OperationLogout: false,
		OperationMe:     false,
	}
	for op, want := range mutations {
		if op.IsMutation() != want {
			t.Fatalf("IsMutation(%s) != %v", op, want)
		}
	}
}

func TestErrorKinds(t *testing.T) {
	err := ValidationError("field %s is wrong", "name")
	if KindOf(err) != ErrorValidation {
		t.Fatal("wrong kind")
	}
	if err.Error() != "field name is wrong" {
		t.Fatal("wrong message:", err.Error())
	}

	cause := errors.New("connection refused")
	dbErr := DatabaseError(cause)
	if KindOf(dbErr) != ErrorDatabase {
		t.Fatal("wrong kind")
	}
	// the outward message hides the cause, but unwrapping keeps it
	if dbErr.Error() != "invalid query request" {
		t.Fatal("cause leaked into message:", dbErr.Error())
	}
	if !errors.Is(dbErr, cause) {
		t.Fatal("cause lost")
	}

	// two credential errors are indistinguishable
	if InvalidCredentialsError().Error() != InvalidCredentialsError().Error() {
		t.Fatal("credential errors differ")
	}
	if !errors.Is(InvalidCredentialsError(), InvalidCredentialsError()) {
		t.Fatal("errors.Is does not match same kind")
	}

	if KindOf(errors.New("something else")) != "" {
		t.Fatal("foreign error has a kind")
	}
}

func TestPointerFromObject(t *testing.T) {
	p, ok := PointerFromObject(map[string]interface{}{
		"class": "todo",
		"id":    "b08f43d0-2f3f-4d01-9d7a-c0c16d8b5b64",
	})
	if !ok {
		t.Fatal("valid pointer object rejected")
	}
	if p.ClassName != "todo" {
		t.Fatal("wrong class")
	}

	if _, ok := PointerFromObject(map[string]interface{}{"class": "todo"}); ok {
		t.Fatal("pointer without id accepted")
	}
	if _, ok := PointerFromObject("not an object"); ok {
		t.Fatal("non-object accepted")
	}

	if !(Pointer{}).IsZero() {
		t.Fatal("empty pointer is not zero")
	}
	if p.IsZero() {
		t.Fatal("valid pointer is zero")
	}
}
