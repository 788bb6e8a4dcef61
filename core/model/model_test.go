package model

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
)

func TestNewRecord_RejectsReservedKeys(t *testing.T) {
	definition := Definition{Name: "todo"}
	for _, key := range []string{KeyID, KeyCreatedAt, KeyUpdatedAt, ""} {
		_, err := definition.NewRecord(map[string]interface{}{key: "x"})
		if core.KindOf(err) != core.ErrorValidation {
			t.Fatalf("key %q accepted", key)
		}
	}
}

func TestNewRecord_FieldList(t *testing.T) {
	definition := Definition{Name: "todo", Fields: []string{"title", "done"}}

	if _, err := definition.NewRecord(map[string]interface{}{"title": "a", "done": false}); err != nil {
		t.Fatal(err)
	}
	_, err := definition.NewRecord(map[string]interface{}{"color": "red"})
	if core.KindOf(err) != core.ErrorValidation {
		t.Fatalf("unknown key accepted: %v", err)
	}

	// no field list keeps the class schema-flexible
	flexible := Definition{Name: "anything"}
	if _, err := flexible.NewRecord(map[string]interface{}{"color": "red"}); err != nil {
		t.Fatal(err)
	}
}

func TestRecord_ApplyDeletesNilKeys(t *testing.T) {
	definition := Definition{Name: "todo"}
	record, err := definition.NewRecord(map[string]interface{}{"title": "a", "done": false})
	if err != nil {
		t.Fatal(err)
	}
	if err := record.Apply(definition, map[string]interface{}{"done": nil, "priority": 3}); err != nil {
		t.Fatal(err)
	}
	keys := record.Keys()
	if _, ok := keys["done"]; ok {
		t.Fatal("nil value did not delete the key")
	}
	if keys["title"] != "a" || keys["priority"] != 3 {
		t.Fatalf("unexpected keys: %v", keys)
	}

	if err := record.Apply(definition, map[string]interface{}{KeyID: "x"}); core.KindOf(err) != core.ErrorValidation {
		t.Fatal("reserved key accepted on update")
	}
}

func TestRecord_Payload(t *testing.T) {
	id := uuid.New()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	record := Hydrate("todo", id, created, created.Add(time.Hour), map[string]interface{}{"title": "a"})

	payload := record.Payload()
	if payload[KeyID] != id.String() {
		t.Fatal("id missing from payload")
	}
	if payload[KeyCreatedAt] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected created_at: %v", payload[KeyCreatedAt])
	}
	if payload["title"] != "a" {
		t.Fatal("key missing from payload")
	}

	// the payload is a copy, mutating it must not touch the record
	payload["title"] = "b"
	if record.String("title") != "a" {
		t.Fatal("payload aliases the record")
	}
}

func TestSelectPayload(t *testing.T) {
	payload := map[string]interface{}{
		KeyID:        "some-id",
		KeyCreatedAt: "t0",
		KeyUpdatedAt: "t1",
		"title":      "a",
		"done":       true,
	}

	reduced := SelectPayload(payload, []string{"title", "absent"})
	if reduced[KeyID] != "some-id" || reduced[KeyCreatedAt] != "t0" || reduced[KeyUpdatedAt] != "t1" {
		t.Fatal("metadata must survive selection")
	}
	if reduced["title"] != "a" {
		t.Fatal("selected key missing")
	}
	if _, ok := reduced["done"]; ok {
		t.Fatal("unselected key kept")
	}
	if _, ok := reduced["absent"]; ok {
		t.Fatal("absent field materialized")
	}

	if len(SelectPayload(payload, nil)) != len(payload) {
		t.Fatal("empty selection must keep everything")
	}
}
