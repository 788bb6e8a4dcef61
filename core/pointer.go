package core

import (
	"github.com/google/uuid"
)

// Pointer is a lightweight reference to a record of another class. It
// carries just enough to identify the record without loading it.
type Pointer struct {
	ClassName string    `json:"class"`
	ID        uuid.UUID `json:"id"`
}

// IsZero returns true for the empty pointer.
func (p Pointer) IsZero() bool {
	return p.ClassName == "" && p.ID == uuid.Nil
}

// PointerFromObject converts a decoded JSON object of the shape
// {"class": ..., "id": ...} back into a Pointer. The second return
// value is false if the object does not have that shape.
func PointerFromObject(value interface{}) (Pointer, bool) {
	object, ok := value.(map[string]interface{})
	if !ok {
		return Pointer{}, false
	}
	class, ok := object["class"].(string)
	if !ok || class == "" {
		return Pointer{}, false
	}
	idString, ok := object["id"].(string)
	if !ok {
		return Pointer{}, false
	}
	id, err := uuid.Parse(idString)
	if err != nil {
		return Pointer{}, false
	}
	return Pointer{ClassName: class, ID: id}, true
}
