/*Package model defines the class accessor contract of the backend:
a fixed capability set over a named class of records, a registry which
resolves class names at startup, and the validated record type all
accessors exchange.
*/
package model

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/query"
)

// reserved keys, managed by the stores and never writable by clients
const (
	KeyID        = "id"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// Class is the capability set every class accessor implements. The
// read operations return nil without error when nothing matches; the
// caller decides whether that is fatal.
type Class interface {
	Name() string
	Definition() Definition
	Find(ctx context.Context, q query.Descriptor) ([]*Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	First(ctx context.Context, q query.Descriptor) (*Record, error)
	Save(ctx context.Context, r *Record) error
	Destroy(ctx context.Context, id uuid.UUID) error
	ToPointer(id uuid.UUID) core.Pointer
}

// Definition is the static configuration of one class.
type Definition struct {
	// Name of the class
	Name string `json:"class"`
	// Fields restricts the allowed keys. An empty list keeps the class
	// schema-flexible.
	Fields []string `json:"fields,omitempty"`
	// SchemaID optionally names a JSON schema the payload must follow
	SchemaID string `json:"schema_id,omitempty"`
	// WithFiles enables a file companion for each record
	WithFiles bool `json:"with_files,omitempty"`
	// Description for documentation purposes only
	Description string `json:"description,omitempty"`
}

// Record is one validated instance of a class. The key set is private;
// records are constructed through Definition.NewRecord or, by stores,
// through Hydrate.
type Record struct {
	class     string
	id        uuid.UUID
	createdAt time.Time
	updatedAt time.Time
	keys      map[string]interface{}
}

// NewRecord builds a record from a loose key bag, rejecting reserved
// keys and, if the definition declares a field list, unknown keys.
// Value types are not checked here; that is the business of the
// optional JSON schema attached to the class.
func (d Definition) NewRecord(keys map[string]interface{}) (*Record, error) {
	validated, err := d.validateKeys(keys)
	if err != nil {
		return nil, err
	}
	return &Record{class: d.Name, keys: validated}, nil
}

func (d Definition) validateKeys(keys map[string]interface{}) (map[string]interface{}, error) {
	validated := make(map[string]interface{}, len(keys))
	for key, value := range keys {
		switch key {
		case KeyID, KeyCreatedAt, KeyUpdatedAt:
			return nil, core.ValidationError("key %s is reserved", key)
		case "":
			return nil, core.ValidationError("empty key name")
		}
		if len(d.Fields) > 0 && !d.hasField(key) {
			return nil, core.ValidationError("unknown key %s for class %s", key, d.Name)
		}
		validated[key] = value
	}
	return validated, nil
}

func (d Definition) hasField(name string) bool {
	for _, field := range d.Fields {
		if field == name {
			return true
		}
	}
	return false
}

// Hydrate reconstructs a record from storage. No validation happens,
// the storage layer is trusted.
func Hydrate(class string, id uuid.UUID, createdAt, updatedAt time.Time, keys map[string]interface{}) *Record {
	if keys == nil {
		keys = map[string]interface{}{}
	}
	return &Record{class: class, id: id, createdAt: createdAt, updatedAt: updatedAt, keys: keys}
}

// Bind sets the storage metadata of the record. It is called by class
// accessors after persisting.
func (r *Record) Bind(id uuid.UUID, createdAt, updatedAt time.Time) {
	r.id = id
	r.createdAt = createdAt
	r.updatedAt = updatedAt
}

// Class returns the class name.
func (r *Record) Class() string { return r.class }

// ID returns the record id, uuid.Nil for a record not yet saved.
func (r *Record) ID() uuid.UUID { return r.id }

// CreatedAt returns the creation time set by the store.
func (r *Record) CreatedAt() time.Time { return r.createdAt }

// UpdatedAt returns the last modification time set by the store.
func (r *Record) UpdatedAt() time.Time { return r.updatedAt }

// Get returns the value for one key.
func (r *Record) Get(key string) (interface{}, bool) {
	value, ok := r.keys[key]
	return value, ok
}

// String returns the string value for one key, or "" if the key is
// absent or not a string.
func (r *Record) String(key string) string {
	s, _ := r.keys[key].(string)
	return s
}

// Apply validates and merges new keys into the record, for updates.
// A nil value removes the key.
func (r *Record) Apply(d Definition, keys map[string]interface{}) error {
	validated, err := d.validateKeys(keys)
	if err != nil {
		return err
	}
	for key, value := range validated {
		if value == nil {
			delete(r.keys, key)
			continue
		}
		r.keys[key] = value
	}
	return nil
}

// Pointer returns the pointer representation of the record.
func (r *Record) Pointer() core.Pointer {
	return core.Pointer{ClassName: r.class, ID: r.id}
}

// Keys returns a copy of the record's key set, without the metadata.
func (r *Record) Keys() map[string]interface{} {
	keys := make(map[string]interface{}, len(r.keys))
	for key, value := range r.keys {
		keys[key] = value
	}
	return keys
}

// Payload returns the full external representation: the key set plus
// id, created_at and updated_at. Dynamic keys cannot shadow the
// metadata.
func (r *Record) Payload() map[string]interface{} {
	payload := r.Keys()
	payload[KeyID] = r.id.String()
	payload[KeyCreatedAt] = r.createdAt.UTC().Format(time.RFC3339Nano)
	payload[KeyUpdatedAt] = r.updatedAt.UTC().Format(time.RFC3339Nano)
	return payload
}

// matchObject is the view of the record the constraint evaluator and
// the sort comparator see: payload keys plus typed metadata.
func (r *Record) matchObject() map[string]interface{} {
	object := r.Keys()
	object[KeyID] = r.id.String()
	object[KeyCreatedAt] = r.createdAt.UTC().Format(time.RFC3339Nano)
	object[KeyUpdatedAt] = r.updatedAt.UTC().Format(time.RFC3339Nano)
	return object
}

// SelectPayload reduces a payload to the selected fields. The metadata
// keys are always kept. An empty selection keeps everything.
func SelectPayload(payload map[string]interface{}, selected []string) map[string]interface{} {
	if len(selected) == 0 {
		return payload
	}
	reduced := map[string]interface{}{
		KeyID:        payload[KeyID],
		KeyCreatedAt: payload[KeyCreatedAt],
		KeyUpdatedAt: payload[KeyUpdatedAt],
	}
	for _, field := range selected {
		if value, ok := payload[field]; ok {
			reduced[field] = value
		}
	}
	return reduced
}
