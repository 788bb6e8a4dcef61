package model

import (
	"context"
	"fmt"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/query"
)

// Registry maps class names to their accessors. It is populated once
// at startup and read-only afterwards; there is deliberately no
// runtime lookup by reflection.
type Registry struct {
	classes map[string]Class
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]Class)}
}

// Add registers a class accessor. Registering the same name twice is a
// configuration bug and panics, like any other invalid static
// configuration.
func (r *Registry) Add(class Class) {
	if _, ok := r.classes[class.Name()]; ok {
		panic(fmt.Sprintf("class %s registered twice", class.Name()))
	}
	r.classes[class.Name()] = class
}

// Get returns the accessor for a class name.
func (r *Registry) Get(name string) (Class, bool) {
	class, ok := r.classes[name]
	return class, ok
}

// Names returns all registered class names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	return names
}

// Resolver returns a subquery resolver backed by this registry: the
// nested query runs against the named class and yields the pointers of
// the matching records.
func (r *Registry) Resolver() query.SubqueryResolver {
	return func(ctx context.Context, class string, q query.Descriptor) ([]interface{}, error) {
		accessor, ok := r.Get(class)
		if !ok {
			return nil, core.ValidationError("subquery against unknown class %s", class)
		}
		records, err := accessor.Find(ctx, q)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, 0, len(records))
		for _, record := range records {
			values = append(values, record.Pointer())
		}
		return values, nil
	}
}

// ResolveIncludes replaces pointer values of the included fields with
// the payload of the referenced record. Unknown classes and dangling
// pointers are left untouched rather than failing the whole read.
func ResolveIncludes(ctx context.Context, r *Registry, payloads []map[string]interface{}, include []string) error {
	for _, payload := range payloads {
		for _, field := range include {
			pointer, ok := core.PointerFromObject(payload[field])
			if !ok {
				if p, isPointer := payload[field].(core.Pointer); isPointer {
					pointer, ok = p, true
				}
			}
			if !ok {
				continue
			}
			class, found := r.Get(pointer.ClassName)
			if !found {
				continue
			}
			record, err := class.GetByID(ctx, pointer.ID)
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}
			payload[field] = record.Payload()
		}
	}
	return nil
}
