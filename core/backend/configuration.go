package backend

import (
	"github.com/goccy/go-json"

	"github.com/classbase/classbase/core"
)

// Configuration holds a complete backend configuration
type Configuration struct {
	Classes []classConfiguration `json:"classes"`
}

// classConfiguration describes one record class
type classConfiguration struct {
	// Class is the class name, mandatory. It becomes part of the REST
	// route, so it must be a single path segment.
	Class string `json:"class"`
	// Fields is the closed set of property names records of this class
	// may carry, in addition to the reserved metadata fields.
	Fields []string `json:"fields"`
	// SchemaID references a JSON schema the payload of every create and
	// update must validate against. Optional.
	SchemaID    string `json:"schema_id"`
	Description string `json:"description"`
	// WithFiles gives every record a file companion in the file store.
	WithFiles bool `json:"with_files"`
	// FilePresignedURLValidity is the validity of companion URLs in
	// seconds. Zero means the backend default.
	FilePresignedURLValidity int `json:"file_presigned_url_validity"`
	// Notifications lists the operations that emit an event to the
	// notifier.
	Notifications []core.Operation `json:"notifications"`
	// Default is merged into every created record for keys the request
	// does not set. Optional.
	Default json.RawMessage `json:"default"`
}

func (c classConfiguration) notifies(operation core.Operation) bool {
	for _, o := range c.Notifications {
		if o == operation {
			return true
		}
	}
	return false
}
