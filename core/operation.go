package core

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Operation represents a backend operation on a class or on the
// built-in user/session model.
type Operation string

// all supported operations
const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationList   Operation = "list"
	OperationLogin  Operation = "login"
	OperationLogout Operation = "logout"
	OperationMe     Operation = "me"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete,
		OperationList, OperationLogin, OperationLogout, OperationMe:
		return nil
	default:
		return fmt.Errorf("%s is not a valid Operation", s)
	}
}

// IsMutation returns true for operations which write to storage.
func (o Operation) IsMutation() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}
