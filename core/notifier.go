package core

// Notifier receives record lifecycle events from the backend. The
// payload is the serialized record the operation produced, or the
// record pointer for deletions.
type Notifier interface {
	Notify(class string, operation Operation, payload []byte)
}
