package notify

import (
	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/logger"
)

// LogNotifier writes record events to the log. Useful for development
// and as a fallback where no broker is available.
type LogNotifier struct{}

// Notify implements core.Notifier. Mutations are logged at info level,
// everything else at debug level.
func (n LogNotifier) Notify(class string, operation core.Operation, payload []byte) {
	entry := logger.Default().WithField("class", class).WithField("operation", string(operation))
	if operation.IsMutation() {
		entry.Infoln("record event:", string(payload))
		return
	}
	entry.Debugln("record event:", string(payload))
}
