package backend

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/logger"
)

// statusForError maps error kinds to HTTP status codes. Database
// failures keep their cause in the log only; the client sees the
// normalized message.
func statusForError(err error) int {
	switch core.KindOf(err) {
	case core.ErrorValidation:
		return http.StatusBadRequest
	case core.ErrorForbidden:
		return http.StatusForbidden
	case core.ErrorInvalidCredentials, core.ErrorInvalidSessionToken:
		return http.StatusUnauthorized
	case core.ErrorDatabase:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	rlog := logger.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		rlog.WithError(err).Errorln("internal error for", r.Method, r.URL)
	} else {
		rlog.Infoln("rejected", r.Method, r.URL, ":", err.Error())
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "cannot serialize response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
