package backend

import (
	"net/http"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/access"
	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/model"
)

// handleUserRoutes adds the session routes of the built-in user class.
// Signup is a plain record creation on the user class.
func (b *Backend) handleUserRoutes(router *mux.Router) {
	logger.Default().Debugln("  handle user routes: /login POST")
	logger.Default().Debugln("  handle user routes: /logout POST")
	logger.Default().Debugln("  handle user routes: /users/me GET")

	router.HandleFunc("/login", b.loginWithAuth).
		Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/logout", b.logoutWithAuth).
		Methods(http.MethodOptions, http.MethodPost)
	router.HandleFunc("/users/me", b.meWithAuth).
		Methods(http.MethodOptions, http.MethodGet)
}

func (b *Backend) loginWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationLogin, meta, core.Pointer{ClassName: model.UserClass}); err != nil {
		writeError(w, r, err)
		return
	}

	var credentials struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		writeError(w, r, core.ValidationError("body is not a JSON object: %s", err.Error()))
		return
	}
	identifier := credentials.Username
	if identifier == "" {
		identifier = credentials.Email
	}
	if identifier == "" || credentials.Password == "" {
		writeError(w, r, core.InvalidCredentialsError())
		return
	}

	var current *model.Record
	if meta != nil {
		current = meta.Identity
	}
	s, user, err := b.Sessions.LogIn(ctx, current, identifier, credentials.Password, originOf(meta))
	if err != nil {
		writeError(w, r, err)
		return
	}

	payload := b.recordPayload(b.classConfigs[model.UserClass], user)
	payload["session_token"] = s.Token
	sessionsIssuedTotal.Inc()
	b.notify(b.classConfigs[model.UserClass], core.OperationLogin, user.Pointer())
	writeJSON(w, http.StatusOK, payload)
}

func (b *Backend) logoutWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	var token string
	if meta != nil {
		token = meta.SessionToken
	}
	if token == "" {
		writeError(w, r, core.InvalidSessionTokenError())
		return
	}
	if err := b.Sessions.DestroySession(ctx, token); err != nil {
		writeError(w, r, err)
		return
	}
	if meta.Session != nil {
		b.notify(b.classConfigs[model.UserClass], core.OperationLogout, meta.Session.User)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

func (b *Backend) meWithAuth(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Debugln("called route for", r.URL, r.Method)
	ctx := r.Context()
	meta := access.MetadataFromContext(ctx)

	if err := access.Authorize(core.OperationMe, meta, core.Pointer{ClassName: model.UserClass}); err != nil {
		writeError(w, r, err)
		return
	}
	// the master key passes the guard, but without a session there is
	// no identity to return
	if !meta.Authenticated() {
		writeError(w, r, core.InvalidSessionTokenError())
		return
	}

	payload := b.recordPayload(b.classConfigs[model.UserClass], meta.Identity)
	payload["session_token"] = meta.SessionToken
	writeJSON(w, http.StatusOK, payload)
}

// originOf returns the request origin, tolerating absent metadata.
func originOf(meta *access.Metadata) string {
	if meta == nil {
		return ""
	}
	return meta.Origin
}
