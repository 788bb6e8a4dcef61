/*Package access provides the per-request metadata and the
authorization guard for all mutating operations.
*/
package access

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/session"
)

// request headers understood by the metadata middleware
const (
	HeaderMasterKey    = "X-Classbase-Master-Key"
	HeaderSessionToken = "X-Classbase-Session-Token"
	HeaderOrigin       = "X-Classbase-Origin"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyMetadata contextKey = "_metadata_"

// Metadata is the per-request context of the caller: whether the
// request carries the master privilege, where it came from, and the
// identity resolved from its session token. It is constructed fresh
// for every request and never persisted.
type Metadata struct {
	Master       bool
	Origin       string
	SessionToken string
	Identity     *model.Record
	Session      *session.Session
}

// Authenticated returns true when an identity is resolved for the
// request.
func (m *Metadata) Authenticated() bool {
	return m != nil && m.Identity != nil
}

// ContextWithMetadata returns a new context with this metadata added to it
func ContextWithMetadata(ctx context.Context, m *Metadata) context.Context {
	return context.WithValue(ctx, contextKeyMetadata, m)
}

// MetadataFromContext retrieves the request metadata from the context
func MetadataFromContext(ctx context.Context) *Metadata {
	m, ok := ctx.Value(contextKeyMetadata).(*Metadata)
	if ok {
		return m
	}
	return nil
}

// MetadataMiddlewareBuilder is a helper builder for the metadata middleware
type MetadataMiddlewareBuilder struct {
	// MasterKey unlocks the master privilege. Optional; without it no
	// request can hold the master privilege.
	MasterKey string
	// Sessions resolves session tokens to identities. This is mandatory.
	Sessions *session.Manager
}

// NewMetadataMiddleware returns a middleware which builds the request
// metadata from the transport headers and resolves the session token,
// if any. An unknown or revoked token simply yields an anonymous
// request; the individual operations decide whether that is fatal.
func NewMetadataMiddleware(b *MetadataMiddlewareBuilder) mux.MiddlewareFunc {
	if b.Sessions == nil {
		panic("session manager is missing")
	}
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := &Metadata{
				Origin:       r.Header.Get(HeaderOrigin),
				SessionToken: r.Header.Get(HeaderSessionToken),
			}
			if key := r.Header.Get(HeaderMasterKey); key != "" && b.MasterKey != "" {
				meta.Master = subtle.ConstantTimeCompare([]byte(key), []byte(b.MasterKey)) == 1
			}
			if meta.SessionToken != "" {
				s, user, err := b.Sessions.ResolveToken(r.Context(), meta.SessionToken)
				if err != nil {
					logger.FromContext(r.Context()).WithError(err).Errorln("cannot resolve session token")
					http.Error(w, "invalid query request", http.StatusInternalServerError)
					return
				}
				meta.Session = s
				meta.Identity = user
			}
			ctx := ContextWithMetadata(r.Context(), meta)
			if meta.Identity != nil {
				ctx, _ = logger.ContextWithLoggerIdentity(ctx, meta.Identity.ID().String())
			}
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
