package access

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/query"
	"github.com/classbase/classbase/core/session"
)

// JwtMiddlewareBuilder is a helper builder for the JWT middleware
type JwtMiddlewareBuilder struct {
	// PublicKeys maps key ids to PEM encoded RSA public keys. This is mandatory.
	PublicKeys map[string]string
	// Issuer is the accepted issuer for the token. This is mandatory.
	Issuer string
	// Users is the class accessor for the user class. This is mandatory.
	Users model.Class
}

// identityCache is an in-memory cache from bearer token to user id. It
// saves the user lookup on every request; a new token enforces a fresh
// lookup.
type identityCache struct {
	mutex sync.RWMutex
	cache map[string]uuid.UUID
}

func (c *identityCache) read(token string) (uuid.UUID, bool) {
	c.mutex.RLock()
	id, ok := c.cache[token]
	c.mutex.RUnlock()
	return id, ok
}

func (c *identityCache) write(token string, id uuid.UUID) {
	c.mutex.Lock()
	c.cache[token] = id
	c.mutex.Unlock()
}

// NewJwtMiddleware returns a middleware which accepts a verified
// "Authorization: Bearer" JWT as a federated login: the email claim is
// mapped to a user of the built-in user class and resolved into the
// request metadata. The JWT is only an ingress credential; sessions
// issued afterwards use opaque tokens as always.
//
// The middleware is final with regards to the bearer token: a token
// which is present but invalid fails the request with 401.
func NewJwtMiddleware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if len(jmb.PublicKeys) == 0 {
		panic("public keys are missing")
	}
	if jmb.Users == nil {
		panic("users class is missing")
	}

	wellKnownKeys := map[string]interface{}{}
	for kid, cert := range jmb.PublicKeys {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(cert))
		if err != nil {
			logger.Default().WithError(err).Errorln("certificate error for kid", kid)
		} else {
			wellKnownKeys[kid] = key
		}
	}

	jwksLookup := func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if key, ok := wellKnownKeys[kid]; ok {
			return key, nil
		}
		return nil, errors.New("cannot verify token")
	}

	cache := &identityCache{cache: make(map[string]uuid.UUID)}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := MetadataFromContext(r.Context())
			if meta == nil || meta.Authenticated() { // already authenticated?
				h.ServeHTTP(w, r)
				return
			}

			tokenString := ""
			bearer := r.Header.Get("Authorization")
			if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
				tokenString = bearer[7:]
			}
			if len(tokenString) == 0 {
				h.ServeHTTP(w, r) // no token no auth, moving on
				return
			}

			rlog := logger.FromContext(r.Context())

			claims := struct {
				EMail string `json:"email"`
				jwt.RegisteredClaims
			}{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, jwksLookup)
			if err != nil || !token.Valid || claims.Issuer != jmb.Issuer {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			var user *model.Record
			if id, ok := cache.read(tokenString); ok {
				user, err = jmb.Users.GetByID(r.Context(), id)
			} else {
				user, err = jmb.Users.First(r.Context(), query.Descriptor{
					Where: query.ConstraintMap{
						session.KeyEmail: {{Op: query.OpEqual, Value: claims.EMail}},
					},
					Limit: 1,
				})
				if err == nil && user != nil {
					cache.write(tokenString, user.ID())
				}
			}
			if err != nil {
				rlog.WithError(err).Errorln("cannot look up federated identity")
				http.Error(w, "invalid query request", http.StatusInternalServerError)
				return
			}
			if user == nil {
				http.Error(w, "unknown identity", http.StatusUnauthorized)
				return
			}

			meta.Identity = user
			ctx, _ := logger.ContextWithLoggerIdentity(r.Context(), claims.Issuer+"|"+claims.EMail)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
