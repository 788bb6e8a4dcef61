/*Package session issues, resolves and revokes session tokens.

A session binds an identity pointer to an opaque token. The token is
purely a lookup key into the session store; it carries no claims of its
own. A session is valid as long as its row exists and the revocation
time lies in the future. Logout deletes the row, which is the one and
only revocation mechanism.
*/
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
)

// Session represents one authenticated login.
type Session struct {
	ID        uuid.UUID    `json:"id"`
	Token     string       `json:"token"`
	User      core.Pointer `json:"user"`
	Origin    string       `json:"origin,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	RevokedAt time.Time    `json:"revoked_at"`
}

// Valid reports whether the session is live at the given time.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && now.Before(s.RevokedAt)
}

// ErrDuplicateToken is returned by Store.Insert when the token value is
// already taken. The store's uniqueness constraint is the final arbiter
// of token uniqueness; the manager reacts by generating a new token.
var ErrDuplicateToken = errors.New("session: duplicate token")

// Store persists sessions, keyed by token.
type Store interface {
	// Insert persists a new session. Fails with ErrDuplicateToken when
	// the token value is already in use.
	Insert(ctx context.Context, s Session) error
	// Lookup returns the session for a token, or nil when there is
	// none. Lookup does not check the revocation time.
	Lookup(ctx context.Context, token string) (*Session, error)
	// Delete removes the session for a token and reports whether one
	// existed.
	Delete(ctx context.Context, token string) (bool, error)
}
