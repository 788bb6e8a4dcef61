package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/model"
	"github.com/classbase/classbase/core/query"
)

// user record keys the manager relies on
const (
	KeyUsername = "username"
	KeyEmail    = "email"
	KeyPassword = "password"
)

// tokenAttempts bounds the retries on a token collision. Collisions
// are astronomically unlikely with 256 bit tokens; the loop exists so
// a collision retries generation instead of failing the login.
const tokenAttempts = 5

// Manager implements the session lifecycle over a user class and a
// session store. All collaborators are passed in explicitly; the
// manager holds no global state.
type Manager struct {
	users  model.Class
	store  Store
	policy RevocationPolicy
	clock  func() time.Time
	token  TokenSource
}

// ManagerBuilder is a builder helper for the Manager.
type ManagerBuilder struct {
	// Users is the class accessor for the built-in user class. This is mandatory.
	Users model.Class
	// Store persists sessions. This is mandatory.
	Store Store
	// Policy computes revocation times. Optional, defaults to a 30 day TTL.
	Policy RevocationPolicy
	// Clock is the time source. Optional, defaults to time.Now.
	Clock func() time.Time
	// Token generates token values. Optional, defaults to NewToken.
	Token TokenSource
}

// NewManager realizes the manager.
func NewManager(b *ManagerBuilder) *Manager {
	if b.Users == nil {
		panic("users class is missing")
	}
	if b.Store == nil {
		panic("session store is missing")
	}
	m := &Manager{
		users:  b.Users,
		store:  b.Store,
		policy: b.Policy,
		clock:  b.Clock,
		token:  b.Token,
	}
	if m.policy == nil {
		m.policy = ExpireAfter(30 * 24 * time.Hour)
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.token == nil {
		m.token = NewToken
	}
	return m
}

// Authenticate looks up exactly one user whose username or email
// matches the identifier and verifies the password. Every failure path
// returns the identical invalid-credentials error, so callers cannot
// learn whether an account exists.
func (m *Manager) Authenticate(ctx context.Context, identifier, password string) (*model.Record, error) {
	var matches []*model.Record
	seen := map[uuid.UUID]bool{}
	for _, field := range []string{KeyUsername, KeyEmail} {
		records, err := m.users.Find(ctx, query.Descriptor{
			Where: query.ConstraintMap{field: {{Op: query.OpEqual, Value: identifier}}},
			Sort:  []query.SortKey{{Field: query.FieldCreatedAt}},
			Limit: 2,
		})
		if err != nil {
			return nil, storageError(err)
		}
		for _, record := range records {
			if !seen[record.ID()] {
				seen[record.ID()] = true
				matches = append(matches, record)
			}
		}
	}
	if len(matches) != 1 {
		return nil, core.InvalidCredentialsError()
	}
	user := matches[0]
	if !CheckPassword(user.String(KeyPassword), password) {
		return nil, core.InvalidCredentialsError()
	}
	return user, nil
}

// IssueSession builds and persists a session for the identity. The
// session does not exist until it is persisted; a storage failure
// leaves no partial state behind.
func (m *Manager) IssueSession(ctx context.Context, user *model.Record, origin string) (*Session, error) {
	now := m.clock().UTC()
	for attempt := 0; attempt < tokenAttempts; attempt++ {
		token, err := m.token()
		if err != nil {
			return nil, core.DatabaseError(err)
		}
		s := Session{
			ID:        uuid.New(),
			Token:     token,
			User:      m.users.ToPointer(user.ID()),
			Origin:    origin,
			CreatedAt: now,
			RevokedAt: m.policy(now),
		}
		err = m.store.Insert(ctx, s)
		if errors.Is(err, ErrDuplicateToken) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		return &s, nil
	}
	return nil, core.DatabaseError(errors.New("token collision storm"))
}

// LogIn authenticates and issues a session. The authenticated user is
// returned together with the session, so callers do not need a second
// lookup. An already authenticated caller must log out first.
func (m *Manager) LogIn(ctx context.Context, current *model.Record, identifier, password, origin string) (*Session, *model.Record, error) {
	if current != nil {
		return nil, nil, core.ForbiddenError("already authenticated, log out first")
	}
	user, err := m.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, nil, err
	}
	s, err := m.IssueSession(ctx, user, origin)
	if err != nil {
		return nil, nil, err
	}
	return s, user, nil
}

// ResolveToken returns the live session and its user for a token.
// An absent, revoked or dangling session yields nil without error; the
// caller decides whether that is fatal.
func (m *Manager) ResolveToken(ctx context.Context, token string) (*Session, *model.Record, error) {
	if token == "" {
		return nil, nil, nil
	}
	s, err := m.store.Lookup(ctx, token)
	if err != nil {
		return nil, nil, storageError(err)
	}
	if !s.Valid(m.clock().UTC()) {
		return nil, nil, nil
	}
	if s.User.IsZero() {
		return nil, nil, nil
	}
	user, err := m.users.GetByID(ctx, s.User.ID)
	if err != nil {
		return nil, nil, storageError(err)
	}
	if user == nil {
		return nil, nil, nil
	}
	return s, user, nil
}

// DestroySession revokes a session by deleting it. Unknown tokens fail
// with an invalid session token error.
func (m *Manager) DestroySession(ctx context.Context, token string) error {
	found, err := m.store.Delete(ctx, token)
	if err != nil {
		return storageError(err)
	}
	if !found {
		return core.InvalidSessionTokenError()
	}
	return nil
}

// storageError keeps core errors as they are and wraps anything else
// as a database failure.
func storageError(err error) error {
	if core.KindOf(err) != "" {
		return err
	}
	return core.DatabaseError(err)
}
