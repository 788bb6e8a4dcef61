package session

import (
	"context"
	"testing"
	"time"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/model"
	"github.com/google/uuid"
)

type fixture struct {
	users   *model.Memory
	store   *MemoryStore
	manager *Manager
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users: model.NewMemory(model.UserDefinition()),
		store: NewMemoryStore(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.manager = NewManager(&ManagerBuilder{
		Users:  f.users,
		Store:  f.store,
		Policy: ExpireAfter(24 * time.Hour),
		Clock:  func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) addUser(t *testing.T, username, email, password string) *model.Record {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatal(err)
	}
	user, err := model.UserDefinition().NewRecord(map[string]interface{}{
		KeyUsername: username,
		KeyEmail:    email,
		KeyPassword: hash,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.users.Save(context.Background(), user); err != nil {
		t.Fatal(err)
	}
	return user
}

func TestLogIn_RoundTrip(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "ada", "ada@example.com", "secret")
	ctx := context.Background()

	s, loggedIn, err := f.manager.LogIn(ctx, nil, "ada", "secret", "web")
	if err != nil {
		t.Fatal(err)
	}
	if s.Token == "" {
		t.Fatal("no token issued")
	}
	if loggedIn == nil || loggedIn.ID() != user.ID() {
		t.Fatal("login did not return the authenticated user")
	}
	if s.Origin != "web" {
		t.Fatal("origin lost")
	}
	if !s.RevokedAt.Equal(f.now.Add(24 * time.Hour)) {
		t.Fatalf("wrong revocation time: %s", s.RevokedAt)
	}

	resolved, identity, err := f.manager.ResolveToken(ctx, s.Token)
	if err != nil {
		t.Fatal(err)
	}
	if resolved == nil || identity == nil {
		t.Fatal("token does not resolve")
	}
	if identity.ID() != user.ID() {
		t.Fatal("wrong identity")
	}
}

func TestLogIn_ByEmail(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ada", "ada@example.com", "secret")

	if _, _, err := f.manager.LogIn(context.Background(), nil, "ada@example.com", "secret", ""); err != nil {
		t.Fatal(err)
	}
}

func TestLogIn_InvalidCredentialsAreUniform(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ada", "ada@example.com", "secret")
	ctx := context.Background()

	_, _, errWrongPassword := f.manager.LogIn(ctx, nil, "ada", "wrong", "")
	_, _, errUnknownUser := f.manager.LogIn(ctx, nil, "nobody", "secret", "")

	for _, err := range []error{errWrongPassword, errUnknownUser} {
		if core.KindOf(err) != core.ErrorInvalidCredentials {
			t.Fatalf("expected invalid credentials, got %v", err)
		}
	}
	// an attacker must not be able to tell the two cases apart
	if errWrongPassword.Error() != errUnknownUser.Error() {
		t.Fatal("error messages differ")
	}
}

func TestLogIn_AmbiguousIdentifier(t *testing.T) {
	f := newFixture(t)
	// one account's username is another account's email
	f.addUser(t, "ada@example.com", "other@example.com", "secret")
	f.addUser(t, "ada", "ada@example.com", "secret")

	_, _, err := f.manager.LogIn(context.Background(), nil, "ada@example.com", "secret", "")
	if core.KindOf(err) != core.ErrorInvalidCredentials {
		t.Fatalf("ambiguous identifier accepted: %v", err)
	}
}

func TestLogIn_SameUserMatchedTwice(t *testing.T) {
	f := newFixture(t)
	// username equals email; the same account matches both lookups and
	// must be deduplicated, not treated as ambiguous
	f.addUser(t, "ada@example.com", "ada@example.com", "secret")

	if _, _, err := f.manager.LogIn(context.Background(), nil, "ada@example.com", "secret", ""); err != nil {
		t.Fatal(err)
	}
}

func TestLogIn_WhileAuthenticated(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "ada", "ada@example.com", "secret")

	_, _, err := f.manager.LogIn(context.Background(), user, "ada", "secret", "")
	if core.KindOf(err) != core.ErrorForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestResolveToken_Expiry(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ada", "ada@example.com", "secret")
	ctx := context.Background()

	s, _, err := f.manager.LogIn(ctx, nil, "ada", "secret", "")
	if err != nil {
		t.Fatal(err)
	}

	f.now = f.now.Add(24*time.Hour + time.Second)
	session, identity, err := f.manager.ResolveToken(ctx, s.Token)
	if err != nil {
		t.Fatal(err)
	}
	if session != nil || identity != nil {
		t.Fatal("expired session resolves")
	}
}

func TestResolveToken_DanglingUser(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "ada", "ada@example.com", "secret")
	ctx := context.Background()

	s, _, err := f.manager.LogIn(ctx, nil, "ada", "secret", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.users.Destroy(ctx, user.ID()); err != nil {
		t.Fatal(err)
	}

	session, identity, err := f.manager.ResolveToken(ctx, s.Token)
	if err != nil {
		t.Fatal(err)
	}
	if session != nil || identity != nil {
		t.Fatal("session of a deleted user resolves")
	}
}

func TestResolveToken_ZeroUserPointer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a session row without a user reference must not resolve
	err := f.store.Insert(ctx, Session{
		ID:        uuid.New(),
		Token:     "orphan",
		CreatedAt: f.now,
		RevokedAt: f.now.Add(time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	session, identity, err := f.manager.ResolveToken(ctx, "orphan")
	if err != nil || session != nil || identity != nil {
		t.Fatal("session without user resolves")
	}
}

func TestResolveToken_Absent(t *testing.T) {
	f := newFixture(t)
	session, identity, err := f.manager.ResolveToken(context.Background(), "")
	if err != nil || session != nil || identity != nil {
		t.Fatal("empty token must resolve to anonymous")
	}
	session, identity, err = f.manager.ResolveToken(context.Background(), "unknown")
	if err != nil || session != nil || identity != nil {
		t.Fatal("unknown token must resolve to anonymous")
	}
}

func TestDestroySession(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "ada", "ada@example.com", "secret")
	ctx := context.Background()

	s, _, err := f.manager.LogIn(ctx, nil, "ada", "secret", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.DestroySession(ctx, s.Token); err != nil {
		t.Fatal(err)
	}
	session, _, err := f.manager.ResolveToken(ctx, s.Token)
	if err != nil || session != nil {
		t.Fatal("destroyed session still resolves")
	}

	// destroying again fails, the token is gone
	err = f.manager.DestroySession(ctx, s.Token)
	if core.KindOf(err) != core.ErrorInvalidSessionToken {
		t.Fatalf("expected invalid session token, got %v", err)
	}
}

func TestIssueSession_RetriesOnCollision(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "ada", "ada@example.com", "secret")
	ctx := context.Background()

	tokens := []string{"duplicate", "duplicate", "unique"}
	f.manager = NewManager(&ManagerBuilder{
		Users: f.users,
		Store: f.store,
		Clock: func() time.Time { return f.now },
		Token: func() (string, error) {
			token := tokens[0]
			if len(tokens) > 1 {
				tokens = tokens[1:]
			}
			return token, nil
		},
	})

	first, err := f.manager.IssueSession(ctx, user, "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Token != "duplicate" {
		t.Fatal("unexpected first token")
	}

	second, err := f.manager.IssueSession(ctx, user, "")
	if err != nil {
		t.Fatal(err)
	}
	if second.Token != "unique" {
		t.Fatalf("collision not retried, got token %q", second.Token)
	}
}

func TestNewToken_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := NewToken()
		if err != nil {
			t.Fatal(err)
		}
		if seen[token] {
			t.Fatal("duplicate token")
		}
		seen[token] = true
	}
}
