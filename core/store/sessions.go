package store

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/classbase/classbase/core"
	"github.com/classbase/classbase/core/csql"
	"github.com/classbase/classbase/core/logger"
	"github.com/classbase/classbase/core/session"
)

// SessionStore keeps sessions in a dedicated postgres table. The
// primary key on the token column makes token uniqueness a database
// guarantee.
type SessionStore struct {
	db    *csql.DB
	table string
}

// NewSessionStore creates the session table if necessary and returns
// the store. A failure to create the table panics.
func NewSessionStore(db *csql.DB) *SessionStore {
	table := db.Schema + ".\"session\""
	createQuery := "CREATE table IF NOT EXISTS " + table + `
(token varchar NOT NULL PRIMARY KEY,
session_id uuid NOT NULL,
user_class varchar NOT NULL,
user_id uuid NOT NULL,
origin varchar NOT NULL DEFAULT '',
created_at timestamp NOT NULL DEFAULT now(),
revoked_at timestamp NOT NULL
);`
	if _, err := db.Exec(createQuery); err != nil {
		logger.Default().WithError(err).Error("cannot create session table")
		panic("invalid configuration")
	}
	return &SessionStore{db: db, table: table}
}

// Insert stores a new session. It returns session.ErrDuplicateToken
// when the token is already taken.
func (s *SessionStore) Insert(ctx context.Context, sn session.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO "+s.table+" (token, session_id, user_class, user_id, origin, created_at, revoked_at) "+
			"VALUES($1, $2, $3, $4, $5, $6, $7);",
		sn.Token, sn.ID, sn.User.ClassName, sn.User.ID,
		sn.Origin, sn.CreatedAt, sn.RevokedAt)
	if pqError, ok := err.(*pq.Error); ok && pqError.Code == "23505" {
		return session.ErrDuplicateToken
	}
	if err != nil {
		return core.DatabaseError(err)
	}
	return nil
}

// Lookup returns the session for a token, or nil when the token is
// unknown.
func (s *SessionStore) Lookup(ctx context.Context, token string) (*session.Session, error) {
	var (
		result               session.Session
		createdAt, revokedAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT token, session_id, user_class, user_id, origin, created_at, revoked_at FROM "+
			s.table+" WHERE token = $1;", token).
		Scan(&result.Token, &result.ID, &result.User.ClassName, &result.User.ID,
			&result.Origin, &createdAt, &revokedAt)
	if err == csql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.DatabaseError(err)
	}
	result.CreatedAt = createdAt.UTC()
	result.RevokedAt = revokedAt.UTC()
	return &result, nil
}

// Delete removes the session for a token. It reports whether the token
// was present.
func (s *SessionStore) Delete(ctx context.Context, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table+" WHERE token = $1;", token)
	if err != nil {
		return false, core.DatabaseError(err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return false, core.DatabaseError(err)
	}
	return count > 0, nil
}
