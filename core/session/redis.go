package session

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in redis, keyed by token. Redis expiry
// mirrors the revocation time, so revoked sessions disappear on their
// own; token uniqueness rides on SETNX.
type RedisStore struct {
	client *redis.Client
	prefix string
	clock  func() time.Time
}

// NewRedisStore creates a redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "session:", clock: time.Now}
}

func (r *RedisStore) key(token string) string {
	return r.prefix + token
}

// Insert persists a session. Fails with ErrDuplicateToken when the
// token is already in use.
func (r *RedisStore) Insert(ctx context.Context, s Session) error {
	ttl := s.RevokedAt.Sub(r.clock().UTC())
	if ttl <= 0 {
		return fmt.Errorf("session: revocation time must be in the future")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: cannot marshal: %w", err)
	}
	ok, err := r.client.SetNX(ctx, r.key(s.Token), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateToken
	}
	return nil
}

// Lookup returns the session for a token, or nil when absent or
// already expired out of redis.
func (r *RedisStore) Lookup(ctx context.Context, token string) (*Session, error) {
	value, err := r.client.Get(ctx, r.key(token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return nil, fmt.Errorf("session: cannot unmarshal: %w", err)
	}
	return &s, nil
}

// Delete removes the session for a token.
func (r *RedisStore) Delete(ctx context.Context, token string) (bool, error) {
	count, err := r.client.Del(ctx, r.key(token)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
