package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionNamespace = "liftline:session"

// RedisSessionStore keeps sessions in Redis with the key TTL set to the
// session's remaining lifetime.
type RedisSessionStore struct {
	client redis.UniversalClient
}

// NewRedisSessionStore creates a session store over client.
func NewRedisSessionStore(client redis.UniversalClient) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

func sessionKey(tokenHash string) string {
	return sessionNamespace + ":" + tokenHash
}

func (r *RedisSessionStore) Put(ctx context.Context, tokenHash string, s Session, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Delete(ctx, tokenHash)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(tokenHash), b, ttl).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, tokenHash string) (Session, error) {
	b, err := r.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("getting session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return Session{}, fmt.Errorf("decoding session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, tokenHash string) error {
	if err := r.client.Del(ctx, sessionKey(tokenHash)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
