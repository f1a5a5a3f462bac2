package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/woolstore/storefront/internal/redisx"
)

// RedisStore keeps sessions server-side with a Redis TTL, so eviction
// needs no sweeping at all.
type RedisStore struct {
	RDB *redis.Client
}

func (r *RedisStore) key(token string) string {
	return fmt.Sprintf(redisx.KeySession, token)
}

func (r *RedisStore) Put(ctx context.Context, token string, s Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.RDB.Set(ctx, r.key(token), b, redisx.TTLSession).Err()
}

func (r *RedisStore) Get(ctx context.Context, token string) (Session, bool) {
	b, err := r.RDB.Get(ctx, r.key(token)).Bytes()
	if err != nil {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		log.Printf("session decode: %v", err)
		return Session{}, false
	}
	return s, true
}

func (r *RedisStore) Delete(ctx context.Context, token string) {
	_ = r.RDB.Del(ctx, r.key(token)).Err()
}
