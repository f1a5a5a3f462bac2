package cart

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/woolstore/storefront/internal/redisx"
)

// RedisStore maps each cart to a hash: cart:{user_id} with one field
// per product id. Carts idle past the TTL simply disappear.
type RedisStore struct {
	RDB *redis.Client
}

func (r *RedisStore) key(userID string) string {
	return fmt.Sprintf(redisx.KeyCart, userID)
}

func (r *RedisStore) Get(ctx context.Context, userID string) (map[string]int, error) {
	fields, err := r.RDB.HGetAll(ctx, r.key(userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(fields))
	for pid, raw := range fields {
		qty, err := strconv.Atoi(raw)
		if err != nil || qty <= 0 {
			continue
		}
		out[pid] = qty
	}
	return out, nil
}

func (r *RedisStore) SetQty(ctx context.Context, userID, productID string, qty int) error {
	key := r.key(userID)
	if qty <= 0 {
		return r.RDB.HDel(ctx, key, productID).Err()
	}
	if err := r.RDB.HSet(ctx, key, productID, qty).Err(); err != nil {
		return err
	}
	return r.RDB.Expire(ctx, key, redisx.TTLCart).Err()
}

func (r *RedisStore) Clear(ctx context.Context, userID string) error {
	return r.RDB.Del(ctx, r.key(userID)).Err()
}
