package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient is the narrow slice of *redis.Client's API RedisStore needs,
// letting tests supply a fake without a live redis server.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore is the tenant scope's durable store: tenant scope is
// explicitly cross-façade (§3), so its balance needs a store every façade
// instance can share, not a per-host one.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore builds a RedisStore against addr. Keys are namespaced under
// "sandboxkernel:tokens:" to share a redis instance safely with other uses.
func NewRedisStore(addr string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: "sandboxkernel:tokens:",
	}
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) Load(ctx context.Context, key string) (int64, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("tokenstore: load %q: %w", key, err)
	}
	balance, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("tokenstore: parse balance for %q: %w", key, err)
	}
	return balance, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key string, balance int64) error {
	if err := s.client.Set(ctx, s.key(key), balance, 0*time.Second).Err(); err != nil {
		return fmt.Errorf("tokenstore: save %q: %w", key, err)
	}
	return nil
}
