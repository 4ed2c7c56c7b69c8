package tokenstore

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisClient is an in-memory stand-in for *redis.Client, implementing
// just enough of redisClient to exercise RedisStore without a live server.
type fakeRedisClient struct {
	data map[string]string
}

func newFakeRedisClient() *fakeRedisClient {
	return &fakeRedisClient{data: map[string]string{}}
}

func (f *fakeRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx, "get", key)
	v, ok := f.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (f *fakeRedisClient) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx, "set", key, value)
	f.data[key] = toRedisString(value)
	cmd.SetVal("OK")
	return cmd
}

func toRedisString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

func TestRedisStoreLoadMissingKeyReturnsNotFound(t *testing.T) {
	store := &RedisStore{client: newFakeRedisClient(), prefix: "test:"}
	balance, found, err := store.Load(context.Background(), "tenant-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Zero(t, balance)
}

func TestRedisStoreSaveThenLoadRoundTrips(t *testing.T) {
	store := &RedisStore{client: newFakeRedisClient(), prefix: "test:"}
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "tenant-1", 99))
	balance, found, err := store.Load(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(99), balance)
}
