package recent

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dashboard:"

// RedisStorage keeps slots as plain redis strings without expiry.
type RedisStorage struct {
	client *redis.Client
}

// NewRedisStorage parses a redis:// URL. The connection is established lazily.
func NewRedisStorage(url string) (*RedisStorage, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisStorage{client: redis.NewClient(opt)}, nil
}

// NewRedisStorageFromClient wraps an existing client, sharing its pool.
func NewRedisStorageFromClient(client *redis.Client) *RedisStorage {
	return &RedisStorage{client: client}
}

// Get maps redis.Nil to a miss.
func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return raw, true, nil
}

// Set writes the slot with no TTL.
func (r *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	return r.client.Set(ctx, redisKeyPrefix+key, value, 0).Err()
}

// Ping checks server reachability for /health.
func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the underlying client, including a shared one.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}
