package recent

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const memcachedKeyPrefix = "dashboard:"

// MemcachedStorage keeps slots in memcached without expiry.
type MemcachedStorage struct {
	client *memcache.Client
}

// NewMemcachedStorage connects to a comma-separated server list.
func NewMemcachedStorage(addrs string, timeout time.Duration, maxIdleConns int) *MemcachedStorage {
	var servers []string
	for _, a := range strings.Split(addrs, ",") {
		if a = strings.TrimSpace(a); a != "" {
			servers = append(servers, a)
		}
	}
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStorage{client: client}
}

// Get maps memcache.ErrCacheMiss to a miss. ctx is only checked up front
// since the client has no context support.
func (m *MemcachedStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	item, err := m.client.Get(memcachedKeyPrefix + key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item.Value, true, nil
}

// Set writes the slot with no expiration.
func (m *MemcachedStorage) Set(ctx context.Context, key string, value []byte) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return m.client.Set(&memcache.Item{Key: memcachedKeyPrefix + key, Value: value})
}

// Ping checks server reachability for /health.
func (m *MemcachedStorage) Ping() error {
	return m.client.Ping()
}

// Close drops idle connections.
func (m *MemcachedStorage) Close() error {
	return m.client.Close()
}
