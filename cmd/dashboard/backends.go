package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/lifecycle"
	"github.com/kjstillabower/weather-dashboard/internal/recent"
)

// backends holds the constructed storage layers and their health probes.
type backends struct {
	cache       cache.Cache
	sqlite      *cache.SQLiteCache // set only for the sqlite backend
	cachePing   func(ctx context.Context) error
	storage     recent.Storage
	storagePing func(ctx context.Context) error
}

// buildBackends constructs the weather cache and the recent-searches
// storage. A single redis client is shared when both use redis. Everything
// that needs releasing is registered on closers.
func buildBackends(cfg *config.Config, closers *lifecycle.Closers) (*backends, error) {
	var redisClient *redis.Client
	sharedRedis := func() (*redis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		closers.Add("redis", redisClient.Close)
		return redisClient, nil
	}

	b := &backends{}
	switch cfg.CacheBackend {
	case "memcached":
		mc := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		closers.Add("memcached cache", mc.Close)
		b.cache = mc
		b.cachePing = func(context.Context) error { return mc.Ping() }
	case "redis":
		client, err := sharedRedis()
		if err != nil {
			return nil, err
		}
		rc := cache.NewRedisCache(client)
		b.cache = rc
		b.cachePing = rc.Ping
	case "sqlite":
		if err := ensureDir(cfg.SQLitePath); err != nil {
			return nil, err
		}
		sc, err := cache.NewSQLiteCache(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		closers.Add("sqlite", sc.Close)
		b.cache = sc
		b.sqlite = sc
		b.cachePing = sc.Ping
	default:
		b.cache = cache.NewInMemoryCache()
	}

	switch cfg.RecentBackend {
	case "file":
		if err := ensureDir(cfg.RecentFilePath); err != nil {
			return nil, err
		}
		b.storage = recent.NewFileStorage(cfg.RecentFilePath)
	case "memcached":
		ms := recent.NewMemcachedStorage(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		closers.Add("memcached recent storage", ms.Close)
		b.storage = ms
		b.storagePing = func(context.Context) error { return ms.Ping() }
	case "redis":
		client, err := sharedRedis()
		if err != nil {
			return nil, err
		}
		rs := recent.NewRedisStorageFromClient(client)
		b.storage = rs
		b.storagePing = rs.Ping
	default:
		b.storage = recent.NewMemoryStorage()
	}
	return b, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

// expiredPruner is the part of the sqlite cache the prune job needs.
type expiredPruner interface {
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// pruneJob returns the cron func that drops history rows past their TTL.
func pruneJob(ctx context.Context, p expiredPruner, now func() time.Time, logger *zap.Logger) func() {
	return func() {
		n, err := p.PruneExpired(ctx, now())
		if err != nil {
			logger.Warn("sqlite prune failed", zap.Error(err))
			return
		}
		logger.Info("sqlite pruned", zap.Int64("rows", n))
	}
}
