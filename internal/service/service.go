package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/cache"
	"github.com/kjstillabower/weather-dashboard/internal/client"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherService serves weather lookups cache-aside: cache first, upstream
// provider on miss, cache populated on success.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	cacheType string
	ttl       time.Duration
	coalescer *requestCoalescer // nil when coalescing is disabled
}

// Options configures a WeatherService. Zero CoalesceTimeout disables coalescing.
type Options struct {
	CacheType       string
	TTL             time.Duration
	CoalesceTimeout time.Duration
}

func NewWeatherService(c client.WeatherClient, wc cache.Cache, opts Options) *WeatherService {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.CacheType == "" {
		opts.CacheType = "in_memory"
	}
	var coalescer *requestCoalescer
	if opts.CoalesceTimeout > 0 {
		coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return &WeatherService{
		client:    c,
		cache:     wc,
		cacheType: opts.CacheType,
		ttl:       opts.TTL,
		coalescer: coalescer,
	}
}

// GetWeather returns weather for city. Errors wrap the client sentinels, so
// callers can test for client.ErrCityNotFound with errors.Is.
func (s *WeatherService) GetWeather(ctx context.Context, city string) (models.WeatherResult, error) {
	key := normalizeCity(city)
	start := time.Now()
	logger := observability.LoggerFrom(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		if logger != nil {
			logger.Warn("cache get failed", zap.String("city", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues(s.cacheType).Inc()
		if logger != nil {
			logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	fetch := func(ctx context.Context) (models.WeatherResult, error) {
		return s.client.GetCurrentWeather(ctx, strings.TrimSpace(city))
	}
	var data models.WeatherResult
	if s.coalescer != nil {
		var shared bool
		data, shared, err = s.coalescer.GetOrDo(ctx, key, fetch)
		if shared && logger != nil {
			logger.Debug("coalesced upstream fetch", zap.String("city", key))
		}
	} else {
		data, err = fetch(ctx)
	}
	if err != nil {
		return models.WeatherResult{}, fmt.Errorf("fetch weather for %s: %w", key, err)
	}

	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		if logger != nil {
			logger.Warn("cache set failed", zap.String("city", key), zap.Error(setErr))
		}
	}
	if logger != nil {
		logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

// ValidateUpstream checks the provider credentials. Used by /health.
func (s *WeatherService) ValidateUpstream(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

// normalizeCity builds the cache key: trimmed and lowercased.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
