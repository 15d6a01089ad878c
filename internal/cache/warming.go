package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// WeatherFetcher is implemented by the service layer. Declared here to avoid
// an import cycle with the service package.
type WeatherFetcher interface {
	GetWeather(ctx context.Context, city string) (models.WeatherResult, error)
}

// Warmer prefetches weather for a fixed list of cities so the first
// dashboard lookup for them is a cache hit.
type Warmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewWarmer creates a Warmer. logger may be nil.
func NewWarmer(fetcher WeatherFetcher, logger *zap.Logger) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger}
}

// Warm fetches every city concurrently. Returns the joined per-city errors.
func (w *Warmer) Warm(ctx context.Context, cities []string) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming cache", zap.Int("cities", len(cities)))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, city := range cities {
		wg.Add(1)
		go func(city string) {
			defer wg.Done()
			if _, err := w.fetcher.GetWeather(ctx, city); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", city, err))
				mu.Unlock()
			}
		}(city)
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("cache warming complete", zap.Int("cities", len(cities)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// Schedule registers a Warm run on sched using a cron spec such as
// "@every 30m" or "*/15 * * * *". The caller owns sched's Start/Stop.
func (w *Warmer) Schedule(ctx context.Context, sched *cron.Cron, spec string, cities []string) (cron.EntryID, error) {
	id, err := sched.AddFunc(spec, func() {
		if err := w.Warm(ctx, cities); err != nil && w.logger != nil {
			w.logger.Warn("scheduled cache warm failed", zap.Error(err))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("schedule cache warming %q: %w", spec, err)
	}
	return id, nil
}
