package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-dashboard/internal/models"
)

// inFlightCall is one upstream fetch that concurrent callers share.
type inFlightCall struct {
	done   chan struct{}
	result models.WeatherResult
	err    error
}

// requestCoalescer collapses concurrent cache misses for the same key into a
// single upstream call. The call runs on a context detached from the caller
// that started it, bounded by timeout, so one caller going away does not fail
// the others. Callers stop waiting after timeout or when their own ctx ends.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightCall
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*inFlightCall),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of fn for key, running fn at most once per set
// of overlapping callers. shared is true when this caller joined a call
// started by someone else.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.WeatherResult, error)) (result models.WeatherResult, shared bool, err error) {
	rc.mu.Lock()
	call, exists := rc.inFlight[key]
	if !exists {
		call = &inFlightCall{done: make(chan struct{})}
		rc.inFlight[key] = call
		go rc.run(ctx, key, call, fn)
	}
	rc.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-call.done:
		return call.result, exists, call.err
	case <-waitCtx.Done():
		return models.WeatherResult{}, exists, waitCtx.Err()
	}
}

// run keeps ctx values (logger, correlation ID) but not its cancellation.
func (rc *requestCoalescer) run(ctx context.Context, key string, call *inFlightCall, fn func(context.Context) (models.WeatherResult, error)) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	call.result, call.err = fn(fetchCtx)
	cancel()

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(call.done)
}
