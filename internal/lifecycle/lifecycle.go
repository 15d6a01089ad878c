// Package lifecycle tracks process shutdown: the draining flag read by
// /health and the ordered release of backend connections.
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

type closer struct {
	name string
	fn   func() error
}

// Closers releases resources in reverse registration order.
type Closers struct {
	mu    sync.Mutex
	items []closer
}

// Add registers fn under name. Nil fn is ignored.
func (c *Closers) Add(name string, fn func() error) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, closer{name: name, fn: fn})
}

// CloseAll runs every registered closer once, last added first, and joins
// their errors. Failures are logged when logger is non-nil.
func (c *Closers) CloseAll(logger *zap.Logger) error {
	c.mu.Lock()
	items := c.items
	c.items = nil
	c.mu.Unlock()

	var errs []error
	for i := len(items) - 1; i >= 0; i-- {
		if err := items[i].fn(); err != nil {
			if logger != nil {
				logger.Error("close failed", zap.String("resource", items[i].name), zap.Error(err))
			}
			errs = append(errs, fmt.Errorf("close %s: %w", items[i].name, err))
		}
	}
	return errors.Join(errs...)
}
