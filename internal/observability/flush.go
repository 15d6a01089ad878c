package observability

import (
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry syncs the logger during shutdown. Metrics are pull-based
// and need no flush.
func FlushTelemetry(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
