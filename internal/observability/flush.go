package observability

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// FlushTelemetry releases resources and flushes log buffers before process exit.
// Closers run in order and the logger is synced last so close failures still get logged.
func FlushTelemetry(ctx context.Context, logger *zap.Logger, closers ...io.Closer) error {
	var err error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if cerr := c.Close(); cerr != nil {
			if logger != nil {
				logger.Warn("close on shutdown", zap.Error(cerr))
			}
			err = multierr.Append(err, cerr)
		}
	}
	if ctx.Err() != nil {
		return multierr.Append(err, ctx.Err())
	}
	if logger != nil {
		if serr := logger.Sync(); serr != nil {
			err = multierr.Append(err, fmt.Errorf("flush logs: %w", serr))
		}
	}
	return err
}
