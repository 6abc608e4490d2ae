package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pairchat/internal/domain"
	"github.com/ashureev/pairchat/internal/shared"
)

const (
	busyMaxRetries = 3
	busyBaseDelay  = 50 * time.Millisecond
)

// withBusyRetry runs fn, retrying with exponential backoff while SQLite reports
// SQLITE_BUSY or a locked database. A busy statement never executed, so a retry
// cannot duplicate a write.
func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyMaxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == busyMaxRetries-1 {
			return err
		}

		delay := busyBaseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// classifyWriteError maps a driver error onto the domain taxonomy.
func classifyWriteError(op string, err error) error {
	switch {
	case shared.IsSQLiteForeignKeyError(err):
		return fmt.Errorf("%w: unknown participant", domain.ErrValidation)
	case shared.IsSQLiteUniqueError(err):
		return fmt.Errorf("%w: %s", domain.ErrConflict, op)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
	}
}
