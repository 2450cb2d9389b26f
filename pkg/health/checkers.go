package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// Pinger matches database pools and clients exposing a Ping method.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a database or broker connection.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		return errors.Wrap(p.Ping(ctx), "ping")
	}
}

// GoroutineCheck flags a goroutine leak once the count passes limit.
func GoroutineCheck(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// StalenessCheck fails when the supplied timestamp source falls further than
// maxLag behind. Used to watch the outbox relay.
func StalenessCheck(lastProgress func() time.Time, maxLag time.Duration) CheckFunc {
	return func(_ context.Context) error {
		if lag := time.Since(lastProgress()); lag > maxLag {
			return errors.Errorf("no progress for %s", lag.Truncate(time.Second))
		}
		return nil
	}
}
