package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Relay drains the outbox to a sink. Rows are marked published only after the
// sink accepts them, so delivery is at-least-once across restarts.
type Relay struct {
	source    Source
	sink      Sink
	lg        *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewRelay creates a relay polling source every interval, publishing at most
// batchSize events per tick.
func NewRelay(source Source, sink Sink, lg *zap.Logger, interval time.Duration, batchSize int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		source:    source,
		sink:      sink,
		lg:        lg,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until the context is cancelled. Errors are logged and the next
// tick retries; the relay never crashes the process.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.lg.Error("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// Drain publishes one batch of unpublished events.
func (r *Relay) Drain(ctx context.Context) error {
	batch, err := r.source.Unpublished(ctx, r.batchSize)
	if err != nil {
		return errors.Wrap(err, "read outbox")
	}
	if len(batch) == 0 {
		return nil
	}

	published := make([]string, 0, len(batch))
	for _, e := range batch {
		if err := r.sink.Publish(ctx, e); err != nil {
			// Stop the batch here; unpublished rows are retried next tick.
			r.lg.Warn("publish event failed",
				zap.String("event_id", e.ID),
				zap.String("type", string(e.Type)),
				zap.Error(err))
			break
		}
		published = append(published, e.ID)
	}
	if len(published) == 0 {
		return nil
	}

	if err := r.source.MarkPublished(ctx, published); err != nil {
		return errors.Wrap(err, "mark published")
	}
	r.lg.Debug("outbox drained", zap.Int("published", len(published)))
	return nil
}

// LogSink writes events to the logger. Used when no broker is configured.
type LogSink struct {
	lg *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink.
func NewLogSink(lg *zap.Logger) *LogSink {
	return &LogSink{lg: lg}
}

func (s *LogSink) Publish(_ context.Context, e Event) error {
	s.lg.Info("event",
		zap.String("event_id", e.ID),
		zap.String("type", string(e.Type)),
		zap.String("aggregate_type", e.AggregateType),
		zap.String("aggregate_id", e.AggregateID),
		zap.ByteString("payload", e.Payload))
	return nil
}
