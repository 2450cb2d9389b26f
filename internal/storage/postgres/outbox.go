package postgres

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/events"
)

// outboxSource reads unpublished outbox rows for the event relay.
type outboxSource struct {
	db querier
}

var _ events.Source = (*outboxSource)(nil)

func (s *outboxSource) Unpublished(ctx context.Context, limit int) ([]events.Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		FROM outbox WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e       events.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan outbox row")
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "iterate outbox")
}

func (s *outboxSource) MarkPublished(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx,
		`UPDATE outbox SET published_at = now() WHERE id = ANY($1)`,
		ids,
	)
	return errors.Wrap(err, "mark published")
}
