package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
)

const insertSQL = `INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
VALUES ($1, $2, $3, $4, $5, $6)`

// Insert stores evt using q, which is normally the transaction that also
// carries the state change the event describes. The caller's span becomes
// the parent of the eventual Kafka message.
func Insert(ctx context.Context, q db.Querier, evt Event) error {
	return InsertAll(ctx, q, evt)
}

// InsertAll stores events in order and stops at the first failure.
func InsertAll(ctx context.Context, q db.Querier, events ...Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	for _, evt := range events {
		if _, err := q.Exec(ctx, insertSQL,
			evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate,
		); err != nil {
			return err
		}
	}
	return nil
}

// Record is a pending outbox row. Field order follows the SELECT below.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}

// FetchUnpublished locks up to limit pending rows, oldest first. Rows held by
// another publisher are skipped rather than waited on.
func FetchUnpublished(ctx context.Context, q db.Querier, limit int) ([]Record, error) {
	rows, err := q.Query(ctx, `
		SELECT id, event_id::text, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Record])
}

func MarkPublished(ctx context.Context, q db.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}

// PurgePublished deletes rows relayed before cutoff. Unpublished rows are
// never touched.
func PurgePublished(ctx context.Context, q db.Querier, cutoff time.Time) (int64, error) {
	tag, err := q.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE published_at IS NOT NULL AND published_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
