package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
)

const (
	EventLoginSucceeded  = "login.succeeded"
	EventLoginFailed     = "login.failed"
	EventPasswordChanged = "password.changed"
	EventAdminBootstrap  = "admin.bootstrapped"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type Repository struct {
	pool db.DBTX
	now  func() time.Time
}

func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// published is the auth.audit.v1 payload.
type published struct {
	EventType string         `json:"event_type"`
	ActorID   string         `json:"actor_id"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"created_at"`
}

// Record stores an audit row and its auth.audit.v1 outbox event using q.
// Pass a transaction to commit them with the change they describe, or nil to
// use a transaction of its own.
func (r *Repository) Record(ctx context.Context, q db.Querier, eventType, actorID string, metadata map[string]any) error {
	if q == nil {
		return db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
			return r.Record(ctx, tx, eventType, actorID, metadata)
		})
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("audit metadata: %w", err)
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO audit_events (event_type, actor_id, metadata) VALUES ($1, NULLIF($2, '')::uuid, $3)`,
		eventType, actorID, raw,
	); err != nil {
		return err
	}

	// Anonymous events (failed logins for unknown emails) share one key.
	key := actorID
	if key == "" {
		key = "anonymous"
	}
	evt, err := outbox.NewEvent("audit_event", key, kafkax.TopicAuthAudit, published{
		EventType: eventType,
		ActorID:   actorID,
		Metadata:  metadata,
		CreatedAt: r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, q, evt)
}

type Event struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"created_at"`
}

// Query pages backwards through the log. Before is an event id cursor; zero
// starts from the newest row.
type Query struct {
	Type   string
	Before int64
	Limit  int
}

func (q Query) limit() int {
	if q.Limit <= 0 || q.Limit > maxLimit {
		return defaultLimit
	}
	return q.Limit
}

func (r *Repository) ListRecent(ctx context.Context, q Query) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if t := strings.TrimSpace(q.Type); t != "" {
		args = append(args, t)
		where = append(where, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if q.Before > 0 {
		args = append(args, q.Before)
		where = append(where, fmt.Sprintf("id < $%d", len(args)))
	}
	sql := `SELECT id, event_type, COALESCE(actor_id::text, ''), metadata, created_at FROM audit_events`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.limit())
	sql += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	events, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Event])
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].CreatedAt = events[i].CreatedAt.UTC()
	}
	return events, nil
}
