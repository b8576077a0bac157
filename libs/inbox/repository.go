package inbox

import (
	"context"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
)

// Repository records consumed events per consumer so redeliveries are ignored.
type Repository struct {
	q db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{q: q}
}

// Record returns false when consumer already processed eventID.
func (r *Repository) Record(ctx context.Context, consumer, eventID, eventType string) (bool, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO inbox_events (consumer, event_id, event_type)
		VALUES ($1, $2, $3)
	`, consumer, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (r *Repository) Forget(ctx context.Context, consumer, eventID string) error {
	_, err := r.q.Exec(ctx, `DELETE FROM inbox_events WHERE consumer = $1 AND event_id = $2`, consumer, eventID)
	return err
}
