package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/studio-service/internal/model"
)

var ErrNotFound = errors.New("not found")

type Repository struct {
	pool db.DBTX
	now  func() time.Time
}

func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// ChangeEvent is the payload of studio.catalog.changed.v1 and
// studio.schedule.changed.v1. Consumers only need to know that something
// changed; the fields help when reading the log.
type ChangeEvent struct {
	Entity     string `json:"entity"`
	Action     string `json:"action"`
	ID         string `json:"id,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// mutate runs fn in a transaction and records a change event with it.
func (r *Repository) mutate(ctx context.Context, topic, entity, action string, fn func(tx pgx.Tx) (string, error)) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := fn(tx)
	if err != nil {
		return err
	}
	evt, err := outbox.NewEvent(entity, id, topic, ChangeEvent{
		Entity:     entity,
		Action:     action,
		ID:         id,
		OccurredAt: r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, evt); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return tx.Commit(ctx)
}

func execOne(ctx context.Context, tx pgx.Tx, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrCreateProfile returns the single profile row, inserting an empty one
// on first use.
func (r *Repository) GetOrCreateProfile(ctx context.Context) (model.Profile, error) {
	if _, err := r.pool.Exec(ctx, `INSERT INTO profiles (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return model.Profile{}, err
	}
	var p model.Profile
	err := r.pool.QueryRow(ctx, `
		SELECT name, owner_name, whatsapp, address, email, avatar_url, history, mission, updated_at
		FROM profiles WHERE id = 1
	`).Scan(&p.Name, &p.OwnerName, &p.Whatsapp, &p.Address, &p.Email, &p.AvatarURL, &p.History, &p.Mission, &p.UpdatedAt)
	return p, err
}

func (r *Repository) UpdateProfile(ctx context.Context, p model.Profile) error {
	return r.mutate(ctx, kafkax.TopicCatalogChanged, "profile", "updated", func(tx pgx.Tx) (string, error) {
		_, err := tx.Exec(ctx, `
			INSERT INTO profiles (id, name, owner_name, whatsapp, address, email, avatar_url, history, mission)
			VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
				owner_name = EXCLUDED.owner_name,
				whatsapp = EXCLUDED.whatsapp,
				address = EXCLUDED.address,
				email = EXCLUDED.email,
				avatar_url = EXCLUDED.avatar_url,
				history = EXCLUDED.history,
				mission = EXCLUDED.mission,
				updated_at = now()
		`, p.Name, p.OwnerName, p.Whatsapp, p.Address, p.Email, p.AvatarURL, p.History, p.Mission)
		return "1", err
	})
}

// SeedProfile stores p only when no profile exists yet.
func (r *Repository) SeedProfile(ctx context.Context, p model.Profile) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (id, name, owner_name, whatsapp, address, email, avatar_url, history, mission)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, p.Name, p.OwnerName, p.Whatsapp, p.Address, p.Email, p.AvatarURL, p.History, p.Mission)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const serviceColumns = `
	id::text, name, (price * 100)::bigint, description, long_description,
	duration, duration_minutes, maintenance, image_url, created_at, updated_at`

func scanService(row pgx.Row) (model.Service, error) {
	var s model.Service
	var cents int64
	err := row.Scan(&s.ID, &s.Name, &cents, &s.Description, &s.LongDescription,
		&s.Duration, &s.DurationMinutes, &s.Maintenance, &s.ImageURL, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Service{}, ErrNotFound
		}
		return model.Service{}, err
	}
	s.Price = money.Amount(cents)
	s.PriceLabel = s.Price.String()
	return s, nil
}

func (r *Repository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, id string) (model.Service, error) {
	return scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
}

func (r *Repository) CreateService(ctx context.Context, s *model.Service) error {
	return r.mutate(ctx, kafkax.TopicCatalogChanged, "service", "created", func(tx pgx.Tx) (string, error) {
		err := tx.QueryRow(ctx, `
			INSERT INTO services (name, price, description, long_description, duration, duration_minutes, maintenance, image_url)
			VALUES ($1, $2::bigint / 100.0, $3, $4, $5, $6, $7, $8)
			RETURNING id::text, created_at, updated_at
		`, s.Name, int64(s.Price), s.Description, s.LongDescription, s.Duration, s.DurationMinutes, s.Maintenance, s.ImageURL,
		).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
		return s.ID, err
	})
}

func (r *Repository) UpdateService(ctx context.Context, s model.Service) error {
	return r.mutate(ctx, kafkax.TopicCatalogChanged, "service", "updated", func(tx pgx.Tx) (string, error) {
		return s.ID, execOne(ctx, tx, `
			UPDATE services
			SET name = $2, price = $3::bigint / 100.0, description = $4, long_description = $5,
				duration = $6, duration_minutes = $7, maintenance = $8, image_url = $9, updated_at = now()
			WHERE id = $1
		`, s.ID, s.Name, int64(s.Price), s.Description, s.LongDescription, s.Duration, s.DurationMinutes, s.Maintenance, s.ImageURL)
	})
}

// DeleteService removes a catalog entry. Appointments keep their name and
// price snapshot.
func (r *Repository) DeleteService(ctx context.Context, id string) error {
	return r.mutate(ctx, kafkax.TopicCatalogChanged, "service", "deleted", func(tx pgx.Tx) (string, error) {
		return id, execOne(ctx, tx, `DELETE FROM services WHERE id = $1`, id)
	})
}

func (r *Repository) CountServices(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM services`).Scan(&n)
	return n, err
}

func (r *Repository) ListClients(ctx context.Context) ([]model.Client, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, name, whatsapp, notes, created_at FROM clients ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Client{}
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Whatsapp, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreateClient(ctx context.Context, c *model.Client) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO clients (name, whatsapp, notes) VALUES ($1, $2, $3)
		RETURNING id::text, created_at
	`, c.Name, c.Whatsapp, c.Notes).Scan(&c.ID, &c.CreatedAt)
}

func (r *Repository) UpdateClient(ctx context.Context, c model.Client) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE clients SET name = $2, whatsapp = $3, notes = $4, updated_at = now() WHERE id = $1
	`, c.ID, c.Name, c.Whatsapp, c.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteClient(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ListHours(ctx context.Context) ([]model.OperatingHours, error) {
	rows, err := r.pool.Query(ctx, `SELECT day_of_week, is_open, slots FROM operating_hours ORDER BY day_of_week`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperatingHours
	for rows.Next() {
		var (
			h   model.OperatingHours
			raw []byte
		)
		if err := rows.Scan(&h.DayOfWeek, &h.IsOpen, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &h.Slots); err != nil {
			return nil, fmt.Errorf("decode slots for day %d: %w", h.DayOfWeek, err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// UpsertHours replaces the listed weekdays; other weekdays keep their rows.
func (r *Repository) UpsertHours(ctx context.Context, days []model.OperatingHours) error {
	return r.mutate(ctx, kafkax.TopicScheduleChanged, "operating_hours", "updated", func(tx pgx.Tx) (string, error) {
		for _, d := range days {
			slots := d.Slots
			if slots == nil {
				slots = []model.TimeRange{}
			}
			raw, err := json.Marshal(slots)
			if err != nil {
				return "", err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO operating_hours (day_of_week, is_open, slots)
				VALUES ($1, $2, $3::jsonb)
				ON CONFLICT (day_of_week) DO UPDATE
				SET is_open = EXCLUDED.is_open, slots = EXCLUDED.slots, updated_at = now()
			`, d.DayOfWeek, d.IsOpen, string(raw)); err != nil {
				return "", err
			}
		}
		return "week", nil
	})
}

// ListBlocks returns blocks newest first.
func (r *Repository) ListBlocks(ctx context.Context) ([]model.AgendaBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), reason, created_at
		FROM agenda_blocks
		ORDER BY start_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.AgendaBlock{}
	for rows.Next() {
		var b model.AgendaBlock
		if err := rows.Scan(&b.ID, &b.StartDate, &b.EndDate, &b.Reason, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) CreateBlock(ctx context.Context, b *model.AgendaBlock) error {
	return r.mutate(ctx, kafkax.TopicScheduleChanged, "agenda_block", "created", func(tx pgx.Tx) (string, error) {
		err := tx.QueryRow(ctx, `
			INSERT INTO agenda_blocks (start_date, end_date, reason)
			VALUES ($1::date, $2::date, $3)
			RETURNING id::text, created_at
		`, b.StartDate, b.EndDate, b.Reason).Scan(&b.ID, &b.CreatedAt)
		return b.ID, err
	})
}

func (r *Repository) DeleteBlock(ctx context.Context, id string) error {
	return r.mutate(ctx, kafkax.TopicScheduleChanged, "agenda_block", "deleted", func(tx pgx.Tx) (string, error) {
		return id, execOne(ctx, tx, `DELETE FROM agenda_blocks WHERE id = $1`, id)
	})
}
