// Package scheduling reads the studio data the booking rules depend on:
// weekly hours, agenda blocks, the service catalog and the profile.
package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

var ErrServiceNotFound = errors.New("service not found")

type Provider interface {
	OperatingHours(ctx context.Context) ([]model.OperatingHours, error)
	// AgendaBlocks returns blocks overlapping [from, to]. Empty bounds are open.
	AgendaBlocks(ctx context.Context, from, to string) ([]model.AgendaBlock, error)
	Services(ctx context.Context) ([]model.Service, error)
	Service(ctx context.Context, id string) (model.Service, error)
	Studio(ctx context.Context) (model.Studio, error)
}

// PostgresProvider reads the tables studio-service owns in the shared database.
type PostgresProvider struct {
	q db.Querier
}

func NewPostgresProvider(q db.Querier) *PostgresProvider {
	return &PostgresProvider{q: q}
}

func (p *PostgresProvider) OperatingHours(ctx context.Context) ([]model.OperatingHours, error) {
	rows, err := p.q.Query(ctx, `
		SELECT day_of_week, is_open, slots
		FROM operating_hours
		ORDER BY day_of_week
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []model.OperatingHours
	for rows.Next() {
		var (
			oh  model.OperatingHours
			raw []byte
		)
		if err := rows.Scan(&oh.DayOfWeek, &oh.IsOpen, &raw); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &oh.Slots); err != nil {
				return nil, fmt.Errorf("decode slots for day %d: %w", oh.DayOfWeek, err)
			}
		}
		hours = append(hours, oh)
	}
	return hours, rows.Err()
}

func (p *PostgresProvider) AgendaBlocks(ctx context.Context, from, to string) ([]model.AgendaBlock, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id::text, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), reason
		FROM agenda_blocks
		WHERE ($1 = '' OR end_date >= $1::date)
			AND ($2 = '' OR start_date <= $2::date)
		ORDER BY start_date
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []model.AgendaBlock
	for rows.Next() {
		var b model.AgendaBlock
		if err := rows.Scan(&b.ID, &b.StartDate, &b.EndDate, &b.Reason); err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (p *PostgresProvider) Services(ctx context.Context) ([]model.Service, error) {
	rows, err := p.q.Query(ctx, `
		SELECT id::text, name, (price * 100)::bigint, duration_minutes
		FROM services
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (p *PostgresProvider) Service(ctx context.Context, id string) (model.Service, error) {
	s, err := scanService(p.q.QueryRow(ctx, `
		SELECT id::text, name, (price * 100)::bigint, duration_minutes
		FROM services
		WHERE id::text = $1
	`, id))
	if db.IsNotFound(err) {
		return model.Service{}, ErrServiceNotFound
	}
	return s, err
}

func (p *PostgresProvider) Studio(ctx context.Context) (model.Studio, error) {
	var s model.Studio
	err := p.q.QueryRow(ctx, `SELECT name, whatsapp, address FROM profiles WHERE id = 1`).
		Scan(&s.Name, &s.Whatsapp, &s.Address)
	if db.IsNotFound(err) {
		return model.Studio{}, nil
	}
	return s, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanService(row scanner) (model.Service, error) {
	var (
		s     model.Service
		cents int64
	)
	if err := row.Scan(&s.ID, &s.Name, &cents, &s.DurationMinutes); err != nil {
		return model.Service{}, err
	}
	s.Price = money.Amount(cents)
	return s, nil
}
