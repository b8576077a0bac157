package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/money"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

const activeSlotConstraint = "appointments_active_slot_key"

var (
	ErrNotFound        = errors.New("appointment not found")
	ErrSlotUnavailable = errors.New("slot no longer available")
)

type AppointmentRepository struct {
	pool db.DBTX
}

func NewAppointmentRepository(pool db.DBTX) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

func (r *AppointmentRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id::text, service_id::text, service_name, (service_price * 100)::bigint,
	client_name, client_whatsapp, to_char(date, 'YYYY-MM-DD'), time, status,
	created_at, updated_at`

func (r *AppointmentRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error {
	if appt.Status == "" {
		appt.Status = model.StatusScheduled
	}
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(service_id, service_name, service_price, client_name, client_whatsapp, date, time, status)
		VALUES ($1, $2, $3::bigint / 100.0, $4, $5, $6::date, $7, $8)
		RETURNING id::text, created_at, updated_at
	`, appt.ServiceID, appt.ServiceName, int64(appt.ServicePrice), appt.ClientName, appt.ClientWhatsapp,
		appt.Date, appt.Time, string(appt.Status)).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	return mapWriteError(err)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanOne(r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r *AppointmentRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanOne(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

// ActiveOn returns the appointments holding a slot on date. Inside a write
// transaction it is the source for re-evaluating availability.
func (r *AppointmentRepository) ActiveOn(ctx context.Context, q db.Querier, date string) ([]model.Appointment, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE date = $1::date AND status <> 'CANCELLED'
		ORDER BY time ASC
	`, date)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

type ListFilter struct {
	Status   model.Status
	From, To string
	Limit    int
}

// List returns appointments newest date first.
func (r *AppointmentRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 500
	}
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY date DESC, time DESC LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// All returns every appointment, for dashboard totals.
func (r *AppointmentRepository) All(ctx context.Context) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments ORDER BY date, time`)
	if err != nil {
		return nil, err
	}
	return scanAll(rows)
}

// Reschedule moves the appointment in place. It keeps its id.
func (r *AppointmentRepository) Reschedule(ctx context.Context, tx pgx.Tx, id, date, clock string) (model.Appointment, error) {
	appt, err := scanOne(tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2::date, time = $3, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, date, clock))
	if err != nil {
		return model.Appointment{}, mapWriteError(err)
	}
	return appt, nil
}

// UpdateStatus can fail with ErrSlotUnavailable when a cancelled appointment
// is reactivated on a slot somebody else took.
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status model.Status) (model.Appointment, error) {
	appt, err := scanOne(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, string(status)))
	if err != nil {
		return model.Appointment{}, mapWriteError(err)
	}
	return appt, nil
}

func (r *AppointmentRepository) Delete(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	return scanOne(tx.QueryRow(ctx, `DELETE FROM appointments WHERE id = $1 RETURNING `+appointmentColumns, id))
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, activeSlotConstraint):
		return ErrSlotUnavailable
	case db.IsNotFound(err):
		return ErrNotFound
	default:
		return err
	}
}

func scanOne(row pgx.Row) (model.Appointment, error) {
	appt, err := scanAppointment(row)
	if db.IsNotFound(err) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func scanAll(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		appt   model.Appointment
		cents  int64
		status string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.ServiceID,
		&appt.ServiceName,
		&cents,
		&appt.ClientName,
		&appt.ClientWhatsapp,
		&appt.Date,
		&appt.Time,
		&status,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return model.Appointment{}, err
	}
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = parsed
	appt.ServicePrice = money.Amount(cents)
	return appt, nil
}
