package storage

import (
	"context"
	"errors"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
)

var ErrNotFound = errors.New("not found")

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	AppointmentID string
	Kind          string
	Channel       string
	Recipient     string
	Message       string
	Link          string
	Status        string
	Error         string
}

// Appointment is the current state of a booking as stored by booking-service.
type Appointment struct {
	ID             string
	ServiceName    string
	ClientName     string
	ClientWhatsapp string
	Date           string
	Time           string
	Status         string
}

type Studio struct {
	Name     string
	Address  string
	Whatsapp string
}

type Repository struct {
	pool db.DBTX
}

func NewRepository(pool db.DBTX) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Appointment(ctx context.Context, id string) (Appointment, error) {
	a := Appointment{ID: id}
	err := r.pool.QueryRow(ctx, `
		SELECT service_name, client_name, client_whatsapp, to_char(date, 'YYYY-MM-DD'), time, status
		FROM appointments
		WHERE id = $1
	`, id).Scan(&a.ServiceName, &a.ClientName, &a.ClientWhatsapp, &a.Date, &a.Time, &a.Status)
	if db.IsNotFound(err) {
		return Appointment{}, ErrNotFound
	}
	return a, err
}

// Studio returns the profile used to sign messages; an unseeded studio yields
// the zero value.
func (r *Repository) Studio(ctx context.Context) (Studio, error) {
	var s Studio
	err := r.pool.QueryRow(ctx, `
		SELECT name, address, whatsapp FROM profiles WHERE id = 1
	`).Scan(&s.Name, &s.Address, &s.Whatsapp)
	if db.IsNotFound(err) {
		return Studio{}, nil
	}
	return s, err
}

// Record stores the notification and its outcome event in one transaction.
func (r *Repository) Record(ctx context.Context, n Notification, evt outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO notifications (appointment_id, kind, channel, recipient, message, link, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.AppointmentID, n.Kind, n.Channel, n.Recipient, n.Message, n.Link, n.Status, n.Error); err != nil {
		return err
	}
	if err := outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
