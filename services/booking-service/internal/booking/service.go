// Package booking runs the appointment write paths: every write re-checks
// availability inside its transaction and records its events in the outbox
// before committing.
package booking

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/whatsapp"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/availability"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/calendar"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/policy"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/scheduling"
	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/storage"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrOutsideHours     = errors.New("requested time is outside opening hours")
	ErrDateBlocked      = errors.New("requested date is blocked")
	ErrInPast           = errors.New("requested time is in the past")
	ErrNotReschedulable = errors.New("only scheduled appointments can be rescheduled")
)

// Repository is the storage the write paths need.
type Repository interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) error
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	ActiveOn(ctx context.Context, q db.Querier, date string) ([]model.Appointment, error)
	Reschedule(ctx context.Context, tx pgx.Tx, id, date, clock string) (model.Appointment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status model.Status) (model.Appointment, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key, fingerprint string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, appointmentID string, statusCode int, response []byte) error
}

type Config struct {
	Location *time.Location
	SlotStep time.Duration
}

type Service struct {
	repo     Repository
	schedule scheduling.Provider
	policy   policy.Provider
	metrics  *metrics.BookingMetrics
	logger   *slog.Logger
	loc      *time.Location
	step     time.Duration
	now      func() time.Time
	events   eventWriter
}

func NewService(repo Repository, schedule scheduling.Provider, pol policy.Provider, m *metrics.BookingMetrics, logger *slog.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SlotStep < time.Minute {
		cfg.SlotStep = 30 * time.Minute
	}
	return &Service{
		repo:     repo,
		schedule: schedule,
		policy:   pol,
		metrics:  m,
		logger:   logger,
		loc:      cfg.Location,
		step:     cfg.SlotStep,
		now:      time.Now,
		events:   outbox.InsertAll,
	}
}

// Now is the current time in the studio's time zone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) Location() *time.Location { return s.loc }

type BookRequest struct {
	ServiceID      string
	ClientName     string
	ClientWhatsapp string
	Date           string
	Time           string
	// AllowPast lets the admin register appointments that already happened.
	AllowPast bool
	// IdempotencyKey makes a retried submission return the first result.
	IdempotencyKey string
}

// fingerprint identifies the booking a request asks for, after date and time
// normalization, so "2025-6-10" and "2025-06-10" count as the same request.
func (r BookRequest) fingerprint(date, clock string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		r.ServiceID, strings.ToLower(r.ClientName), whatsapp.DigitsOnly(r.ClientWhatsapp), date, clock,
	}, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func (s *Service) normalize(date, clock string) (string, string, error) {
	d, err := calendar.NormalizeDate(date, s.Now())
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	c, err := calendar.NormalizeClock(clock)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return d, c, nil
}

// Book creates an appointment. The returned bool is true when the result is
// a replay of an earlier request with the same idempotency key.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, bool, error) {
	start := time.Now()
	appt, replayed, err := s.book(ctx, req)
	s.metrics.ObserveWrite("book", outcome(err), time.Since(start).Seconds())
	return appt, replayed, err
}

func (s *Service) book(ctx context.Context, req BookRequest) (model.Appointment, bool, error) {
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientWhatsapp = strings.TrimSpace(req.ClientWhatsapp)
	if req.ServiceID == "" || req.ClientName == "" || req.ClientWhatsapp == "" {
		return model.Appointment{}, false, fmt.Errorf("%w: service_id, client_name and client_whatsapp are required", ErrInvalidInput)
	}
	date, clock, err := s.normalize(req.Date, req.Time)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !req.AllowPast {
		at, err := calendar.At(date, clock, s.loc)
		if err != nil {
			return model.Appointment{}, false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		if !at.After(s.now()) {
			return model.Appointment{}, false, ErrInPast
		}
	}

	svc, err := s.schedule.Service(ctx, req.ServiceID)
	if err != nil {
		return model.Appointment{}, false, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.IdempotencyKey != "" {
		fp := req.fingerprint(date, clock)
		rec, found, err := s.repo.LockIdempotencyKey(ctx, tx, req.IdempotencyKey, fp)
		if err != nil {
			return model.Appointment{}, false, fmt.Errorf("lock idempotency key: %w", err)
		}
		if !rec.Matches(fp) {
			return model.Appointment{}, false, storage.ErrKeyReused
		}
		if found && rec.Completed() {
			var prev model.Appointment
			if err := json.Unmarshal(rec.ResponsePayload, &prev); err != nil {
				return model.Appointment{}, false, fmt.Errorf("decode stored response: %w", err)
			}
			return prev, true, tx.Commit(ctx)
		}
	}

	if err := s.ensureAvailable(ctx, tx, date, clock, svc.ID, ""); err != nil {
		return model.Appointment{}, false, err
	}

	appt := model.Appointment{
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		ServicePrice:   svc.Price,
		ClientName:     req.ClientName,
		ClientWhatsapp: req.ClientWhatsapp,
		Date:           date,
		Time:           clock,
		Status:         model.StatusScheduled,
	}
	if err := s.repo.Create(ctx, tx, &appt); err != nil {
		return model.Appointment{}, false, err
	}

	booked, err := appointmentEvent(kafkax.TopicAppointmentBooked, appt, nil, s.now())
	if err != nil {
		return model.Appointment{}, false, err
	}
	reminders, err := s.reminders(ctx, appt)
	if err != nil {
		return model.Appointment{}, false, err
	}
	if err := s.events(ctx, tx, append([]outbox.Event{booked}, reminders...)...); err != nil {
		return model.Appointment{}, false, fmt.Errorf("write outbox: %w", err)
	}

	if req.IdempotencyKey != "" {
		body, err := json.Marshal(appt)
		if err != nil {
			return model.Appointment{}, false, err
		}
		if err := s.repo.FinalizeIdempotency(ctx, tx, req.IdempotencyKey, appt.ID, 201, body); err != nil {
			return model.Appointment{}, false, fmt.Errorf("finalize idempotency key: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, false, err
	}
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "service_id", appt.ServiceID, "date", appt.Date, "time", appt.Time)
	return appt, false, nil
}

// Reschedule moves a SCHEDULED appointment to a new date and time, ignoring
// the appointment itself when checking for conflicts.
func (s *Service) Reschedule(ctx context.Context, id, date, clock string) (model.Appointment, error) {
	start := time.Now()
	appt, err := s.reschedule(ctx, id, date, clock)
	s.metrics.ObserveWrite("reschedule", outcome(err), time.Since(start).Seconds())
	return appt, err
}

func (s *Service) reschedule(ctx context.Context, id, date, clock string) (model.Appointment, error) {
	date, clock, err := s.normalize(date, clock)
	if err != nil {
		return model.Appointment{}, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status != model.StatusScheduled {
		return model.Appointment{}, ErrNotReschedulable
	}
	if current.Date == date && current.Time == clock {
		return current, tx.Commit(ctx)
	}

	if err := s.ensureAvailable(ctx, tx, date, clock, current.ServiceID, current.ID); err != nil {
		return model.Appointment{}, err
	}

	moved, err := s.repo.Reschedule(ctx, tx, id, date, clock)
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := appointmentEvent(kafkax.TopicAppointmentRescheduled, moved, &current, s.now())
	if err != nil {
		return model.Appointment{}, err
	}
	reminders, err := s.reminders(ctx, moved)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := s.events(ctx, tx, append([]outbox.Event{evt}, reminders...)...); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment rescheduled", "appointment_id", id, "from", Slot(current.Date, current.Time), "to", Slot(date, clock))
	return moved, nil
}

// UpdateStatus sets any status explicitly. Reactivating a cancelled
// appointment runs the same availability gate as a booking: it fails with
// ErrOutsideHours, ErrDateBlocked or storage.ErrSlotUnavailable.
func (s *Service) UpdateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, error) {
	start := time.Now()
	appt, err := s.updateStatus(ctx, id, status)
	s.metrics.ObserveWrite("status", outcome(err), time.Since(start).Seconds())
	return appt, err
}

// Cancel is UpdateStatus to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	return s.UpdateStatus(ctx, id, model.StatusCancelled)
}

func (s *Service) updateStatus(ctx context.Context, id string, status model.Status) (model.Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := s.repo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status == status {
		return current, tx.Commit(ctx)
	}
	if !current.Status.Active() && status.Active() {
		if err := s.ensureAvailable(ctx, tx, current.Date, current.Time, current.ServiceID, current.ID); err != nil {
			return model.Appointment{}, err
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, id, status)
	if err != nil {
		return model.Appointment{}, err
	}

	evt, err := appointmentEvent(kafkax.TopicAppointmentStatusChanged, updated, &current, s.now())
	if err != nil {
		return model.Appointment{}, err
	}
	events := []outbox.Event{evt}
	if current.Status == model.StatusCancelled && status == model.StatusScheduled {
		reminders, err := s.reminders(ctx, updated)
		if err != nil {
			return model.Appointment{}, err
		}
		events = append(events, reminders...)
	}
	if err := s.events(ctx, tx, events...); err != nil {
		return model.Appointment{}, fmt.Errorf("write outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	s.logger.Info("appointment status changed", "appointment_id", id, "from", current.Status, "to", status)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.delete(ctx, id)
	s.metrics.ObserveWrite("delete", outcome(err), time.Since(start).Seconds())
	return err
}

func (s *Service) delete(ctx context.Context, id string) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := s.repo.Delete(ctx, tx, id)
	if err != nil {
		return err
	}
	evt, err := appointmentEvent(kafkax.TopicAppointmentDeleted, deleted, nil, s.now())
	if err != nil {
		return err
	}
	if err := s.events(ctx, tx, evt); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

// ensureAvailable re-evaluates the slot against the appointments visible in tx.
func (s *Service) ensureAvailable(ctx context.Context, tx pgx.Tx, date, clock, serviceID, excludeID string) error {
	hours, err := s.schedule.OperatingHours(ctx)
	if err != nil {
		return fmt.Errorf("load operating hours: %w", err)
	}
	blocks, err := s.schedule.AgendaBlocks(ctx, date, date)
	if err != nil {
		return fmt.Errorf("load agenda blocks: %w", err)
	}
	appts, err := s.repo.ActiveOn(ctx, tx, date)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}

	verdict := availability.Evaluate(date, clock, serviceID, hours, blocks, appts, excludeID)
	s.metrics.ObserveAvailability(verdict.String())
	return verdictError(verdict)
}

func (s *Service) reminders(ctx context.Context, appt model.Appointment) ([]outbox.Event, error) {
	offsets, err := s.policy.ReminderOffsets(ctx)
	if err != nil {
		return nil, fmt.Errorf("reminder offsets: %w", err)
	}
	return reminderEvents(appt, offsets, s.loc, s.now())
}

func verdictError(v availability.Verdict) error {
	switch v {
	case availability.Available:
		return nil
	case availability.OutsideHours:
		return ErrOutsideHours
	case availability.Blocked:
		return ErrDateBlocked
	default:
		return storage.ErrSlotUnavailable
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, storage.ErrSlotUnavailable):
		return "slot_taken"
	case errors.Is(err, ErrOutsideHours), errors.Is(err, ErrDateBlocked), errors.Is(err, ErrInPast):
		return "rejected"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, scheduling.ErrServiceNotFound):
		return "invalid"
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ErrNotReschedulable):
		return "not_found"
	default:
		return "error"
	}
}
