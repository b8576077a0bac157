package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
)

const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job is one reminder waiting to be dispatched. Slot is the appointment
// date and time the reminder was computed for.
type Job struct {
	ID             int64
	IdempotencyKey string
	AppointmentID  string
	Channel        string
	Recipient      string
	RemindAt       time.Time
	Slot           string
	OffsetMinutes  int
	TemplateData   map[string]string
	Traceparent    string
	Tracestate     string
	Attempts       int
	MaxAttempts    int
	NextRunAt      time.Time
}

// StartsAt is the appointment start implied by the reminder time and offset.
func (j Job) StartsAt() time.Time {
	return j.RemindAt.Add(time.Duration(j.OffsetMinutes) * time.Minute)
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Upsert stores job. A key seen before is left alone unless its job was
// cancelled, in which case it is re-armed; an appointment moved away and back
// again reuses its old keys. Reports whether a row was written.
func (r *Repository) Upsert(ctx context.Context, q db.Querier, job Job) (bool, error) {
	payload, err := json.Marshal(job.TemplateData)
	if err != nil {
		return false, err
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	tag, err := q.Exec(ctx, `
		INSERT INTO scheduler_jobs (idempotency_key, appointment_id, channel, recipient, remind_at, slot, offset_minutes, template_data, next_run_at, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $5, $9, $10)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = 'pending',
		    recipient = EXCLUDED.recipient,
		    remind_at = EXCLUDED.remind_at,
		    template_data = EXCLUDED.template_data,
		    next_run_at = EXCLUDED.next_run_at,
		    attempts = 0,
		    last_error = '',
		    traceparent = EXCLUDED.traceparent,
		    tracestate = EXCLUDED.tracestate,
		    updated_at = now()
		WHERE scheduler_jobs.status = 'cancelled'
	`, job.IdempotencyKey, job.AppointmentID, job.Channel, job.Recipient, job.RemindAt, job.Slot, job.OffsetMinutes, payload, traceparent, tracestate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPending cancels the pending jobs of an appointment except those for
// keepSlot. An empty keepSlot cancels all of them.
func (r *Repository) CancelPending(ctx context.Context, q db.Querier, appointmentID, keepSlot string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE scheduler_jobs
		SET status = 'cancelled', updated_at = now()
		WHERE appointment_id = $1 AND status = 'pending' AND slot <> $2
	`, appointmentID, keepSlot)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const dueSQL = `SELECT id, idempotency_key, appointment_id::text, channel, recipient, remind_at, slot, offset_minutes, template_data, traceparent, tracestate, attempts, max_attempts, next_run_at
FROM scheduler_jobs
WHERE status = 'pending' AND next_run_at <= now()
ORDER BY next_run_at
LIMIT $1
FOR UPDATE SKIP LOCKED`

// FetchDue claims up to limit pending jobs whose run time has come. Jobs
// locked by another replica are skipped.
func (r *Repository) FetchDue(ctx context.Context, q db.Querier, limit int) ([]Job, error) {
	rows, err := q.Query(ctx, dueSQL, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanJob)
}

func scanJob(row pgx.CollectableRow) (Job, error) {
	var (
		j   Job
		raw []byte
	)
	if err := row.Scan(&j.ID, &j.IdempotencyKey, &j.AppointmentID, &j.Channel, &j.Recipient, &j.RemindAt, &j.Slot, &j.OffsetMinutes, &raw, &j.Traceparent, &j.Tracestate, &j.Attempts, &j.MaxAttempts, &j.NextRunAt); err != nil {
		return Job{}, err
	}
	j.TemplateData = map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &j.TemplateData); err != nil {
			return Job{}, fmt.Errorf("job %d template data: %w", j.ID, err)
		}
	}
	return j, nil
}

// SetStatus moves jobs to a terminal status.
func (r *Repository) SetStatus(ctx context.Context, q db.Querier, status string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		UPDATE scheduler_jobs
		SET status = $2, updated_at = now()
		WHERE id = ANY($1)
	`, ids, status)
	return err
}

// MarkFailed records a failed attempt. The job is retried at nextRunAt until
// it reaches maxAttempts.
func (r *Repository) MarkFailed(ctx context.Context, q db.Querier, id int64, attempts, maxAttempts int, nextRunAt time.Time, lastError string) error {
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}
	_, err := q.Exec(ctx, `
		UPDATE scheduler_jobs
		SET attempts = $2,
		    status = $3,
		    next_run_at = $4,
		    last_error = $5,
		    updated_at = now()
		WHERE id = $1
	`, id, attempts, status, nextRunAt, lastError)
	return err
}
