package jobs

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/metrics"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/outbox"
)

// ReminderDue is the payload of scheduler.reminder.due.v1 and of its DLQ.
type ReminderDue struct {
	AppointmentID  string            `json:"appointment_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Channel        string            `json:"channel"`
	Recipient      string            `json:"recipient"`
	RemindAt       string            `json:"remind_at"`
	Slot           string            `json:"slot"`
	OffsetMinutes  int               `json:"offset_minutes"`
	TemplateData   map[string]string `json:"template_data"`
	ErrorReason    string            `json:"error_reason,omitempty"`
	FailedAt       string            `json:"failed_at,omitempty"`
}

type Worker struct {
	pool       db.DBTX
	repo       *Repository
	metrics    *metrics.SchedulerMetrics
	logger     *slog.Logger
	interval   time.Duration
	batchSize  int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	emit       func(ctx context.Context, q db.Querier, evt outbox.Event) error
}

type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
	// Backoff is the delay after the first failed attempt. It doubles on
	// each further failure up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func NewWorker(pool db.DBTX, repo *Repository, m *metrics.SchedulerMetrics, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Minute
	}
	if cfg.MaxBackoff < cfg.Backoff {
		cfg.MaxBackoff = time.Hour
	}
	return &Worker{
		pool:       pool,
		repo:       repo,
		metrics:    m,
		logger:     logger,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		backoff:    cfg.Backoff,
		maxBackoff: cfg.MaxBackoff,
		now:        time.Now,
		emit:       outbox.Insert,
	}
}

// Run polls for due jobs until ctx ends. Full batches are followed by
// another claim right away.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for ctx.Err() == nil {
				n, err := w.processBatch(ctx)
				if err != nil {
					if ctx.Err() == nil {
						w.logger.Error("scheduler batch failed", "err", err)
					}
					break
				}
				if n < w.batchSize {
					break
				}
			}
		}
	}
}

// outcome sorts one claimed batch.
type outcome struct {
	dispatched []int64
	expired    []int64
	retry      []Job
	dead       []Job
}

// processBatch claims due jobs and turns each into a due event in the same
// transaction. Jobs whose appointment has already started are cancelled
// instead of sent. It returns how many jobs were claimed.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	var (
		claimed int
		out     outcome
	)
	now := w.now().UTC()
	err := db.InTx(ctx, w.pool, func(tx pgx.Tx) error {
		jobs, err := w.repo.FetchDue(ctx, tx, w.batchSize)
		if err != nil {
			return err
		}
		claimed = len(jobs)
		w.metrics.SetClaimed(claimed)
		if claimed == 0 {
			return nil
		}
		out = w.dispatch(ctx, tx, jobs, now)
		return w.settle(ctx, tx, out, now)
	})
	if err != nil {
		return 0, err
	}

	w.metrics.IncJobs("dispatched", len(out.dispatched))
	w.metrics.IncJobs("expired", len(out.expired))
	w.metrics.IncJobs("retried", len(out.retry))
	w.metrics.IncJobs("dead", len(out.dead))
	if claimed > 0 {
		w.logger.Debug("scheduler batch done", "claimed", claimed, "dispatched", len(out.dispatched), "expired", len(out.expired), "retry", len(out.retry), "dead", len(out.dead))
	}
	return claimed, nil
}

func (w *Worker) dispatch(ctx context.Context, tx pgx.Tx, jobs []Job, now time.Time) outcome {
	var out outcome
	for _, job := range jobs {
		if !job.StartsAt().After(now) {
			out.expired = append(out.expired, job.ID)
			continue
		}
		evt, err := outbox.NewEvent("scheduler_job", job.AppointmentID, kafkax.TopicReminderDue, due(job))
		if err == nil {
			err = w.emit(job.traceContext(ctx), tx, evt)
		}
		switch {
		case err == nil:
			out.dispatched = append(out.dispatched, job.ID)
		case job.Attempts+1 >= job.MaxAttempts:
			w.logger.Warn("reminder enqueue failed, giving up", "job_id", job.ID, "err", err)
			out.dead = append(out.dead, job)
		default:
			w.logger.Warn("reminder enqueue failed", "job_id", job.ID, "attempt", job.Attempts+1, "err", err)
			out.retry = append(out.retry, job)
		}
	}
	return out
}

func (w *Worker) settle(ctx context.Context, tx pgx.Tx, out outcome, now time.Time) error {
	if err := w.repo.SetStatus(ctx, tx, StatusProcessed, out.dispatched); err != nil {
		return err
	}
	if err := w.repo.SetStatus(ctx, tx, StatusCancelled, out.expired); err != nil {
		return err
	}
	for _, job := range append(slices.Clone(out.retry), out.dead...) {
		attempts := job.Attempts + 1
		if err := w.repo.MarkFailed(ctx, tx, job.ID, attempts, job.MaxAttempts, now.Add(w.retryDelay(attempts)), "outbox enqueue failed"); err != nil {
			return err
		}
	}
	for _, job := range out.dead {
		if err := w.enqueueDLQ(job.traceContext(ctx), tx, job, "max attempts reached", now); err != nil {
			return err
		}
	}
	return nil
}

// retryDelay is backoff doubled per earlier failure, capped at maxBackoff.
func (w *Worker) retryDelay(attempts int) time.Duration {
	d := w.backoff
	for i := 1; i < attempts && d < w.maxBackoff; i++ {
		d *= 2
	}
	return min(d, w.maxBackoff)
}

func (j Job) traceContext(ctx context.Context) context.Context {
	return otelx.ContextWithTraceContext(ctx, j.Traceparent, j.Tracestate)
}

func (w *Worker) enqueueDLQ(ctx context.Context, q db.Querier, job Job, reason string, now time.Time) error {
	payload := due(job)
	payload.ErrorReason = reason
	payload.FailedAt = now.Format(time.RFC3339)
	evt, err := outbox.NewEvent("scheduler_job", job.AppointmentID, kafkax.TopicReminderDueDLQ, payload)
	if err != nil {
		return err
	}
	return w.emit(ctx, q, evt)
}

func due(job Job) ReminderDue {
	return ReminderDue{
		AppointmentID:  job.AppointmentID,
		IdempotencyKey: job.IdempotencyKey,
		Channel:        job.Channel,
		Recipient:      job.Recipient,
		RemindAt:       job.RemindAt.UTC().Format(time.RFC3339),
		Slot:           job.Slot,
		OffsetMinutes:  job.OffsetMinutes,
		TemplateData:   job.TemplateData,
	}
}
