package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/kafkax"
	otelx "github.com/joaocarlostuc75/ciliosdeluxo/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int

	// Retention is how long relayed rows are kept. Zero keeps them forever.
	Retention  time.Duration
	PurgeEvery time.Duration
}

// Publisher relays outbox rows to Kafka. Delivery is at least once; consumers
// deduplicate on the event_id header.
type Publisher struct {
	pool      db.DBTX
	logger    *slog.Logger
	writer    Writer
	pollEvery time.Duration
	batchSize int

	retention  time.Duration
	purgeEvery time.Duration
	now        func() time.Time
}

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(pool db.DBTX, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		logger.Warn("outbox publisher disabled (no kafka brokers configured)")
		return nil
	}
	return newPublisher(pool, logger, &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}, cfg)
}

func newPublisher(pool db.DBTX, logger *slog.Logger, w Writer, cfg PublisherConfig) *Publisher {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PurgeEvery <= 0 {
		cfg.PurgeEvery = time.Hour
	}
	return &Publisher{
		pool:       pool,
		logger:     logger,
		writer:     w,
		pollEvery:  cfg.PollEvery,
		batchSize:  cfg.BatchSize,
		retention:  cfg.Retention,
		purgeEvery: cfg.PurgeEvery,
		now:        time.Now,
	}
}

// Run polls until ctx is cancelled. A nil publisher returns immediately.
func (p *Publisher) Run(ctx context.Context) {
	if p == nil {
		return
	}
	defer p.writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()
	purge := time.NewTicker(p.purgeEvery)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-purge.C:
			if n, err := p.Purge(ctx); err != nil {
				p.logger.Warn("outbox purge failed", "err", err)
			} else if n > 0 {
				p.logger.Info("outbox rows purged", "count", n)
			}
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain publishes batches back to back while they come back full, so a
// backlog clears without waiting for the next tick.
func (p *Publisher) drain(ctx context.Context) {
	total := 0
	for ctx.Err() == nil {
		n, err := p.PublishBatch(ctx)
		total += n
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("outbox publish failed", "err", err, "published", total)
			}
			return
		}
		if n < p.batchSize {
			break
		}
	}
	if total > 0 {
		p.logger.Debug("outbox drained", "count", total)
	}
}

// PublishBatch relays one batch and returns how many events were sent.
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, r.Traceparent, r.Tracestate)
		msgs = append(msgs, kafka.Message{
			Topic:   r.EventType,
			Key:     []byte(r.AggregateID),
			Value:   r.Payload,
			Headers: kafkax.EventMeta{EventID: r.EventID, EventType: r.EventType}.MessageHeaders(msgCtx),
		})
		ids = append(ids, r.ID)
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(records), tx.Commit(ctx)
}

// Purge drops relayed rows older than the retention window. It is a no-op
// when retention is disabled.
func (p *Publisher) Purge(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	return PurgePublished(ctx, p.pool, p.now().Add(-p.retention))
}

// PublisherConfigFromEnv reads KAFKA_BROKERS and the OUTBOX_* settings.
func PublisherConfigFromEnv() PublisherConfig {
	return PublisherConfig{
		Brokers:    config.String("KAFKA_BROKERS", ""),
		PollEvery:  config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		BatchSize:  config.Int("OUTBOX_BATCH_SIZE", 50),
		Retention:  config.Duration("OUTBOX_RETENTION", 7*24*time.Hour),
		PurgeEvery: config.Duration("OUTBOX_PURGE_INTERVAL", time.Hour),
	}
}
