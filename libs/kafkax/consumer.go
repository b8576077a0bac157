package kafkax

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler processes one message. Returning an error triggers a retry.
type Handler func(ctx context.Context, msg kafka.Message) error

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Inbox deduplicates deliveries per consumer. Record reports false when the
// event was already seen; Forget undoes a Record for an event that could not
// be handled.
type Inbox interface {
	Record(ctx context.Context, consumer, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, consumer, eventID string) error
}

type ConsumerConfig struct {
	Brokers string
	GroupID string
	Topics  []string

	// MaxAttempts bounds handler retries for one message. Defaults to 3.
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	name    string
	reader  MessageReader
	inbox   Inbox
	logger  *slog.Logger
	handler Handler

	maxAttempts int
	backoff     time.Duration
	sleep       func(context.Context, time.Duration) error
}

// NewReader builds a consumer group reader for cfg.
func NewReader(cfg ConsumerConfig) *kafka.Reader {
	rc := kafka.ReaderConfig{
		Brokers:  SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if len(cfg.Topics) == 1 {
		rc.Topic = cfg.Topics[0]
	} else {
		rc.GroupTopics = cfg.Topics
	}
	return kafka.NewReader(rc)
}

// NewConsumer wires reader, inbox and handler. The consumer name scopes inbox
// records, so it should match the group id.
func NewConsumer(name string, reader MessageReader, inbox Inbox, logger *slog.Logger, cfg ConsumerConfig, handler Handler) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Consumer{
		name:        name,
		reader:      reader,
		inbox:       inbox,
		logger:      logger,
		handler:     handler,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		sleep:       sleepCtx,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			if c.sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}
		c.process(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctxMsg := ExtractTraceContext(ctx, msg)
	ctx, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.consumer", c.name),
		),
	)
	defer span.End()

	meta := ExtractEventMeta(msg)
	logger := c.logger.With("event_id", meta.EventID, "event_type", meta.EventType)

	if c.inbox != nil {
		fresh, err := c.inbox.Record(ctx, c.name, meta.EventID, meta.EventType)
		if err != nil {
			logger.Error("inbox record failed", "err", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "inbox")
			return
		}
		if !fresh {
			logger.Info("duplicate event ignored")
			return
		}
	}

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.handler(ctx, msg)
		if err == nil {
			return
		}
		if errors.Is(err, ErrSkip) {
			logger.Warn("event skipped", "err", err)
			return
		}
		logger.Warn("handler error", "err", err, "attempt", attempt)
		if attempt < c.maxAttempts {
			if c.sleep(ctx, c.backoff*time.Duration(attempt)) != nil {
				break
			}
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "handler")
	logger.Error("event dropped after retries", "err", err)
	if c.inbox != nil {
		if ferr := c.inbox.Forget(context.WithoutCancel(ctx), c.name, meta.EventID); ferr != nil {
			logger.Error("inbox forget failed", "err", ferr)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ErrSkip can be returned by handlers that want the message committed
// without retries, e.g. for payloads that will never parse.
var ErrSkip = errors.New("skip message")
