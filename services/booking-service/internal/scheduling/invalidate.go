package scheduling

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Invalidator is implemented by caches that must drop their state when the
// studio changes its schedule or catalog.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// InvalidationHandler handles studio.schedule.changed.v1 and
// studio.catalog.changed.v1. The payload is not needed.
func InvalidationHandler(cache Invalidator, logger *slog.Logger) func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		if err := cache.Invalidate(ctx); err != nil {
			return err
		}
		logger.Info("schedule cache invalidated", "topic", msg.Topic)
		return nil
	}
}
