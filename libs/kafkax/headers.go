package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// Headers is a Kafka header list usable as an OpenTelemetry carrier.
type Headers []kafka.Header

var _ propagation.TextMapCarrier = (*Headers)(nil)

func (h Headers) Get(key string) string {
	for _, kv := range h {
		if kv.Key == key {
			return string(kv.Value)
		}
	}
	return ""
}

func (h Headers) Keys() []string {
	keys := make([]string, len(h))
	for i, kv := range h {
		keys[i] = kv.Key
	}
	return keys
}

// Set overwrites an existing key so re-injection does not duplicate headers.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

// EventMeta identifies an outbox event on the wire.
type EventMeta struct {
	EventID   string
	EventType string
}

// MessageHeaders stamps the event identity and the trace context of ctx.
func (m EventMeta) MessageHeaders(ctx context.Context) []kafka.Header {
	h := make(Headers, 0, 4)
	h.Set(HeaderEventID, m.EventID)
	h.Set(HeaderEventType, m.EventType)
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return h
}

// ExtractEventMeta reads the event identity, falling back to the message
// key and topic for producers that do not stamp headers.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	h := Headers(msg.Headers)
	meta := EventMeta{EventID: h.Get(HeaderEventID), EventType: h.Get(HeaderEventType)}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// ExtractTraceContext continues the producer's trace, if any.
func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	h := Headers(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &h)
}
