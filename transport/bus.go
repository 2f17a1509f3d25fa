// Package transport provides the delivery boundary between event
// producers and the ingestion pipeline: an in-process, at-least-once
// publish/subscribe bus carrying batches of raw polymorphic event
// records. Producers publish to a topic; the audit consumer subscribes
// the pipeline's Ingest behind a handler.
//
// Delivery is asynchronous, so a record published here becomes visible
// to queries only after the consumer has processed it; callers are
// expected to poll rather than assume immediate visibility.
package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/flowtrail/runtime-audit-eventstore-go/auditstore"
)

// DefaultAuditTopic is the topic the runtime engine publishes audit
// batches on.
const DefaultAuditTopic = "engine.runtime-events"

const subscriberBufferSize = 128

// Handler consumes one delivered batch. A non-nil error is logged; the
// bus does not redeliver, per-record recovery belongs to the consumer.
type Handler func(ctx context.Context, batch auditstore.RawEvents) error

// Bus is an in-process event bus for raw audit batches. Publishing
// fans the batch out to every subscriber of the topic on buffered
// channels; a subscriber whose buffer is full misses the delivery and a
// warning is logged.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan auditstore.RawEvents
	logger      *slog.Logger
}

// NewBus creates a Bus. The logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]chan auditstore.RawEvents),
		logger:      logger,
	}
}

// Publish delivers one batch to every subscriber of the topic.
func (b *Bus) Publish(ctx context.Context, topic string, batch auditstore.RawEvents) error {
	b.mu.RLock()
	subs := append([]chan auditstore.RawEvents(nil), b.subscribers[topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub <- batch:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping batch for slow subscriber",
					"topic", topic,
					"batch_size", len(batch),
				)
			}
		}
	}

	if b.logger != nil {
		b.logger.Info("batch published",
			"topic", topic,
			"batch_size", len(batch),
		)
	}

	return nil
}

// Subscribe registers a handler for the topic and starts a goroutine
// consuming deliveries until the context is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string, consumerGroup string, handler Handler) {
	ch := make(chan auditstore.RawEvents, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				b.removeSubscriber(topic, ch)
				return
			case batch := <-ch:
				if err := handler(ctx, batch); err != nil && b.logger != nil {
					b.logger.Error("consumer handler failed",
						"topic", topic,
						"consumer_group", consumerGroup,
						"batch_size", len(batch),
						"error", err.Error(),
					)
				}
			}
		}
	}()
}

func (b *Bus) removeSubscriber(topic string, target chan auditstore.RawEvents) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.subscribers[topic]
	if len(items) == 0 {
		return
	}

	filtered := make([]chan auditstore.RawEvents, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}

	b.subscribers[topic] = filtered
}
