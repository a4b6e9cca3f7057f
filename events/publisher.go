package events

import (
	"context"

	"storefront/models"
)

const (
	OrderPaid      = "order.paid"
	OrderCancelled = "order.cancelled"
	OrderExpired   = "order.expired"
)

// Publisher emits order lifecycle events to downstream consumers.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, event models.OrderEvent) error
	Close() error
}

// NoopPublisher discards events. Used when EVENTS_BACKEND=none.
type NoopPublisher struct{}

func (NoopPublisher) PublishOrderEvent(context.Context, models.OrderEvent) error { return nil }
func (NoopPublisher) Close() error                                               { return nil }
