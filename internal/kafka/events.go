package kafka

import (
	"time"

	"github.com/dejobratic/laborders/internal/orders/domain"
)

const (
	EventOrderCreated  = "order.created"
	EventOrderAdvanced = "order.advanced"
)

// OrderEvent is the JSON value written for every lifecycle event.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	State      string    `json:"state"`
	From       string    `json:"from,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func newOrderEvent(eventType string, order domain.Order, from domain.OrderState, at time.Time) OrderEvent {
	return OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		State:      string(order.State),
		From:       string(from),
		OccurredAt: at.UTC(),
	}
}
