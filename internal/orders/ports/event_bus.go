package ports

import (
	"context"

	"github.com/dejobratic/laborders/internal/orders/domain"
)

// EventBus defines the contract for publishing order lifecycle events.
type EventBus interface {
	PublishOrderCreated(ctx context.Context, order domain.Order) error
	PublishOrderAdvanced(ctx context.Context, order domain.Order, from domain.OrderState) error
}
