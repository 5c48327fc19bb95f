package kafka

import (
	"context"
	"log/slog"

	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

// NoopEventBus logs events without sending them anywhere. Used when no brokers are configured.
type NoopEventBus struct {
	logger *slog.Logger
}

func NewNoopEventBus(logger *slog.Logger) *NoopEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopEventBus{logger: logger}
}

func (n *NoopEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	n.logger.DebugContext(ctx, "event::order_created", "order_id", order.ID, "state", order.State)
	return nil
}

func (n *NoopEventBus) PublishOrderAdvanced(ctx context.Context, order domain.Order, from domain.OrderState) error {
	n.logger.DebugContext(ctx, "event::order_advanced", "order_id", order.ID, "from", from, "to", order.State)
	return nil
}

func (n *NoopEventBus) Close() error { return nil }

var _ ports.EventBus = (*NoopEventBus)(nil)
