package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

type AdvanceOrderCommand struct {
	OrderID string
}

type AdvanceOrderHandler interface {
	Handle(ctx context.Context, cmd AdvanceOrderCommand) (*domain.Order, error)
}

// AdvanceOrderCommandHandler moves an order one step through its lifecycle.
// The write is conditional on the version that was read, so two concurrent
// advances of the same order cannot both succeed.
type AdvanceOrderCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	logger *slog.Logger
}

func NewAdvanceOrderCommandHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
	logger *slog.Logger,
) *AdvanceOrderCommandHandler {
	return &AdvanceOrderCommandHandler{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

func (h *AdvanceOrderCommandHandler) Handle(ctx context.Context, cmd AdvanceOrderCommand) (*domain.Order, error) {
	order, err := h.repo.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}

	next, err := domain.NextState(order.State)
	if err != nil {
		return nil, err
	}

	from := order.State
	order.State = next

	saved, err := h.repo.Save(ctx, *order)
	if err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return nil, domain.NewConflictError("order was modified concurrently")
		}
		return nil, fmt.Errorf("save order: %w", err)
	}

	if err := h.events.PublishOrderAdvanced(ctx, *saved, from); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish order advanced event",
			"error", err,
			"order_id", saved.ID,
		)
	}

	return saved, nil
}
