package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

type ServiceItemInput struct {
	Name   string
	Value  decimal.Decimal
	Status domain.ServiceStatus
}

type CreateOrderCommand struct {
	Lab      string
	Patient  string
	Customer string
	Services []ServiceItemInput
}

// Validate applies the business rules that only hold at creation time.
func (c CreateOrderCommand) Validate() error {
	if len(c.Services) == 0 {
		return domain.NewValidationError("services", "services array is required and must have at least one item")
	}
	if !domain.SumValues(c.items()).IsPositive() {
		return domain.NewValidationError("services", "total order value must be greater than 0")
	}
	return nil
}

func (c CreateOrderCommand) items() []domain.ServiceItem {
	items := make([]domain.ServiceItem, len(c.Services))
	for i, s := range c.Services {
		items[i] = domain.ServiceItem{Name: s.Name, Value: s.Value, Status: s.Status}
	}
	return items
}

type CreateOrderHandler interface {
	Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
}

type CreateOrderCommandHandler struct {
	repo   ports.OrderRepository
	events ports.EventBus
	logger *slog.Logger
}

func NewCreateOrderCommandHandler(
	repo ports.OrderRepository,
	events ports.EventBus,
	logger *slog.Logger,
) *CreateOrderCommandHandler {
	return &CreateOrderCommandHandler{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

func (h *CreateOrderCommandHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	order, err := domain.NewOrder(cmd.Lab, cmd.Patient, cmd.Customer, cmd.items())
	if err != nil {
		return nil, err
	}

	created, err := h.repo.Create(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	// Publish failures are logged only; the order is already stored.
	if err := h.events.PublishOrderCreated(ctx, *created); err != nil {
		h.logger.ErrorContext(ctx, "failed to publish order created event",
			"error", err,
			"order_id", created.ID,
		)
	}

	return created, nil
}
