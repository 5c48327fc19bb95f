package app

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dejobratic/laborders/internal/orders/app/commands"
	"github.com/dejobratic/laborders/internal/orders/app/queries"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/metrics"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

// Service bundles the order use cases exposed by the API.
type Service struct {
	idemStore    ports.IdempotencyStore
	createOrder  commands.CreateOrderHandler
	advanceOrder commands.AdvanceOrderHandler
	getOrder     *queries.GetOrderQueryHandler
	listOrders   *queries.ListOrdersQueryHandler
}

// NewService wires required dependencies.
func NewService(
	repo ports.OrderRepository,
	events ports.EventBus,
	idem ports.IdempotencyStore,
	logger *slog.Logger,
	metrics *metrics.Metrics,
) *Service {
	createHandler := commands.NewCreateOrderCommandHandler(repo, events, logger)
	advanceHandler := commands.NewAdvanceOrderCommandHandler(repo, events, logger)

	return &Service{
		idemStore:    idem,
		createOrder:  commands.NewObservableCreateOrderHandler(createHandler, logger, metrics),
		advanceOrder: commands.NewObservableAdvanceOrderHandler(advanceHandler, logger, metrics),
		getOrder:     queries.NewGetOrderQueryHandler(repo),
		listOrders:   queries.NewListOrdersQueryHandler(repo),
	}
}

type ServiceItemInput struct {
	Name   string
	Value  decimal.Decimal
	Status string
}

// CreateOrderInput carries the caller-controlled fields of a new order.
type CreateOrderInput struct {
	Lab      string
	Patient  string
	Customer string
	Services []ServiceItemInput
}

type ListOrdersInput struct {
	Page  int
	Limit int
	State *domain.OrderState
}

// CreateOrder validates the input, stores the order in its initial state and projects it.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderResponse, error) {
	cmd := commands.CreateOrderCommand{
		Lab:      input.Lab,
		Patient:  input.Patient,
		Customer: input.Customer,
		Services: make([]commands.ServiceItemInput, len(input.Services)),
	}
	for i, item := range input.Services {
		cmd.Services[i] = commands.ServiceItemInput{
			Name:   item.Name,
			Value:  item.Value,
			Status: domain.ServiceStatus(item.Status),
		}
	}

	order, err := s.createOrder.Handle(ctx, cmd)
	if err != nil {
		return nil, err
	}

	resp := NewOrderResponse(*order)
	return &resp, nil
}

// GetOrder retrieves an order by ID.
func (s *Service) GetOrder(ctx context.Context, id string) (*OrderResponse, error) {
	order, err := s.getOrder.Handle(ctx, queries.GetOrderQuery{OrderID: id})
	if err != nil {
		return nil, err
	}

	resp := NewOrderResponse(*order)
	return &resp, nil
}

// ListOrders returns one page of orders, newest first, with paging metadata.
func (s *Service) ListOrders(ctx context.Context, input ListOrdersInput) (*OrderList, error) {
	result, err := s.listOrders.Handle(ctx, queries.ListOrdersQuery{
		Page:  input.Page,
		Limit: input.Limit,
		State: input.State,
	})
	if err != nil {
		return nil, err
	}

	data := make([]OrderResponse, len(result.Items))
	for i, order := range result.Items {
		data[i] = NewOrderResponse(order)
	}

	return &OrderList{
		Data: data,
		Meta: ListMeta{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	}, nil
}

// AdvanceOrder moves an order to its next lifecycle state.
func (s *Service) AdvanceOrder(ctx context.Context, id string) (*OrderResponse, error) {
	order, err := s.advanceOrder.Handle(ctx, commands.AdvanceOrderCommand{OrderID: id})
	if err != nil {
		return nil, err
	}

	resp := NewOrderResponse(*order)
	return &resp, nil
}

// SaveIdempotentResponse writes response details for a key.
func (s *Service) SaveIdempotentResponse(ctx context.Context, key string, response ports.StoredResponse) error {
	return s.idemStore.Save(ctx, key, response)
}

// GetIdempotentResponse retrieves previously stored response data.
func (s *Service) GetIdempotentResponse(ctx context.Context, key string) (*ports.StoredResponse, error) {
	return s.idemStore.Get(ctx, key)
}
