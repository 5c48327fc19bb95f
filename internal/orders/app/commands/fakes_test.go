package commands_test

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/dejobratic/laborders/internal/orders/app/commands"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

// stubRepository delegates to an embedded repository unless a hook overrides the call.
type stubRepository struct {
	ports.OrderRepository
	createFn func(ctx context.Context, order domain.Order) (*domain.Order, error)
	findFn   func(ctx context.Context, id string) (*domain.Order, error)
	saveFn   func(ctx context.Context, order domain.Order) (*domain.Order, error)
}

func (s *stubRepository) Create(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, order)
	}
	return s.OrderRepository.Create(ctx, order)
}

func (s *stubRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return s.OrderRepository.FindByID(ctx, id)
}

func (s *stubRepository) Save(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, order)
	}
	return s.OrderRepository.Save(ctx, order)
}

type publishedEvent struct {
	kind  string
	order domain.Order
	from  domain.OrderState
}

type recordingEventBus struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (b *recordingEventBus) PublishOrderCreated(_ context.Context, order domain.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{kind: "created", order: order})
	return b.err
}

func (b *recordingEventBus) PublishOrderAdvanced(_ context.Context, order domain.Order, from domain.OrderState) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{kind: "advanced", order: order, from: from})
	return b.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validCommand() commands.CreateOrderCommand {
	return commands.CreateOrderCommand{
		Lab:      "Central Lab",
		Patient:  "Jane Roe",
		Customer: "Acme Health",
		Services: []commands.ServiceItemInput{
			{Name: "CBC", Value: decimal.RequireFromString("50.5")},
			{Name: "Lipid panel", Value: decimal.NewFromInt(30), Status: domain.ServiceDone},
		},
	}
}
