package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dejobratic/laborders/internal/clock"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

// Repository provides an in-memory store useful for local development and tests.
type Repository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	clock  clock.Clock
}

// NewRepository constructs a new in-memory repository.
func NewRepository(clk clock.Clock) *Repository {
	if clk == nil {
		clk = clock.System()
	}
	return &Repository{
		orders: make(map[string]domain.Order),
		clock:  clk,
	}
}

// Create validates and stores a new order under a fresh identifier.
func (r *Repository) Create(_ context.Context, order domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("reject order: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	order.ID = uuid.NewString()
	order.Version = 1
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Services = cloneServices(order.Services)

	r.orders[order.ID] = order
	return cloneOrder(order), nil
}

// FindByID fetches a single order. Malformed identifiers are reported as not found.
func (r *Repository) FindByID(_ context.Context, id string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ports.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneOrder(order), nil
}

// List returns a window of orders, newest first, and the matching total.
func (r *Repository) List(_ context.Context, filter ports.ListFilter) (ports.ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]domain.Order, 0, len(r.orders))
	for _, order := range r.orders {
		if filter.State != nil && order.State != *filter.State {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	result := ports.ListResult{Items: []domain.Order{}, Total: len(matched)}

	start := filter.Skip
	if start < 0 {
		start = 0
	}
	if start >= len(matched) {
		return result, nil
	}

	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	for _, order := range matched[start:end] {
		result.Items = append(result.Items, *cloneOrder(order))
	}
	return result, nil
}

// Save overwrites an existing order if its version still matches the stored one.
func (r *Repository) Save(_ context.Context, order domain.Order) (*domain.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("reject order: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[order.ID]
	if !ok {
		return nil, ports.ErrNotFound
	}
	if current.Version != order.Version {
		return nil, ports.ErrVersionConflict
	}

	order.Version++
	order.CreatedAt = current.CreatedAt
	order.UpdatedAt = r.clock.Now()
	order.Services = cloneServices(order.Services)

	r.orders[order.ID] = order
	return cloneOrder(order), nil
}

func cloneOrder(order domain.Order) *domain.Order {
	order.Services = cloneServices(order.Services)
	return &order
}

func cloneServices(items []domain.ServiceItem) []domain.ServiceItem {
	out := make([]domain.ServiceItem, len(items))
	copy(out, items)
	return out
}

var _ ports.OrderRepository = (*Repository)(nil)
