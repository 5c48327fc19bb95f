package ports

import (
	"context"
	"errors"

	"github.com/dejobratic/laborders/internal/orders/domain"
)

// OrderRepository exposes persistence operations required by the application layer.
//
// Implementations assign identity, timestamps and version on Create, and
// re-validate the structural invariants of an order before writing it.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) (*domain.Order, error)
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) (ListResult, error)
	Save(ctx context.Context, order domain.Order) (*domain.Order, error)
}

// ListFilter narrows list queries by state and window.
type ListFilter struct {
	State *domain.OrderState
	Skip  int
	Limit int
}

// ListResult is one page of orders, newest first, plus the number of orders
// matching the filter regardless of the window.
type ListResult struct {
	Items []domain.Order
	Total int
}

var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned by Save when the stored version moved on.
	ErrVersionConflict = errors.New("order version conflict")
)
