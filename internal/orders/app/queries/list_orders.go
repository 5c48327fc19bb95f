package queries

import (
	"context"
	"fmt"
	"math"

	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// ListOrdersQuery asks for one page of orders. A zero Limit means "not given".
type ListOrdersQuery struct {
	Page  int
	Limit int
	State *domain.OrderState
}

// Normalize clamps paging input into its accepted range instead of rejecting it.
func (q ListOrdersQuery) Normalize() ListOrdersQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	switch {
	case q.Limit == 0:
		q.Limit = DefaultLimit
	case q.Limit < 1:
		q.Limit = 1
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	// Keep (Page-1)*Limit from overflowing. The capped page still lies past
	// any stored total, so it comes back empty.
	if q.Page > math.MaxInt/q.Limit {
		q.Page = math.MaxInt / q.Limit
	}
	return q
}

// Skip is the number of orders before the requested page.
func (q ListOrdersQuery) Skip() int {
	return (q.Page - 1) * q.Limit
}

type ListOrdersResult struct {
	Items      []domain.Order
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

type ListOrdersQueryHandler struct {
	repo ports.OrderRepository
}

func NewListOrdersQueryHandler(repo ports.OrderRepository) *ListOrdersQueryHandler {
	return &ListOrdersQueryHandler{repo: repo}
}

func (h *ListOrdersQueryHandler) Handle(ctx context.Context, query ListOrdersQuery) (*ListOrdersResult, error) {
	q := query.Normalize()
	if q.State != nil && !q.State.Valid() {
		return nil, domain.NewValidationError("state", "state must be one of CREATED, ANALYSIS, COMPLETED")
	}

	result, err := h.repo.List(ctx, ports.ListFilter{
		State: q.State,
		Skip:  q.Skip(),
		Limit: q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	items := result.Items
	if items == nil {
		items = []domain.Order{}
	}

	return &ListOrdersResult{
		Items:      items,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      result.Total,
		TotalPages: (result.Total + q.Limit - 1) / q.Limit,
	}, nil
}
