package adapters

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/laborders/internal/database"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
	"github.com/dejobratic/laborders/internal/telemetry"
)

// ObservableRepository wraps an OrderRepository with spans and query metrics.
type ObservableRepository struct {
	repo    ports.OrderRepository
	metrics *database.Metrics
}

func NewObservableRepository(repo ports.OrderRepository, metrics *database.Metrics) *ObservableRepository {
	return &ObservableRepository{
		repo:    repo,
		metrics: metrics,
	}
}

func (r *ObservableRepository) Create(ctx context.Context, order domain.Order) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Create")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("operation", "create"),
		attribute.String("order.lab", order.Lab),
		attribute.Int("order.services", len(order.Services)),
	)

	start := time.Now()
	created, err := r.repo.Create(ctx, order)
	r.record(ctx, "create_order", start, err)

	telemetry.FinishSpan(span, err, expectedErrors...)
	if err != nil {
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("order.id", created.ID))
	return created, nil
}

func (r *ObservableRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.FindByID")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", id),
		attribute.String("operation", "find_by_id"),
	)

	start := time.Now()
	order, err := r.repo.FindByID(ctx, id)
	r.record(ctx, "find_order_by_id", start, err)

	telemetry.FinishSpan(span, err, expectedErrors...)
	return order, err
}

func (r *ObservableRepository) List(ctx context.Context, filter ports.ListFilter) (ports.ListResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.List")
	defer span.End()

	attrs := []attribute.KeyValue{
		attribute.String("operation", "list"),
		attribute.Int("skip", filter.Skip),
		attribute.Int("limit", filter.Limit),
	}
	if filter.State != nil {
		attrs = append(attrs, attribute.String("filter.state", string(*filter.State)))
	}
	telemetry.AddSpanAttributes(span, attrs...)

	start := time.Now()
	result, err := r.repo.List(ctx, filter)
	r.record(ctx, "list_orders", start, err)

	telemetry.FinishSpan(span, err, expectedErrors...)
	if err != nil {
		return ports.ListResult{}, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.Int("result.count", len(result.Items)),
		attribute.Int("result.total", result.Total),
	)
	return result, nil
}

func (r *ObservableRepository) Save(ctx context.Context, order domain.Order) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "OrderRepository.Save")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.state", string(order.State)),
		attribute.Int64("order.version", order.Version),
		attribute.String("operation", "save"),
	)

	start := time.Now()
	saved, err := r.repo.Save(ctx, order)
	r.record(ctx, "save_order", start, err)

	telemetry.FinishSpan(span, err, expectedErrors...)
	return saved, err
}

// expectedErrors are repository outcomes that do not indicate a storage failure.
var expectedErrors = []error{ports.ErrNotFound, ports.ErrVersionConflict, domain.ErrValidation}

func (r *ObservableRepository) record(ctx context.Context, operation string, start time.Time, err error) {
	failed := err != nil
	for _, expected := range expectedErrors {
		if errors.Is(err, expected) {
			failed = false
		}
	}
	r.metrics.RecordQuery(ctx, operation, time.Since(start).Seconds(), failed)
}

var _ ports.OrderRepository = (*ObservableRepository)(nil)
