package adapters

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/laborders/internal/kafka"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
	"github.com/dejobratic/laborders/internal/telemetry"
)

// ObservableEventBus wraps an EventBus with spans and publish metrics.
type ObservableEventBus struct {
	bus     ports.EventBus
	metrics *kafka.Metrics
}

func NewObservableEventBus(bus ports.EventBus, metrics *kafka.Metrics) *ObservableEventBus {
	return &ObservableEventBus{
		bus:     bus,
		metrics: metrics,
	}
}

func (e *ObservableEventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishOrderCreated")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("event.type", kafka.EventOrderCreated),
	)

	start := time.Now()
	err := e.bus.PublishOrderCreated(ctx, order)
	e.metrics.RecordPublish(ctx, kafka.EventOrderCreated, time.Since(start).Seconds(), err == nil)

	telemetry.FinishSpan(span, err)
	return err
}

func (e *ObservableEventBus) PublishOrderAdvanced(ctx context.Context, order domain.Order, from domain.OrderState) error {
	ctx, span := telemetry.StartSpan(ctx, "EventBus.PublishOrderAdvanced")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("event.type", kafka.EventOrderAdvanced),
		attribute.String("order.from_state", string(from)),
		attribute.String("order.to_state", string(order.State)),
	)

	start := time.Now()
	err := e.bus.PublishOrderAdvanced(ctx, order, from)
	e.metrics.RecordPublish(ctx, kafka.EventOrderAdvanced, time.Since(start).Seconds(), err == nil)

	telemetry.FinishSpan(span, err)
	return err
}

var _ ports.EventBus = (*ObservableEventBus)(nil)
