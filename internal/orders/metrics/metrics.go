package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome labels shared by the lifecycle counters.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

type Metrics struct {
	ordersCreatedTotal    metric.Int64Counter
	orderCreationDuration metric.Float64Histogram
	ordersAdvancedTotal   metric.Int64Counter
	orderAdvanceDuration  metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCreatedTotal, err = meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of order creation attempts by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_created_total counter: %w", err)
	}

	m.orderCreationDuration, err = meter.Float64Histogram(
		"order_creation_duration_seconds",
		metric.WithDescription("Duration of order creation operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_creation_duration histogram: %w", err)
	}

	m.ordersAdvancedTotal, err = meter.Int64Counter(
		"orders_advanced_total",
		metric.WithDescription("Total number of state advance attempts by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_advanced_total counter: %w", err)
	}

	m.orderAdvanceDuration, err = meter.Float64Histogram(
		"order_advance_duration_seconds",
		metric.WithDescription("Duration of order advance operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_advance_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, outcome string) {
	m.ordersCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordOrderCreationDuration(ctx context.Context, durationSeconds float64) {
	m.orderCreationDuration.Record(ctx, durationSeconds)
}

// RecordOrderAdvanced counts one advance attempt. to is empty unless the
// order actually moved.
func (m *Metrics) RecordOrderAdvanced(ctx context.Context, outcome, to string) {
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if to != "" {
		attrs = append(attrs, attribute.String("to_state", to))
	}
	m.ordersAdvancedTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordOrderAdvanceDuration(ctx context.Context, durationSeconds float64) {
	m.orderAdvanceDuration.Record(ctx, durationSeconds)
}
