package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/metrics"
	"github.com/dejobratic/laborders/internal/orders/ports"
	"github.com/dejobratic/laborders/internal/telemetry"
)

type ObservableCreateOrderHandler struct {
	handler CreateOrderHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCreateOrderHandler(handler CreateOrderHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCreateOrderHandler {
	return &ObservableCreateOrderHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCreateOrderHandler) Handle(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "CreateOrderCommand.Handle")
	defer span.End()

	start := time.Now()
	outcome := metrics.OutcomeError
	defer func() {
		o.metrics.RecordOrderCreationDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderCreated(ctx, outcome)
	}()

	o.logger.InfoContext(ctx, "creating order",
		"lab", cmd.Lab,
		"customer", cmd.Customer,
		"services", len(cmd.Services),
	)

	order, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		outcome = outcomeOf(err)
		telemetry.RecordSpanError(span, err)
		logError(ctx, o.logger, err, "failed to create order", "lab", cmd.Lab)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("order.id", order.ID),
		attribute.String("order.state", string(order.State)),
		attribute.String("order.total", order.Total().String()),
	)

	o.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"total", order.Total().String(),
	)

	outcome = metrics.OutcomeSuccess
	telemetry.SetSpanSuccess(span)

	return order, nil
}

type ObservableAdvanceOrderHandler struct {
	handler AdvanceOrderHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableAdvanceOrderHandler(handler AdvanceOrderHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableAdvanceOrderHandler {
	return &ObservableAdvanceOrderHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableAdvanceOrderHandler) Handle(ctx context.Context, cmd AdvanceOrderCommand) (*domain.Order, error) {
	ctx, span := telemetry.StartSpan(ctx, "AdvanceOrderCommand.Handle")
	defer span.End()

	telemetry.AddSpanAttributes(span, attribute.String("order.id", cmd.OrderID))

	start := time.Now()
	outcome := metrics.OutcomeError
	var to string
	defer func() {
		o.metrics.RecordOrderAdvanceDuration(ctx, time.Since(start).Seconds())
		o.metrics.RecordOrderAdvanced(ctx, outcome, to)
	}()

	order, err := o.handler.Handle(ctx, cmd)
	if err != nil {
		outcome = outcomeOf(err)
		telemetry.RecordSpanError(span, err)
		logError(ctx, o.logger, err, "failed to advance order", "order_id", cmd.OrderID)
		return nil, err
	}

	to = string(order.State)
	telemetry.AddSpanAttributes(span, attribute.String("order.state", to))

	o.logger.InfoContext(ctx, "order advanced",
		"order_id", order.ID,
		"state", order.State,
	)

	outcome = metrics.OutcomeSuccess
	telemetry.SetSpanSuccess(span)

	return order, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return metrics.OutcomeRejected
	case errors.Is(err, ports.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}

// logError logs rejected, missing and conflicting requests at warn, anything else at error.
func logError(ctx context.Context, logger *slog.Logger, err error, msg string, args ...any) {
	level := slog.LevelError
	if outcomeOf(err) != metrics.OutcomeError {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, msg, append([]any{"error", err}, args...)...)
}
