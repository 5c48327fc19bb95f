package kafka

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dejobratic/laborders/internal/orders/domain"
)

func TestNoopEventBusLogsEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	bus := NewNoopEventBus(logger)

	ctx := context.Background()
	require.NoError(t, bus.PublishOrderCreated(ctx, testOrder(domain.StateCreated)))
	require.NoError(t, bus.PublishOrderAdvanced(ctx, testOrder(domain.StateAnalysis), domain.StateCreated))
	require.NoError(t, bus.Close())

	out := buf.String()
	assert.Contains(t, out, "event::order_created")
	assert.Contains(t, out, "event::order_advanced")
	assert.Contains(t, out, `"from":"CREATED"`)
}
