package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/dejobratic/laborders/internal/clock"
	"github.com/dejobratic/laborders/internal/orders/domain"
	"github.com/dejobratic/laborders/internal/orders/ports"
	"github.com/dejobratic/laborders/internal/telemetry"
)

const DefaultTopic = "lab-orders.events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// EventBus publishes order lifecycle events to a single Kafka topic keyed by order id.
type EventBus struct {
	writer messageWriter
	clock  clock.Clock
}

// NewWriter builds a kafka-go writer that hashes keys so events of one order stay ordered.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func NewEventBus(writer messageWriter, clk clock.Clock) *EventBus {
	if clk == nil {
		clk = clock.System()
	}
	return &EventBus{writer: writer, clock: clk}
}

func (b *EventBus) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	return b.publish(ctx, newOrderEvent(EventOrderCreated, order, "", b.clock.Now()))
}

func (b *EventBus) PublishOrderAdvanced(ctx context.Context, order domain.Order, from domain.OrderState) error {
	return b.publish(ctx, newOrderEvent(EventOrderAdvanced, order, from, b.clock.Now()))
}

func (b *EventBus) publish(ctx context.Context, event OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	telemetry.InjectTraceContext(ctx, headerCarrier{headers: &msg.Headers})

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	return nil
}

func (b *EventBus) Close() error {
	return b.writer.Close()
}

// headerCarrier lets the OTel propagator write trace context into message headers.
type headerCarrier struct {
	headers *[]kafkago.Header
}

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range *c.headers {
		if h.Key == key {
			(*c.headers)[i].Value = []byte(value)
			return
		}
	}
	*c.headers = append(*c.headers, kafkago.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.headers))
	for _, h := range *c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

var _ ports.EventBus = (*EventBus)(nil)
