package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func newTestProducer(w *fakeWriter) *Producer {
	return &Producer{
		writer: w,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

type confirmedPayload struct {
	SessionID string `json:"session_id"`
	Phone     string `json:"phone"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := confirmedPayload{SessionID: "sess-1", Phone: "9876543210"}
	event, err := NewEvent("shipping.confirmed", "sess-1", "shipping_session", "shipping-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "shipping.confirmed", event.EventType)
	assert.Equal(t, "sess-1", event.AggregateID)
	assert.Equal(t, "shipping_session", event.AggregateType)
	assert.Equal(t, "shipping-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got confirmedPayload
	require.NoError(t, json.Unmarshal(event.Data, &got))
	assert.Equal(t, data, got)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("shipping.confirmed", "agg-1", "shipping_session", "svc", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shipping.confirmed")
}

func TestEvent_Builders(t *testing.T) {
	event := &Event{EventID: "e-1"}

	assert.Same(t, event, event.WithCorrelationID("corr-xyz"))
	assert.Same(t, event, event.WithMetadata("k", "v"))
	assert.Equal(t, "corr-xyz", event.CorrelationID)
	assert.Equal(t, "v", event.Metadata["k"])
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.shipping.confirmed", Topic("shipping", "confirmed"))
	assert.Equal(t, "ecommerce", TopicPrefix)
}

func TestDefaultProducerConfig(t *testing.T) {
	cfg := DefaultProducerConfig([]string{"kafka-1:9092", "kafka-2:9092"})
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.BatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.Async)
}

func TestPublish_BuildsMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	w := &fakeWriter{}
	p := newTestProducer(w)

	event, err := NewEvent("shipping.confirmed", "sess-9", "shipping_session", "shipping-service", confirmedPayload{SessionID: "sess-9"})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	require.NoError(t, p.Publish(ctx, Topic("shipping", "confirmed"), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ecommerce.shipping.confirmed", msg.Topic)
	assert.Equal(t, "sess-9", string(msg.Key))

	headers := headerCarrier{headers: &msg.Headers}
	assert.Equal(t, "shipping.confirmed", headers.Get("event_type"))
	assert.Equal(t, "shipping-service", headers.Get("source"))
	assert.Equal(t, "corr-9", headers.Get("correlation_id"))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headers.Get("traceparent"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, "corr-9", decoded.CorrelationID)
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newTestProducer(w)

	event, err := NewEvent("shipping.confirmed", "sess-1", "shipping_session", "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "ecommerce.shipping.confirmed", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to ecommerce.shipping.confirmed")
	assert.ErrorIs(t, err, w.err)
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, newTestProducer(w).Close())
	assert.True(t, w.closed)
}

func TestNewProducer_DoesNotDial(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.Equal(t, []string{"localhost:19092"}, p.brokers)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	for _, brokers := range [][]string{nil, {}} {
		err := PingBrokers(context.Background(), brokers)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no brokers configured")
	}
}
