package database

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const listSQL = "SELECT id FROM shipping_addresses WHERE user_id = $1"

func recordQuerySpans(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func slowQueryLog(t *testing.T, threshold time.Duration) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetSlowQueryLogging(threshold, slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	return &buf
}

func TestTraceQuery_Span(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status codes.Code
		events int
	}{
		{"success", nil, codes.Unset, 0},
		{"no rows", fmt.Errorf("get address: %w", pgx.ErrNoRows), codes.Unset, 0},
		{"failure", errors.New("connection refused"), codes.Error, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := recordQuerySpans(t)

			_, end := TraceQuery(context.Background(), "ListAddresses", listSQL)
			end(tt.err)

			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, "db.ListAddresses", spans[0].Name)
			assert.Equal(t, tt.status, spans[0].Status.Code)
			assert.Len(t, spans[0].Events, tt.events)

			attrs := map[string]string{}
			for _, kv := range spans[0].Attributes {
				attrs[string(kv.Key)] = kv.Value.Emit()
			}
			assert.Equal(t, "postgresql", attrs["db.system"])
			assert.Equal(t, listSQL, attrs["db.statement"])
		})
	}
}

func TestTraceQuery_ChildOfCaller(t *testing.T) {
	exporter := recordQuerySpans(t)

	ctx, parent := otel.Tracer("test").Start(context.Background(), "POST /sessions/{id}/submit")
	_, end := TraceQuery(ctx, "CreateAddress", "INSERT INTO shipping_addresses")
	end(nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func TestSlowQueryLogging(t *testing.T) {
	t.Run("slow failure is logged with its error", func(t *testing.T) {
		buf := slowQueryLog(t, time.Nanosecond)

		_, end := TraceQuery(context.Background(), "CreateAddress", "INSERT INTO shipping_addresses")
		end(errors.New("unique constraint violation"))

		out := buf.String()
		assert.Contains(t, out, "slow query detected")
		assert.Contains(t, out, "CreateAddress")
		assert.Contains(t, out, "unique constraint violation")
	})

	t.Run("fast query is quiet", func(t *testing.T) {
		buf := slowQueryLog(t, time.Hour)

		_, end := TraceQuery(context.Background(), "ListAddresses", listSQL)
		end(nil)

		assert.Empty(t, buf.String())
	})

	t.Run("disabled", func(t *testing.T) {
		SetSlowQueryLogging(time.Nanosecond, nil)
		assert.Nil(t, slowQuery.Load())

		_, end := TraceQuery(context.Background(), "ListAddresses", listSQL)
		assert.NotPanics(t, func() { end(nil) })
	})
}

func TestSetSlowQueryLogging_ConcurrentWithQueries(t *testing.T) {
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			SetSlowQueryLogging(time.Duration(i)*time.Millisecond, logger)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_, end := TraceQuery(context.Background(), "GetAddress", "SELECT 1")
			end(nil)
		}
	}()
	wg.Wait()
}
