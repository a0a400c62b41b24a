package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/storefront-shipping/pkg/logger"
)

// logLines decodes every JSON line written to buf.
func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func logFromHandler(w http.ResponseWriter, r *http.Request) {
	logger.FromContext(r.Context()).Info("shipping handler")
	w.WriteHeader(http.StatusOK)
}

func TestRequestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(logger.NewWithWriter("shipping-test", "info", &buf))(http.HandlerFunc(logFromHandler))

	traceID, _ := trace.TraceIDFromHex("0af7651916cd43dd8448eb211c80319c")
	spanID, _ := trace.SpanIDFromHex("b7ad6b7169203331")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))
	ctx = logger.WithCorrelationID(ctx, "corr-42")
	ctx = withUserID(ctx, "user-7")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "corr-42", lines[0]["correlation_id"])
	assert.Equal(t, "user-7", lines[0]["user_id"])
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", lines[0]["trace_id"])
	assert.Equal(t, "b7ad6b7169203331", lines[0]["span_id"])
}

func TestRequestLogger_UserIDOnlyFromIdentityMiddleware(t *testing.T) {
	tests := map[string]struct {
		wrap func(http.Handler) http.Handler
		want any
	}{
		"gateway identity": {GatewayIdentity, "user-from-gateway"},
		"no identity":      {func(h http.Handler) http.Handler { return h }, nil},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			h := tc.wrap(RequestLogger(logger.NewWithWriter("shipping-test", "info", &buf))(http.HandlerFunc(logFromHandler)))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(UserIDHeader, "user-from-gateway")
			h.ServeHTTP(httptest.NewRecorder(), req)

			lines := logLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, tc.want, lines[0]["user_id"])
		})
	}
}

func TestRequestLogging_CorrelationID(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogging(logger.NewWithWriter("shipping-test", "info", &buf))(http.HandlerFunc(logFromHandler))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/shipping/sessions", nil)
	req.Header.Set(CorrelationIDHeader, "checkout-corr")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "checkout-corr", rec.Header().Get(CorrelationIDHeader))
	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "http request", lines[0]["msg"])
	assert.Equal(t, "checkout-corr", lines[0]["correlation_id"])
	assert.EqualValues(t, http.StatusOK, lines[0]["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/shipping/sessions", nil))
	assert.NotEmpty(t, rec.Header().Get(CorrelationIDHeader), "a missing correlation id is generated")
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, requestLevel("/health/ready", http.StatusOK))
	assert.Equal(t, slog.LevelDebug, requestLevel("/metrics", http.StatusOK))
	assert.Equal(t, slog.LevelError, requestLevel("/health/ready", http.StatusServiceUnavailable))
	assert.Equal(t, slog.LevelInfo, requestLevel("/api/v1/shipping/addresses", http.StatusNotFound))
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(logger.NewWithWriter("shipping-test", "info", &buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("resolver exploded")
	}))

	ctx := logger.WithCorrelationID(context.Background(), "corr-panic")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/shipping/sessions/s/locate", nil).WithContext(ctx))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")

	lines := logLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "panic recovered", lines[0]["msg"])
	assert.Equal(t, "corr-panic", lines[0]["correlation_id"])
	assert.Equal(t, "resolver exploded", lines[0]["panic"])
}

func TestRecovery_RepanicsOnAbort(t *testing.T) {
	h := Recovery(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
