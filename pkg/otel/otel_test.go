package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := tracer
	tracer = tp.Tracer("test")
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		tracer = prev
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestGinMiddleware_UsesRouteTemplate(t *testing.T) {
	rec := withRecorder(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.POST("/v1/notifications/:id/read", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/notifications/abc/read", nil))

	require.Len(t, rec.Ended(), 1)
	assert.Equal(t, "POST /v1/notifications/:id/read", rec.Ended()[0].Name())
}

func TestMQSpans_PropagateThroughHeaders(t *testing.T) {
	rec := withRecorder(t)
	headers := map[string]interface{}{}

	_, pub := MQPublishSpan(context.Background(), "presentos.events", "notification.created", headers)
	pub.End()
	require.NotEmpty(t, MQHeaderCarrier(headers).Get("traceparent"))

	_, sub := MQConsumeSpan(context.Background(), "q", "notification.created", headers)
	sub.End()

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[0].SpanContext().TraceID(), spans[1].SpanContext().TraceID())
}

func TestOperation(t *testing.T) {
	assert.Equal(t, "select", operation("  SELECT 1"))
	assert.Equal(t, "query", operation(""))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
