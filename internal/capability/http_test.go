package capability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presentos/internal/model"
	"presentos/pkg/circuitbreaker"
	"presentos/pkg/trace"
)

func TestStatusFailure(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   model.FailureKind
	}{
		{401, "", model.FailureUnauthorized},
		{403, "", model.FailureUnauthorized},
		{429, "", model.FailureRateLimited},
		{404, "", model.FailureNotFound},
		{400, "", model.FailureInvalidInput},
		{422, `{"message":"missing title"}`, model.FailureInvalidInput},
		{504, "", model.FailureTimeout},
		{502, "", model.FailureUnavailable},
		{500, `{"kind":"RateLimited","message":"quota"}`, model.FailureRateLimited},
		{500, `{"kind":"Skipped"}`, model.FailureUnavailable},
	}
	for _, tt := range tests {
		f := StatusFailure(tt.status, []byte(tt.body))
		assert.Equal(t, tt.want, f.Kind, "status %d body %s", tt.status, tt.body)
	}
}

func TestHTTPCapability_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoke", r.URL.Path)
		assert.Equal(t, "req-1", r.Header.Get(trace.HeaderName()))

		var req Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, model.KindScheduleEvent, req.Kind)

		_ = json.NewEncoder(w).Encode(Response{Summary: "Scheduled team sync for Friday 3pm"})
	}))
	defer srv.Close()

	c := NewHTTPCapability("scheduling", srv.URL+"/", srv.Client(), circuitbreaker.Config{}, zap.NewNop())
	ctx := trace.WithContext(context.Background(), "req-1")

	resp, err := c.Invoke(ctx, Request{Kind: model.KindScheduleEvent})
	require.NoError(t, err)
	assert.Equal(t, "Scheduled team sync for Friday 3pm", resp.Summary)
}

func TestHTTPCapability_BreakerOpensOnUnavailable(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPCapability("finance", srv.URL, srv.Client(), circuitbreaker.Config{FailureThreshold: 2, Timeout: time.Minute}, zap.NewNop())
	for i := 0; i < 2; i++ {
		_, err := c.Invoke(context.Background(), Request{Kind: model.KindCheckFinance})
		require.Error(t, err)
	}
	assert.Equal(t, circuitbreaker.StateOpen, c.Breaker().GetState())

	_, err := c.Invoke(context.Background(), Request{Kind: model.KindCheckFinance})
	var f *model.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailureUnavailable, f.Kind)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestHTTPCapability_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPCapability("relationship-memory", srv.URL, srv.Client(), circuitbreaker.Config{FailureThreshold: 1}, zap.NewNop())
	for i := 0; i < 3; i++ {
		_, err := c.Invoke(context.Background(), Request{Kind: model.KindRecallContact})
		assert.Equal(t, model.FailureNotFound, model.AsFailure(err).Kind)
	}
	assert.Equal(t, circuitbreaker.StateClosed, c.Breaker().GetState())
}

func TestHTTPCapability_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewHTTPCapability("research", srv.URL, srv.Client(), circuitbreaker.Config{}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Invoke(ctx, Request{Kind: model.KindRunResearch})
	assert.Equal(t, model.FailureTimeout, model.AsFailure(err).Kind)
}

func TestSet_Covers(t *testing.T) {
	s := NewSet(Echo("scheduling"), Echo("messaging"))
	require.NoError(t, s.Covers([]string{"scheduling"}))
	require.Error(t, s.Covers([]string{"scheduling", "finance"}))
}
