package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"presentos/pkg/trace"
)

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		assert.Equal(t, "audio/wav", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-1", r.Header.Get(trace.HeaderName()))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "RIFF", string(body))
		_ = json.NewEncoder(w).Encode(Transcript{Text: "  check my emails ", Confidence: 0.4})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	ctx := trace.WithContext(context.Background(), "req-1")
	got, err := c.Transcribe(ctx, []byte("RIFF"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, "check my emails", got.Text)
	assert.InDelta(t, 0.4, got.Confidence, 1e-9)
}

func TestTranscribe_NoRetryOnFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	_, err := c.Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTranscribe_OwnTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, zap.NewNop())
	_, err := c.Transcribe(context.Background(), []byte("x"), "")
	require.Error(t, err)
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello", req["text"])
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, zap.NewNop())
	audio, ct, err := c.Synthesize(context.Background(), " hello ")
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), audio)
	assert.Equal(t, "audio/mpeg", ct)
}

func TestEmptyInputs(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused"}, zap.NewNop())
	_, err := c.Transcribe(context.Background(), nil, "")
	require.ErrorIs(t, err, ErrEmptyAudio)
	_, _, err = c.Synthesize(context.Background(), "  ")
	require.ErrorIs(t, err, ErrEmptyText)
}
