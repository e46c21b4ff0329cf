package gt8004

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gt8004/gt8004-go/pkg/middleware"
	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngest struct {
	*httptest.Server
	mu      sync.Mutex
	batches []telemetry.LogBatch
}

func newFakeIngest(t *testing.T) *fakeIngest {
	f := &fakeIngest{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_live" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var b telemetry.LogBatch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.batches = append(f.batches, b)
		f.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIngest) entries() []telemetry.LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []telemetry.LogEntry
	for _, b := range f.batches {
		out = append(out, b.Entries...)
	}
	return out
}

func TestNewRejectsMissingFields(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	_, err = New(Config{AgentID: "a"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{AgentID: "a", APIKey: "k", Endpoint: "not a url"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{AgentID: "a", APIKey: "k", BatchSize: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{AgentID: "a", APIKey: "k"}.withDefaults()
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 5000, cfg.FlushIntervalMs)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.False(t, cfg.Debug)
}

func TestMiddlewareToIngest(t *testing.T) {
	ingest := newFakeIngest(t)
	logger, err := New(Config{
		AgentID:         "agent-1",
		APIKey:          "sk_live",
		Endpoint:        ingest.URL,
		BatchSize:       10,
		FlushIntervalMs: 60_000,
	})
	require.NoError(t, err)

	var mirrored []telemetry.LogEntry
	mirror := middleware.SinkFunc(func(e telemetry.LogEntry) { mirrored = append(mirrored, e) })

	h := logger.Middleware(middleware.CaptureOptions{}, mirror)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "pong")
	}))
	for _, path := range []string{"/chat", "/search"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, 2, logger.Stats().Buffered)
	require.Len(t, mirrored, 2)

	require.NoError(t, logger.Flush(context.Background()))

	got := ingest.entries()
	require.Len(t, got, 2)
	assert.Equal(t, "chat", telemetry.Value(got[0].ToolName))
	assert.Equal(t, "search", telemetry.Value(got[1].ToolName))
	assert.Equal(t, mirrored[0].RequestID, got[0].RequestID)

	require.NoError(t, logger.Close(context.Background()))
}

func TestLogRequestAndClose(t *testing.T) {
	ingest := newFakeIngest(t)
	logger, err := New(Config{AgentID: "agent-1", APIKey: "sk_live", Endpoint: ingest.URL, Debug: true})
	require.NoError(t, err)

	logger.LogRequest(telemetry.LogEntry{Method: http.MethodPost, Path: "/manual", StatusCode: 200})
	require.NoError(t, logger.Close(context.Background()))

	got := ingest.entries()
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].RequestID)
	assert.False(t, got[0].Timestamp.IsZero())
	assert.Equal(t, "/manual", got[0].Path)
	assert.Equal(t, "agent-1", logger.AgentID())
}
