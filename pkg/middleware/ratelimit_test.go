package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chat", nil))
	return rec
}

func TestRateLimiterLocalBurst(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimit{Enabled: true, RPS: 0.001, Burst: 2}, zerolog.Nop())
	h := rl.Middleware(okHandler())

	assert.Equal(t, http.StatusOK, hit(h).Code)
	assert.Equal(t, http.StatusOK, hit(h).Code)

	rec := hit(h)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimit{Enabled: false, RPS: 0.001, Burst: 1}, zerolog.Nop())
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, hit(h).Code)
	}
}

func TestRateLimiterSetLimit(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimit{Enabled: true, RPS: 0.001, Burst: 1}, zerolog.Nop())
	h := rl.Middleware(okHandler())

	assert.Equal(t, http.StatusOK, hit(h).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h).Code)

	rl.SetLimit(RateLimit{Enabled: false})
	assert.Equal(t, http.StatusOK, hit(h).Code)
}

func TestCallerKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", callerKey(r, "X-Agent-ID"))

	r.Header.Set("X-Agent-ID", "agent-42")
	assert.Equal(t, "customer:agent-42", callerKey(r, "X-Agent-ID"))
	assert.Equal(t, "ip:10.0.0.7", callerKey(r, ""))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "ip:pipe", callerKey(r, ""))
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	h := AccessLog(zerolog.New(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("missing"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/search", nil))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/search", line["path"])
	assert.EqualValues(t, 404, line["status"])
	assert.EqualValues(t, 7, line["bytes"])
}
