package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doFrom(h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/buy/1", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLimiter_UnderLimit(t *testing.T) {
	h := NewLimiter(RateLimitConfig{Max: 5, Window: time.Minute}).Middleware()(okHandler())

	for i := range 5 {
		w := doFrom(h, "192.168.1.1:12345", nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestLimiter_OverLimit(t *testing.T) {
	h := NewLimiter(RateLimitConfig{Max: 2, Window: time.Minute}).Middleware()(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, doFrom(h, "10.0.0.1:9999", nil).Code)
	}

	w := doFrom(h, "10.0.0.1:9999", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestLimiter_Keys(t *testing.T) {
	tests := []struct {
		name    string
		keyFunc func(*http.Request) string
		first   http.Header
		firstIP string
		second  http.Header
		secIP   string
		limited bool
	}{
		{
			name:    "different ips are independent",
			firstIP: "10.0.0.1:1234",
			secIP:   "10.0.0.2:1234",
		},
		{
			name:    "same ip different port is limited",
			firstIP: "10.0.0.1:1234",
			secIP:   "10.0.0.1:5678",
			limited: true,
		},
		{
			name:    "x-forwarded-for first hop",
			first:   http.Header{"X-Forwarded-For": {"203.0.113.50, 70.41.3.18"}},
			firstIP: "192.168.1.1:4444",
			second:  http.Header{"X-Forwarded-For": {"203.0.113.50"}},
			secIP:   "192.168.1.2:5555",
			limited: true,
		},
		{
			name:    "custom key",
			keyFunc: func(r *http.Request) string { return r.Header.Get("X-Client") },
			first:   http.Header{"X-Client": {"a"}},
			firstIP: "10.0.0.1:1",
			second:  http.Header{"X-Client": {"b"}},
			secIP:   "10.0.0.1:1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLimiter(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: tt.keyFunc}).Middleware()(okHandler())

			require.Equal(t, http.StatusOK, doFrom(h, tt.firstIP, tt.first).Code)

			want := http.StatusOK
			if tt.limited {
				want = http.StatusTooManyRequests
			}
			assert.Equal(t, want, doFrom(h, tt.secIP, tt.second).Code)
		})
	}
}

func TestLimiter_Disabled(t *testing.T) {
	h := NewLimiter(RateLimitConfig{}).Middleware()(okHandler())
	for range 3 {
		w := doFrom(h, "10.0.0.1:1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Max: 4, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for range 4 {
		_, _, ok := l.take("k", start)
		require.True(t, ok)
	}
	_, _, ok := l.take("k", start.Add(30*time.Second))
	assert.False(t, ok, "full within the same window")

	// Halfway into the next window half of the previous count still applies.
	remaining, _, ok := l.take("k", start.Add(90*time.Second))
	assert.True(t, ok)
	assert.Equal(t, 1, remaining)

	// Two windows later everything is forgotten.
	remaining, _, ok = l.take("k", start.Add(3*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := NewLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	l.take("idle", start)
	l.take("busy", start.Add(2*time.Minute))
	l.evict(start.Add(2*time.Minute + time.Second))

	assert.NotContains(t, l.counters, "idle")
	assert.Contains(t, l.counters, "busy")
}
