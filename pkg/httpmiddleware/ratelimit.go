package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero disables the
	// limit.
	Max int
	// Window is the window duration.
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window from the counts of the current and
// previous fixed windows.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

// Limiter enforces a per-client request rate.
type Limiter struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter creates a Limiter. Call Run to evict idle clients.
func NewLimiter(cfg RateLimitConfig) *Limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &Limiter{cfg: cfg, counters: make(map[string]*counter)}
}

// take counts a request for key at now unless the limit is reached.
func (l *Limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{currStart: now.Truncate(l.cfg.Window)}
		l.counters[key] = c
	}

	if since := now.Sub(c.currStart); since >= l.cfg.Window {
		c.prev = c.curr
		if since >= 2*l.cfg.Window {
			c.prev = 0
		}
		c.curr = 0
		c.currStart = now.Truncate(l.cfg.Window)
	}

	weight := 1 - now.Sub(c.currStart).Seconds()/l.cfg.Window.Seconds()
	weight = math.Max(weight, 0)
	used := c.prev*weight + c.curr
	resetAt = c.currStart.Add(l.cfg.Window)

	if used >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}
	c.curr++
	return max(int(float64(l.cfg.Max)-used-1), 0), resetAt, true
}

// evict drops clients idle for two windows.
func (l *Limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.cfg.Window {
			delete(l.counters, key)
		}
	}
}

// Run evicts idle clients every two windows until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	if l.cfg.Window <= 0 {
		return
	}
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evict(now)
		}
	}
}

// Middleware returns the limiting middleware. Limited requests get 429 with
// a JSON error and Retry-After; every response carries X-RateLimit-* headers.
func (l *Limiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if l.cfg.Max <= 0 || l.cfg.Window <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.take(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retry := max(time.Until(resetAt), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
