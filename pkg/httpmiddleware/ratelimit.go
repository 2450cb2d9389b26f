package httpmiddleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig bounds requests per key per window. The limiter weights the
// previous window by its overlap with the sliding window, so bursts at window
// edges cannot double the allowance.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc derives the limit key; defaults to the client IP.
	KeyFunc func(*http.Request) string
}

type window struct {
	start      time.Time
	count      float64
	prevCount  float64
	lastActive time.Time
}

type limiter struct {
	cfg RateLimitConfig

	mu   sync.Mutex
	keys map[string]*window
}

func (l *limiter) allow(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Opportunistic cleanup keeps the key map bounded without a background
	// goroutine.
	if len(l.keys) > 4*l.cfg.Max {
		l.evictStaleLocked(now)
	}

	w, found := l.keys[key]
	if !found {
		w = &window{start: now}
		l.keys[key] = w
	}
	w.lastActive = now

	if elapsed := now.Sub(w.start); elapsed >= l.cfg.Window {
		if elapsed >= 2*l.cfg.Window {
			w.prevCount = 0
		} else {
			w.prevCount = w.count
		}
		w.count = 0
		w.start = now.Truncate(l.cfg.Window)
	}

	overlap := 1 - now.Sub(w.start).Seconds()/l.cfg.Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	effective := w.prevCount*overlap + w.count
	reset = w.start.Add(l.cfg.Window)

	if effective >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	w.count++
	remaining = l.cfg.Max - int(effective) - 1
	if remaining < 0 {
		remaining = 0
	}
	return remaining, reset, true
}

func (l *limiter) evictStaleLocked(now time.Time) {
	for key, w := range l.keys {
		if now.Sub(w.lastActive) >= 2*l.cfg.Window {
			delete(l.keys, key)
		}
	}
}

// RateLimit enforces the configured limit, answering 429 with rate headers
// once a key exceeds it.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	l := &limiter{cfg: cfg, keys: make(map[string]*window)}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.allow(cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				retry := int(time.Until(reset).Seconds()) + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
