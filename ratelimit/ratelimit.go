// Package ratelimit implements fixed-window request limiting keyed by client
// address.
package ratelimit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/agentdesk/logging"
)

// Window is the state of one key's current window after a hit.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Store counts hits per key. Implementations must be safe for concurrent use.
type Store interface {
	// Hit records one request for key and returns the updated window. A
	// window that has elapsed restarts at 1.
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}

// Options configure a Limiter.
type Options struct {
	Logger logging.Logger
	// Max is the number of requests allowed per window.
	Max int
	// Window is the window length.
	Window time.Duration
	// KeyFunc derives the client key; defaults to ClientIP.
	KeyFunc func(r *http.Request) string
	now     func() time.Time
}

// Limiter is an HTTP middleware enforcing Options.Max per window.
type Limiter struct {
	store Store
	opts  Options
}

// New creates a Limiter over store.
func New(store Store, optFns ...func(o *Options)) *Limiter {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Max:     100,
		Window:  15 * time.Minute,
		KeyFunc: ClientIP,
		now:     time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Limiter{store: store, opts: opts}
}

// Middleware sets X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset (seconds) on every response and rejects requests beyond
// the limit with 429. Store failures let the request through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.opts.KeyFunc(r)
		win, err := l.store.Hit(r.Context(), key, l.opts.Window)
		if err != nil {
			l.opts.Logger.Warn("ratelimit.store.error", "key", key, "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(l.opts.Max-win.Count, 0)
		reset := int(max(win.ResetAt.Sub(l.opts.now()), 0).Seconds() + 0.999)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.opts.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.Itoa(reset))

		if win.Count > l.opts.Max {
			l.opts.Logger.Info("ratelimit.rejected", "key", key, "count", win.Count)
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too Many Requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host of RemoteAddr, or "unknown".
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
