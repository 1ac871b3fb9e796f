package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newMemory(t *testing.T, capacity int, c *clock) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(capacity)
	require.NoError(t, err)
	s.now = c.now
	return s
}

func TestMemoryStore_WindowResets(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	s := newMemory(t, 10, c)
	ctx := context.Background()

	w, _ := s.Hit(ctx, "a", time.Minute)
	assert.Equal(t, 1, w.Count)
	w, _ = s.Hit(ctx, "a", time.Minute)
	assert.Equal(t, 2, w.Count)
	assert.Equal(t, c.t.Add(time.Minute), w.ResetAt)

	c.t = c.t.Add(time.Minute + time.Second)
	w, _ = s.Hit(ctx, "a", time.Minute)
	assert.Equal(t, 1, w.Count)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	s := newMemory(t, 2, c)
	ctx := context.Background()

	_, _ = s.Hit(ctx, "a", time.Minute)
	_, _ = s.Hit(ctx, "a", time.Minute)
	_, _ = s.Hit(ctx, "b", time.Minute)
	_, _ = s.Hit(ctx, "c", time.Minute)
	assert.Equal(t, 2, s.Len())

	// "a" was evicted, so its count restarts.
	w, _ := s.Hit(ctx, "a", time.Minute)
	assert.Equal(t, 1, w.Count)
}

func TestMiddleware(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	l := New(newMemory(t, 10, c), func(o *Options) {
		o.Max = 2
		o.Window = 30 * time.Second
		o.now = c.now
	})
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/agents", nil)
		req.Header.Set("X-Forwarded-For", ip+", 10.0.0.1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do("1.1.1.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Reset"))

	rec = do("1.1.1.1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = do("1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too Many Requests"}`, rec.Body.String())
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Other clients are unaffected.
	assert.Equal(t, http.StatusNoContent, do("2.2.2.2").Code)
}

type failingStore struct{}

func (failingStore) Hit(context.Context, string, time.Duration) (Window, error) {
	return Window{}, errors.New("redis down")
}

func TestMiddleware_FailsOpen(t *testing.T) {
	h := New(failingStore{}).Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": " 9.9.9.9 , 8.8.8.8"}, "1.2.3.4:5", "9.9.9.9"},
		{"real ip", map[string]string{"X-Real-IP": "7.7.7.7"}, "1.2.3.4:5", "7.7.7.7"},
		{"remote addr", nil, "1.2.3.4:5", "1.2.3.4"},
		{"remote without port", nil, "1.2.3.4", "1.2.3.4"},
		{"unknown", nil, "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}

func TestNewRedisStore_RequiresAddress(t *testing.T) {
	_, err := NewRedisStore(context.Background(), RedisConfig{})
	assert.Error(t, err)
}

func TestRedisStore_Key(t *testing.T) {
	s := NewRedisStoreFromClient(nil, "")
	assert.Equal(t, "agentdesk:ratelimit:1.1.1.1", s.key("1.1.1.1"))
}
