package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of client keys a MemoryStore tracks.
const DefaultCapacity = 10000

// MemoryStore keeps windows in a fixed-size LRU cache; the least recently
// seen clients are evicted once it is full.
type MemoryStore struct {
	mu    sync.Mutex
	cache *lru.Cache[string, Window]
	now   func() time.Time
}

// NewMemoryStore creates a store tracking at most capacity keys.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, Window](capacity)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

// Hit implements Store.
func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.cache.Get(key)
	if !ok || now.After(w.ResetAt) {
		w = Window{ResetAt: now.Add(window)}
	}
	w.Count++
	s.cache.Add(key, w)
	return w, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int { return s.cache.Len() }
