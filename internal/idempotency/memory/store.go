package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/laborders/internal/clock"
	"github.com/dejobratic/laborders/internal/orders/ports"
)

type entry struct {
	response  ports.StoredResponse
	expiresAt time.Time
}

// Store retains idempotency responses in process memory until they expire.
type Store struct {
	mu    sync.RWMutex
	items map[string]entry
	clock clock.Clock
	ttl   time.Duration
}

// NewStore creates a new in-memory idempotency store. A non-positive ttl keeps entries forever.
func NewStore(clk clock.Clock, ttl time.Duration) *Store {
	if clk == nil {
		clk = clock.System()
	}
	return &Store{
		items: make(map[string]entry),
		clock: clk,
		ttl:   ttl,
	}
}

// Get returns the stored response for a key if present and not expired.
func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.items[key]
	if !ok || s.expired(e) {
		return nil, nil
	}
	resp := e.response
	resp.Body = append([]byte(nil), e.response.Body...)
	return &resp, nil
}

// Save stores the response for a key. The first live response for a key wins.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.items[key]; ok && !s.expired(e) {
		return nil
	}

	response.Body = append([]byte(nil), response.Body...)
	e := entry{response: response}
	if s.ttl > 0 {
		e.expiresAt = s.clock.Now().Add(s.ttl)
	}
	s.items[key] = e
	return nil
}

// PurgeExpired drops entries that expired before the given instant.
func (s *Store) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for key, e := range s.items {
		if !e.expiresAt.IsZero() && !e.expiresAt.After(before) {
			delete(s.items, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.clock.Now().Before(e.expiresAt)
}

var _ ports.IdempotencyStore = (*Store)(nil)
