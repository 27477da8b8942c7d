package gin

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen int64 // unix nano
}

// Store keeps one token bucket per key and forgets idle keys after ttl.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	rate    rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewStore creates a store allowing r events per second with burst per key
func NewStore(r rate.Limit, burst int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if burst <= 0 {
		burst = 1
	}
	return &Store{
		entries: make(map[string]*entry, 64),
		rate:    r,
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (s *Store) Allow(key string) bool {
	now := s.now().UnixNano()

	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.rate, s.burst), lastSeen: now}
		s.entries[key] = e
	} else {
		atomic.StoreInt64(&e.lastSeen, now)
	}
	s.mu.Unlock()

	return e.limiter.Allow()
}

// StartJanitor drops idle keys every interval until ctx ends.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) *fund.Handle {
	if every <= 0 {
		every = time.Minute
	}
	return fund.Every(ctx, every, false, func(context.Context) {
		s.cleanup()
	})
}

// Len is the number of tracked keys
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) cleanup() {
	cut := s.now().Add(-s.ttl).UnixNano()

	s.mu.Lock()
	for k, e := range s.entries {
		if atomic.LoadInt64(&e.lastSeen) < cut {
			delete(s.entries, k)
		}
	}
	s.mu.Unlock()
}
