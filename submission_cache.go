package fund

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// SubmissionCache makes relayed submissions idempotent. It caches successful
// results and tracks requests still being processed, so a client retrying
// after a timeout does not cause a second on-chain permit or order.
type SubmissionCache[T any] struct {
	mu       sync.Mutex
	results  map[string]T
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewSubmissionCache creates a cache whose entries live for ttl.
func NewSubmissionCache[T any](ttl time.Duration) *SubmissionCache[T] {
	return &SubmissionCache[T]{
		results:  make(map[string]T),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SubmissionKey derives a cache key from a raw request body.
func SubmissionKey(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// LookupStatus is the outcome of Claim.
type LookupStatus int

const (
	// LookupMiss means this caller now owns the key and must Complete or Release it.
	LookupMiss LookupStatus = iota
	// LookupCached means a stored result was returned.
	LookupCached
	// LookupInFlight means another caller owns the key.
	LookupInFlight
)

// Claim atomically checks for a cached result and, on a miss, marks key in flight.
// The returned channel is closed when the owner finishes.
func (c *SubmissionCache[T]) Claim(key string) (LookupStatus, T, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if result, ok := c.getLocked(key); ok {
		return LookupCached, result, nil
	}

	if done, exists := c.inFlight[key]; exists {
		return LookupInFlight, zero, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return LookupMiss, zero, done
}

// Wait blocks until done closes or ctx ends, then reports the cached result if any.
func (c *SubmissionCache[T]) Wait(ctx context.Context, key string, done chan struct{}) (T, bool, error) {
	select {
	case <-done:
		result, ok := c.Get(key)
		return result, ok, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Get returns an unexpired result for key.
func (c *SubmissionCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *SubmissionCache[T]) getLocked(key string) (T, bool) {
	var zero T
	expiry, exists := c.expiry[key]
	if !exists {
		return zero, false
	}
	if c.now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return zero, false
	}
	return c.results[key], true
}

// Complete stores result for key and wakes waiters.
func (c *SubmissionCache[T]) Complete(key string, result T, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = result
	c.expiry[key] = c.now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)

	c.sweepLocked()
}

// Release drops the in-flight marker without storing anything so the request can be retried.
func (c *SubmissionCache[T]) Release(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// Len returns the number of stored results, expired or not.
func (c *SubmissionCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

func (c *SubmissionCache[T]) sweepLocked() {
	now := c.now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
