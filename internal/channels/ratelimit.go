package channels

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket guarding platform API calls. A burst up to
// capacity is allowed, then tokens refill at a steady per-second rate.
type RateLimiter struct {
	rate     float64
	capacity int

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	now        func() time.Time
}

// NewRateLimiter creates a bucket with rate tokens per second and the given
// burst capacity.
func NewRateLimiter(rate float64, capacity int) *RateLimiter {
	r := &RateLimiter{
		rate:     rate,
		capacity: capacity,
		tokens:   float64(capacity),
		now:      time.Now,
	}
	r.lastRefill = r.now()
	return r
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		if r.Allow() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.waitDuration()):
		}
	}
}

// Allow consumes a token if one is available.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// Tokens returns the current token count.
func (r *RateLimiter) Tokens() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refill()
	return r.tokens
}

// refill adds tokens for the elapsed time. Caller holds the lock.
func (r *RateLimiter) refill() {
	now := r.now()
	r.tokens += now.Sub(r.lastRefill).Seconds() * r.rate
	if r.tokens > float64(r.capacity) {
		r.tokens = float64(r.capacity)
	}
	r.lastRefill = now
}

func (r *RateLimiter) waitDuration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - r.tokens) / r.rate * float64(time.Second))
}
