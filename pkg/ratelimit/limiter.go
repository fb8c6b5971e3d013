// Package ratelimit paces outgoing provider requests so a single
// account never exceeds its per-minute request budget.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Wait blocks until the rate limit allows another request
	Wait()
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity     int           // Maximum number of tokens
	tokens       int           // Current number of tokens
	refillPeriod time.Duration // Period after which bucket is refilled
	lastRefill   time.Time     // Last time the bucket was refilled
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}

	return false
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait() {
	for !tb.Allow() {
		tb.mu.Lock()
		timeUntilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if timeUntilRefill > 0 {
			time.Sleep(timeUntilRefill)
		} else {
			// Small sleep to prevent busy waiting
			time.Sleep(100 * time.Millisecond)
		}
	}
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill adds tokens based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// PerAccount hands out an independent token bucket per account so one
// throttled account cannot starve the others.
type PerAccount struct {
	capacity     int
	refillPeriod time.Duration
	limiters     map[string]*TokenBucket
	mu           sync.Mutex
}

// NewPerAccount creates a keyed limiter factory with a shared budget shape
func NewPerAccount(capacity int, refillPeriod time.Duration) *PerAccount {
	return &PerAccount{
		capacity:     capacity,
		refillPeriod: refillPeriod,
		limiters:     make(map[string]*TokenBucket),
	}
}

// Get returns the limiter for an account, creating it on first use
func (p *PerAccount) Get(account string) Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[account]
	if !ok {
		limiter = NewTokenBucket(p.capacity, p.refillPeriod)
		p.limiters[account] = limiter
	}
	return limiter
}

// Forget drops the limiter for an account
func (p *PerAccount) Forget(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.limiters, account)
}
