// Package limiter caps how many completion calls a run may issue.
package limiter

import (
	"sync"

	"github.com/sweetpotato0/deepresearch/middleware"
)

// ErrRateLimitExceeded indicates rate limit has been exceeded.
var ErrRateLimitExceeded = middleware.ErrRateLimitExceeded

// RateLimiter middleware for rate limiting.
type RateLimiter struct {
	mu          sync.Mutex
	maxRequests int
	counter     int
}

// NewRateLimiter creates a rate limiting middleware.
func NewRateLimiter(maxRequests int) *RateLimiter {
	return &RateLimiter{maxRequests: maxRequests}
}

// Name returns the middleware name.
func (m *RateLimiter) Name() string {
	return "RateLimiter"
}

// Execute checks the rate limit before passing the call on.
func (m *RateLimiter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	m.mu.Lock()
	if m.counter >= m.maxRequests {
		m.mu.Unlock()
		return ErrRateLimitExceeded
	}
	m.counter++
	m.mu.Unlock()
	return next(ctx)
}

// Reset resets the rate limiter counter.
func (m *RateLimiter) Reset() {
	m.mu.Lock()
	m.counter = 0
	m.mu.Unlock()
}

// GetCounter returns current request count.
func (m *RateLimiter) GetCounter() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counter
}
