// Package errorhandler provides error mapping and retry middleware for
// completion calls.
package errorhandler

import (
	"time"

	"github.com/sweetpotato0/deepresearch/middleware"
)

// ErrorHandlerFunc handles errors.
type ErrorHandlerFunc func(error) error

// ErrorHandler maps errors surfacing from downstream middlewares.
type ErrorHandler struct {
	handler ErrorHandlerFunc
}

// NewErrorHandler creates an error handling middleware.
func NewErrorHandler(handler ErrorHandlerFunc) *ErrorHandler {
	return &ErrorHandler{handler: handler}
}

// Name returns the middleware name.
func (m *ErrorHandler) Name() string {
	return "ErrorHandler"
}

// Execute handles errors from downstream middlewares.
func (m *ErrorHandler) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil && m.handler != nil {
		return m.handler(err)
	}
	return err
}

// Retry re-attempts failed completion calls with a fixed backoff.
type Retry struct {
	attempts int
	backoff  time.Duration
}

// NewRetry creates a retry middleware. Attempts below 1 are treated as 1.
func NewRetry(attempts int, backoff time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}
	return &Retry{attempts: attempts, backoff: backoff}
}

// Name returns the middleware name.
func (m *Retry) Name() string {
	return "Retry"
}

// Execute retries the rest of the chain until it succeeds or attempts run out.
func (m *Retry) Execute(ctx *middleware.Context, next middleware.Handler) error {
	var err error
	for attempt := 0; attempt < m.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Context().Done():
				return ctx.Context().Err()
			case <-time.After(m.backoff):
			}
		}
		if err = next(ctx); err == nil {
			return nil
		}
	}
	return err
}
