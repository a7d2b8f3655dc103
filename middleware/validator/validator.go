// Package validator provides request validation and response filtering
// middleware for completion calls.
package validator

import (
	"fmt"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/middleware"
)

// ValidatorFunc validates a completion request.
type ValidatorFunc func(*completion.Request) error

// FilterFunc transforms or filters responses.
type FilterFunc func(*completion.Response) error

// RequestValidator rejects malformed requests before they reach the backend.
type RequestValidator struct {
	validator ValidatorFunc
}

// NewRequestValidator creates a request validation middleware. Without a
// custom validator the request's own Validate is used.
func NewRequestValidator(validator ValidatorFunc) *RequestValidator {
	return &RequestValidator{validator: validator}
}

// Name returns the middleware name.
func (m *RequestValidator) Name() string {
	return "RequestValidator"
}

// Execute validates the request.
func (m *RequestValidator) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if err := ctx.Request.Validate(); err != nil {
		return fmt.Errorf("%w: %v", middleware.ErrInvalidInput, err)
	}
	if m.validator != nil {
		if err := m.validator(ctx.Request); err != nil {
			return fmt.Errorf("%w: %v", middleware.ErrInvalidInput, err)
		}
	}
	return next(ctx)
}

// ResponseFilter filters or transforms the response.
type ResponseFilter struct {
	filter FilterFunc
}

// NewResponseFilter creates a response filtering middleware.
func NewResponseFilter(filter FilterFunc) *ResponseFilter {
	return &ResponseFilter{filter: filter}
}

// Name returns the middleware name.
func (m *ResponseFilter) Name() string {
	return "ResponseFilter"
}

// Execute filters the response.
func (m *ResponseFilter) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	if err != nil {
		return err
	}
	if ctx.Response != nil && m.filter != nil {
		return m.filter(ctx.Response)
	}
	return nil
}
