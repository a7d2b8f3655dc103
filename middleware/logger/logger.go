// Package logger provides request/response logging middleware for completion
// calls.
package logger

import (
	"log/slog"

	"github.com/sweetpotato0/deepresearch/middleware"
	"github.com/sweetpotato0/deepresearch/pkg/logging"
)

// RequestLogger logs outgoing completion requests.
type RequestLogger struct {
	logger *slog.Logger
}

// NewRequestLogger creates a request logging middleware.
func NewRequestLogger(logger *slog.Logger) *RequestLogger {
	if logger == nil {
		logger = logging.WithComponent("completion")
	}
	return &RequestLogger{logger: logger}
}

// Name returns the middleware name.
func (m *RequestLogger) Name() string {
	return "RequestLogger"
}

// Execute logs the request shape before passing it on.
func (m *RequestLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if ctx.Request != nil {
		m.logger.Debug("completion request",
			"messages", len(ctx.Request.Messages),
			"model", ctx.Request.Params.Model,
		)
	}
	return next(ctx)
}

// ResponseLogger logs completion responses and failures.
type ResponseLogger struct {
	logger *slog.Logger
}

// NewResponseLogger creates a response logging middleware.
func NewResponseLogger(logger *slog.Logger) *ResponseLogger {
	if logger == nil {
		logger = logging.WithComponent("completion")
	}
	return &ResponseLogger{logger: logger}
}

// Name returns the middleware name.
func (m *ResponseLogger) Name() string {
	return "ResponseLogger"
}

// Execute logs the response after the chain completes.
func (m *ResponseLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	err := next(ctx)
	switch {
	case err != nil:
		m.logger.Warn("completion failed", "error", err)
	case ctx.Response != nil:
		m.logger.Debug("completion response",
			"chars", len(ctx.Response.Text),
			"input_tokens", ctx.Response.Usage.InputTokens,
			"output_tokens", ctx.Response.Usage.OutputTokens,
		)
	}
	return err
}
