// Package middleware decorates completion clients with cross-cutting
// behavior: logging, rate limiting, validation, retries. Middlewares run in
// chain order around every Generate call.
package middleware

import (
	"context"

	"github.com/sweetpotato0/deepresearch/completion"
)

// Context represents the middleware execution context for one completion call.
type Context struct {
	// Request is the completion call being made; middlewares may adjust it.
	Request *completion.Request

	// Response is set once the underlying client has answered.
	Response *completion.Response

	// Metadata passes data between middlewares.
	Metadata map[string]any

	context context.Context
}

// NewContext creates a middleware context around a request.
func NewContext(ctx context.Context, req *completion.Request) *Context {
	return &Context{
		Request:  req,
		Metadata: make(map[string]any),
		context:  ctx,
	}
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	return c.context
}

// Middleware intercepts completion calls. Returning an error stops the chain.
type Middleware interface {
	// Name identifies the middleware for logging and debugging.
	Name() string

	// Execute runs the middleware logic and calls next to continue the chain.
	Execute(ctx *Context, next Handler) error
}

// Handler passes control to the next middleware in the chain.
type Handler func(*Context) error

// Chain is an ordered sequence of middlewares.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Add appends a middleware to the chain.
func (c *Chain) Add(m Middleware) *Chain {
	c.middlewares = append(c.middlewares, m)
	return c
}

// Execute runs the chain, then the final handler.
func (c *Chain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *Chain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}
	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}
	return c.middlewares[index].Execute(ctx, nextHandler)
}

// Wrap decorates a completion client so every Generate call runs the chain.
func (c *Chain) Wrap(client completion.Client) completion.Client {
	return &wrappedClient{chain: c, client: client}
}

type wrappedClient struct {
	chain  *Chain
	client completion.Client
}

func (w *wrappedClient) Generate(ctx context.Context, req *completion.Request) (*completion.Response, error) {
	if req == nil {
		return nil, ErrInvalidContext
	}
	mctx := NewContext(ctx, req)
	err := w.chain.Execute(mctx, func(mc *Context) error {
		resp, err := w.client.Generate(mc.Context(), mc.Request)
		mc.Response = resp
		return err
	})
	if err != nil {
		return nil, err
	}
	return mctx.Response, nil
}
