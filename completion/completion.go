// Package completion defines the contract for text-completion backends used
// by the research engine. Providers live under contrib/provider.
package completion

import (
	"context"
	"strings"

	"github.com/sweetpotato0/deepresearch/errors"
	"github.com/sweetpotato0/deepresearch/message"
)

// Params carries generation parameters for a single call.
type Params struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	// Thinking requests extended reasoning from providers that support it.
	Thinking bool `json:"thinking,omitempty"`
}

// Usage reports token accounting for a completed call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Request is a single completion call: an ordered conversation plus params.
// OnToken, when set, receives incremental text as the provider produces it;
// the full text is still returned on the Response.
type Request struct {
	Messages []*message.Message
	Params   Params
	OnToken  func(text string)
}

// Response is the provider's reply.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Usage Usage  `json:"usage"`
}

// Client is implemented by completion backends.
type Client interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Validate checks that a request is well formed.
func (r *Request) Validate() error {
	if r == nil || len(r.Messages) == 0 {
		return errors.ErrInvalidInput
	}
	return nil
}

// Emit forwards text to the OnToken callback when one is set.
func (r *Request) Emit(text string) {
	if r.OnToken != nil && text != "" {
		r.OnToken(text)
	}
}

// SplitSystem separates leading system messages from the conversation, for
// providers that take the system prompt out of band.
func SplitSystem(msgs []*message.Message) (system string, rest []*message.Message) {
	var parts []string
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if msg.Role == message.RoleSystem {
			if strings.TrimSpace(msg.Content) != "" {
				parts = append(parts, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(parts, "\n\n"), rest
}
