package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/message"
	"github.com/sweetpotato0/deepresearch/middleware"
)

func validCtx() *middleware.Context {
	req := &completion.Request{
		Messages: []*message.Message{message.NewMessage(message.RoleUser, "hello")},
	}
	return middleware.NewContext(context.Background(), req)
}

func TestRequestValidatorRejectsEmpty(t *testing.T) {
	v := NewRequestValidator(nil)
	ctx := middleware.NewContext(context.Background(), &completion.Request{})

	err := v.Execute(ctx, func(*middleware.Context) error { return nil })
	if !errors.Is(err, middleware.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRequestValidatorCustomRule(t *testing.T) {
	v := NewRequestValidator(func(req *completion.Request) error {
		if req.Params.MaxTokens > 100 {
			return errors.New("budget exceeded")
		}
		return nil
	})

	ctx := validCtx()
	if err := v.Execute(ctx, func(*middleware.Context) error { return nil }); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	ctx.Request.Params.MaxTokens = 200
	if err := v.Execute(ctx, func(*middleware.Context) error { return nil }); !errors.Is(err, middleware.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestResponseFilter(t *testing.T) {
	f := NewResponseFilter(func(resp *completion.Response) error {
		if resp.Text == "" {
			return errors.New("empty response")
		}
		return nil
	})

	ctx := validCtx()
	err := f.Execute(ctx, func(mc *middleware.Context) error {
		mc.Response = &completion.Response{Text: "content"}
		return nil
	})
	if err != nil {
		t.Fatalf("filter rejected valid response: %v", err)
	}

	err = f.Execute(ctx, func(mc *middleware.Context) error {
		mc.Response = &completion.Response{}
		return nil
	})
	if err == nil {
		t.Fatalf("expected filter error for empty response")
	}
}
