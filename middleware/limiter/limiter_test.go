package limiter

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/deepresearch/middleware"
)

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2)
	ctx := middleware.NewContext(context.Background(), nil)
	noop := func(*middleware.Context) error { return nil }

	for i := 0; i < 2; i++ {
		if err := rl.Execute(ctx, noop); err != nil {
			t.Fatalf("call %d should pass: %v", i, err)
		}
	}
	if err := rl.Execute(ctx, noop); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rl.GetCounter() != 2 {
		t.Fatalf("expected counter 2, got %d", rl.GetCounter())
	}

	rl.Reset()
	if err := rl.Execute(ctx, noop); err != nil {
		t.Fatalf("call after reset should pass: %v", err)
	}
}
