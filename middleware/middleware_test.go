package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/message"
)

type recordingMiddleware struct {
	name  string
	trace *[]string
}

func (m *recordingMiddleware) Name() string { return m.name }

func (m *recordingMiddleware) Execute(ctx *Context, next Handler) error {
	*m.trace = append(*m.trace, m.name+":before")
	err := next(ctx)
	*m.trace = append(*m.trace, m.name+":after")
	return err
}

type echoClient struct {
	calls int
	err   error
}

func (c *echoClient) Generate(_ context.Context, req *completion.Request) (*completion.Response, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	last := req.Messages[len(req.Messages)-1]
	return &completion.Response{Text: "echo:" + last.Content}, nil
}

func userRequest(text string) *completion.Request {
	return &completion.Request{Messages: []*message.Message{message.NewMessage(message.RoleUser, text)}}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	chain := NewChain(
		&recordingMiddleware{name: "outer", trace: &trace},
		&recordingMiddleware{name: "inner", trace: &trace},
	)

	client := chain.Wrap(&echoClient{})
	resp, err := client.Generate(context.Background(), userRequest("ping"))
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Text != "echo:ping" {
		t.Fatalf("unexpected response %q", resp.Text)
	}

	want := []string{"outer:before", "inner:before", "inner:after", "outer:after"}
	if len(trace) != len(want) {
		t.Fatalf("unexpected trace %v", trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected trace %v, got %v", want, trace)
		}
	}
}

func TestChainAdd(t *testing.T) {
	var trace []string
	chain := NewChain()
	chain.Add(&recordingMiddleware{name: "added", trace: &trace})

	if _, err := chain.Wrap(&echoClient{}).Generate(context.Background(), userRequest("x")); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(trace) != 2 {
		t.Fatalf("added middleware did not run: %v", trace)
	}
}

func TestWrapPropagatesError(t *testing.T) {
	wantErr := errors.New("backend down")
	client := NewChain().Wrap(&echoClient{err: wantErr})

	if _, err := client.Generate(context.Background(), userRequest("x")); !errors.Is(err, wantErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestWrapNilRequest(t *testing.T) {
	client := NewChain().Wrap(&echoClient{})
	if _, err := client.Generate(context.Background(), nil); !errors.Is(err, ErrInvalidContext) {
		t.Fatalf("expected ErrInvalidContext, got %v", err)
	}
}

type abortMiddleware struct{}

func (m *abortMiddleware) Name() string { return "abort" }

func (m *abortMiddleware) Execute(*Context, Handler) error {
	return ErrMiddlewareChainFailed
}

func TestChainStopsOnError(t *testing.T) {
	backend := &echoClient{}
	client := NewChain(&abortMiddleware{}).Wrap(backend)

	if _, err := client.Generate(context.Background(), userRequest("x")); !errors.Is(err, ErrMiddlewareChainFailed) {
		t.Fatalf("expected chain failure, got %v", err)
	}
	if backend.calls != 0 {
		t.Fatalf("backend must not be called after chain abort")
	}
}
