package mmr

import (
	"context"
	"errors"
	"testing"

	"github.com/sweetpotato0/deepresearch/vector"
)

// stubEmbedder maps preview text to fixed vectors so similarity is exact.
type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vectors[text], nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectors[t]
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int { return 3 }

func result(id, preview string, score float32) *vector.Result {
	return &vector.Result{LinkID: id, ChunkID: id, Preview: preview, Score: score}
}

func TestRerankPenalizesRedundantHits(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"pricing details": {1, 0, 0},
		"pricing recap":   {1, 0, 0},
		"security model":  {0, 1, 0},
	}}
	r := New(embedder)

	results := []*vector.Result{
		result("a", "pricing details", 1.0),
		result("b", "pricing recap", 0.9),
		result("c", "security model", 0.6),
	}

	ranked, err := r.Rerank(context.Background(), results)
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	if len(ranked) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ranked))
	}
	// "pricing recap" duplicates the first pick, so the security hit should
	// jump ahead of it despite its lower raw score.
	if ranked[0].ChunkID != "a" || ranked[1].ChunkID != "c" || ranked[2].ChunkID != "b" {
		t.Fatalf("unexpected order: %s, %s, %s", ranked[0].ChunkID, ranked[1].ChunkID, ranked[2].ChunkID)
	}
}

func TestRerankHonorsLimit(t *testing.T) {
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"one": {1, 0, 0}, "two": {0, 1, 0}, "three": {0, 0, 1},
	}}
	r := New(embedder)
	r.Limit = 2

	ranked, err := r.Rerank(context.Background(), []*vector.Result{
		result("1", "one", 0.9),
		result("2", "two", 0.8),
		result("3", "three", 0.7),
	})
	if err != nil {
		t.Fatalf("rerank failed: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
}

func TestRerankPassthroughSmallInputs(t *testing.T) {
	r := New(&stubEmbedder{err: errors.New("must not embed")})

	if out, err := r.Rerank(context.Background(), nil); err != nil || out != nil {
		t.Fatalf("empty input: got %v, %v", out, err)
	}

	single := []*vector.Result{result("a", "x", 1)}
	out, err := r.Rerank(context.Background(), single)
	if err != nil || len(out) != 1 || out[0].ChunkID != "a" {
		t.Fatalf("single input must pass through: %v, %v", out, err)
	}
}

func TestRerankEmbedderError(t *testing.T) {
	wantErr := errors.New("provider down")
	r := New(&stubEmbedder{err: wantErr})

	_, err := r.Rerank(context.Background(), []*vector.Result{
		result("a", "x", 1), result("b", "y", 0.5),
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected embedder error, got %v", err)
	}
}
