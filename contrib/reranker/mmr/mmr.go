// Package mmr reranks semantic-search hits with Max Marginal Relevance to
// reduce redundancy before the hits are rendered into evidence.
package mmr

import (
	"context"
	"math"

	"github.com/sweetpotato0/deepresearch/embedding"
	"github.com/sweetpotato0/deepresearch/vector"
)

// Reranker implements Max Marginal Relevance over search results. Result
// previews are embedded on demand so the reranker works with any backend,
// including ones that do not expose raw vectors.
type Reranker struct {
	Lambda   float32
	Limit    int
	embedder embedding.Embedder
}

// New returns an MMR reranker with sensible defaults.
func New(embedder embedding.Embedder) *Reranker {
	return &Reranker{
		Lambda:   0.7,
		Limit:    8,
		embedder: embedder,
	}
}

// Rerank reorders results so that each pick balances relevance against
// similarity to already-picked results. The input order is treated as the
// relevance ranking when scores are absent.
func (m *Reranker) Rerank(ctx context.Context, results []*vector.Result) ([]*vector.Result, error) {
	if len(results) <= 1 {
		return results, nil
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Preview
	}
	vectors, err := m.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}

	type item struct {
		res *vector.Result
		vec []float32
	}
	remaining := make([]item, len(results))
	for i, res := range results {
		remaining[i] = item{res: res, vec: vectors[i]}
	}

	limit := m.Limit
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}

	selected := make([]*vector.Result, 0, limit)
	selectedVecs := make([][]float32, 0, limit)
	for len(remaining) > 0 && len(selected) < limit {
		bestIdx := -1
		bestScore := float32(math.Inf(-1))
		for idx, cand := range remaining {
			diversityPenalty := float32(0)
			for _, picked := range selectedVecs {
				if sim := vector.CosineSimilarity(cand.vec, picked); sim > diversityPenalty {
					diversityPenalty = sim
				}
			}
			score := m.Lambda*cand.res.Score - (1-m.Lambda)*diversityPenalty
			if score > bestScore {
				bestScore = score
				bestIdx = idx
			}
		}
		if bestIdx == -1 {
			break
		}
		best := remaining[bestIdx]
		selected = append(selected, best.res)
		selectedVecs = append(selectedVecs, best.vec)
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected, nil
}
