// Package vector defines the semantic-search contract consumed by the
// research engine, plus the vector math shared by index implementations.
package vector

import (
	"context"
	"math"
)

// Query describes one semantic-search call.
type Query struct {
	// Text is the natural-language query to embed and match.
	Text string
	// TopK bounds the number of results; implementations default it when <= 0.
	TopK int
	// LinkIDs restricts the search to the given corpus items; empty means all.
	LinkIDs []string
	// ChunkTypes restricts the search to chunk types (e.g. "transcript",
	// "comment"); empty means all.
	ChunkTypes []string
}

// Result is one ranked hit from a semantic search.
type Result struct {
	LinkID    string         `json:"link_id"`
	ChunkID   string         `json:"chunk_id"`
	ChunkType string         `json:"chunk_type,omitempty"`
	Score     float32        `json:"score"`
	Preview   string         `json:"preview"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchService is implemented by semantic-search backends. Absence of a
// backend demotes semantic retrieval to keyword search at the call site.
type SearchService interface {
	Search(ctx context.Context, query *Query) ([]*Result, error)
}

// Reranker reorders search results after retrieval, e.g. to trade raw
// relevance for diversity. Implementations live under contrib/reranker.
type Reranker interface {
	Rerank(ctx context.Context, results []*Result) ([]*Result, error)
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA)*math.Sqrt(normB) + 1e-8))
}

// Normalize scales a vector to unit length in place and returns it.
// Zero vectors are returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
