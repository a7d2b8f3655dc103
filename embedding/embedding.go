// Package embedding defines the embedding contract used by the novelty
// filter and the vector indexes. Network providers live under
// contrib/embedder; the hash embedder in this package is the offline
// fallback selected when no provider is configured.
package embedding

import "context"

// Embedder converts text to L2-normalized float vectors.
type Embedder interface {
	// Embed converts a single text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch converts multiple texts to embeddings, index-aligned with
	// the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the number of embedding dimensions.
	Dimension() int
}
