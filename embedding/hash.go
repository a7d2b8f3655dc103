package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"

	"github.com/sweetpotato0/deepresearch/vector"
)

const minHashDimension = 32

// HashEmbedder is a deterministic, offline embedder. Each lowercase token is
// hashed with SHA-256 and the digest is folded into dimension buckets, so the
// same text always maps to the same unit vector with no network dependency.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash embedder with the given dimension,
// floored at 32.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension < minHashDimension {
		dimension = minHashDimension
	}
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the number of embedding dimensions.
func (e *HashEmbedder) Dimension() int {
	return e.dimension
}

// Embed converts text to a normalized bucket-count vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		digest := sha256.Sum256([]byte(token))
		for i := 0; i+4 <= len(digest); i += 4 {
			bucket := binary.BigEndian.Uint32(digest[i:i+4]) % uint32(e.dimension)
			vec[bucket]++
		}
	}
	return vector.Normalize(vec), nil
}

// EmbedBatch converts multiple texts to embeddings.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}
