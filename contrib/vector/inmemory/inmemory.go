// Package inmemory provides an in-process semantic index over corpus items.
// It embeds fixed-size text blocks on insert and serves filtered cosine
// searches; useful for tests and fully offline runs.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sweetpotato0/deepresearch/corpus"
	"github.com/sweetpotato0/deepresearch/embedding"
	"github.com/sweetpotato0/deepresearch/errors"
	"github.com/sweetpotato0/deepresearch/vector"
)

const (
	defaultBlockChars = 800
	defaultTopK       = 10
)

// Option configures an Index.
type Option func(*Index)

// WithBlockChars sets the maximum characters per indexed block.
func WithBlockChars(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.blockChars = n
		}
	}
}

// Index is a thread-safe in-memory vector index.
type Index struct {
	mu         sync.RWMutex
	embedder   embedding.Embedder
	entries    []*entry
	blockChars int
}

type entry struct {
	linkID    string
	chunkID   string
	chunkType string
	text      string
	vec       []float32
}

// New creates an empty index backed by the given embedder.
func New(embedder embedding.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required: %w", errors.ErrInvalidInput)
	}
	ix := &Index{
		embedder:   embedder,
		blockChars: defaultBlockChars,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Add splits text into blocks, embeds each and stores them under the link id.
func (ix *Index) Add(ctx context.Context, linkID, chunkType, text string) error {
	blocks := splitBlocks(text, ix.blockChars)
	if len(blocks) == 0 {
		return nil
	}

	vecs, err := ix.embedder.EmbedBatch(ctx, blocks)
	if err != nil {
		return fmt.Errorf("embed blocks for %s: %w", linkID, err)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	for i, block := range blocks {
		ix.entries = append(ix.entries, &entry{
			linkID:    linkID,
			chunkID:   fmt.Sprintf("%s:%s:%d", linkID, chunkType, len(ix.entries)),
			chunkType: chunkType,
			text:      block,
			vec:       vecs[i],
		})
	}
	return nil
}

// IndexItem indexes an item's transcript, description and comments.
func (ix *Index) IndexItem(ctx context.Context, item *corpus.Item) error {
	if item == nil {
		return nil
	}
	if strings.TrimSpace(item.Transcript) != "" {
		if err := ix.Add(ctx, item.LinkID, "transcript", item.Transcript); err != nil {
			return err
		}
	}
	if strings.TrimSpace(item.Description) != "" {
		if err := ix.Add(ctx, item.LinkID, "description", item.Description); err != nil {
			return err
		}
	}
	for _, c := range item.Comments {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if err := ix.Add(ctx, item.LinkID, "comment", c.Text); err != nil {
			return err
		}
	}
	return nil
}

// IndexBatch indexes every item in a batch.
func (ix *Index) IndexBatch(ctx context.Context, batch *corpus.Batch) error {
	if batch == nil {
		return nil
	}
	for _, item := range batch.Items {
		if err := ix.IndexItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of indexed blocks.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Search implements vector.SearchService.
func (ix *Index) Search(ctx context.Context, query *vector.Query) ([]*vector.Result, error) {
	if query == nil || strings.TrimSpace(query.Text) == "" {
		return nil, fmt.Errorf("query text is required: %w", errors.ErrInvalidInput)
	}

	queryVec, err := ix.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	topK := query.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	linkFilter := toSet(query.LinkIDs)
	typeFilter := toSet(query.ChunkTypes)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	results := make([]*vector.Result, 0, len(ix.entries))
	for _, e := range ix.entries {
		if linkFilter != nil {
			if _, ok := linkFilter[e.linkID]; !ok {
				continue
			}
		}
		if typeFilter != nil {
			if _, ok := typeFilter[e.chunkType]; !ok {
				continue
			}
		}
		results = append(results, &vector.Result{
			LinkID:    e.linkID,
			ChunkID:   e.chunkID,
			ChunkType: e.chunkType,
			Score:     vector.CosineSimilarity(queryVec, e.vec),
			Preview:   e.text,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// splitBlocks cuts text into blocks of at most maxChars, breaking on word
// boundaries.
func splitBlocks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxChars <= 0 || len(text) <= maxChars {
		return []string{text}
	}

	words := strings.Fields(text)
	var blocks []string
	var current strings.Builder
	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			blocks = append(blocks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		blocks = append(blocks, current.String())
	}
	return blocks
}
