// Package hybrid blends a semantic backend with a local BM25 keyword index
// so that exact-term matches survive even when embeddings miss them. It
// implements vector.SearchService and can wrap any other backend, most
// commonly the inmemory or pgvector index.
package hybrid

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sweetpotato0/deepresearch/corpus"
	"github.com/sweetpotato0/deepresearch/errors"
	"github.com/sweetpotato0/deepresearch/vector"
)

// Config configures the hybrid search engine.
type Config struct {
	KeywordTopK   int
	VectorWeight  float32
	KeywordWeight float32
	BlockChars    int
}

// Option customises the engine config.
type Option func(*Config)

// WithKeywordTopK caps BM25 results that merge into the final list.
func WithKeywordTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.KeywordTopK = k
		}
	}
}

// WithWeights customises the contribution of vector vs. keyword scores
// (defaults 0.7/0.3).
func WithWeights(vectorWeight, keywordWeight float32) Option {
	return func(cfg *Config) {
		if vectorWeight >= 0 && keywordWeight >= 0 {
			cfg.VectorWeight = vectorWeight
			cfg.KeywordWeight = keywordWeight
		}
	}
}

// WithBlockChars sets the paragraph-block size used for keyword indexing.
func WithBlockChars(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.BlockChars = n
		}
	}
}

type chunkMeta struct {
	linkID    string
	chunkType string
	text      string
}

// Engine composes a semantic backend with a lightweight BM25 index.
type Engine struct {
	inner vector.SearchService
	cfg   Config

	mu      sync.RWMutex
	chunks  map[string]chunkMeta
	keyword *bm25Index
}

// New creates a hybrid search engine wrapping the given semantic backend.
func New(inner vector.SearchService, opts ...Option) (*Engine, error) {
	if inner == nil {
		return nil, fmt.Errorf("semantic backend is required: %w", errors.ErrInvalidInput)
	}
	cfg := Config{
		KeywordTopK:   6,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		BlockChars:    1200,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		inner:   inner,
		cfg:     cfg,
		chunks:  make(map[string]chunkMeta),
		keyword: newBM25(),
	}, nil
}

// IndexItem adds one corpus item's transcript blocks and comments to the
// keyword index. The semantic backend is expected to index the same content
// separately.
func (e *Engine) IndexItem(item *corpus.Item) error {
	if item == nil || item.LinkID == "" {
		return fmt.Errorf("item requires a link id: %w", errors.ErrInvalidInput)
	}
	for i, block := range splitBlocks(item.Transcript, e.cfg.BlockChars) {
		e.add(fmt.Sprintf("%s:transcript:%d", item.LinkID, i), item.LinkID, "transcript", block)
	}
	for i, comment := range item.Comments {
		e.add(fmt.Sprintf("%s:comment:%d", item.LinkID, i), item.LinkID, "comment", comment.Text)
	}
	return nil
}

// IndexBatch keyword-indexes every item in the batch.
func (e *Engine) IndexBatch(batch *corpus.Batch) error {
	if batch == nil {
		return fmt.Errorf("batch is required: %w", errors.ErrInvalidInput)
	}
	for _, item := range batch.Items {
		if err := e.IndexItem(item); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) add(chunkID, linkID, chunkType, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	e.mu.Lock()
	e.chunks[chunkID] = chunkMeta{linkID: linkID, chunkType: chunkType, text: text}
	e.mu.Unlock()
	e.keyword.add(chunkID, text)
}

// Search implements vector.SearchService. Semantic hits and BM25 hits are
// merged by weighted score; semantic backend failures propagate.
func (e *Engine) Search(ctx context.Context, q *vector.Query) ([]*vector.Result, error) {
	if q == nil || strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("query text is required: %w", errors.ErrInvalidInput)
	}

	semantic, err := e.inner.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]*vector.Result)
	for _, hit := range semantic {
		res := *hit
		res.Score = hit.Score * e.cfg.VectorWeight
		merged[hit.ChunkID] = &res
	}

	linkFilter := toSet(q.LinkIDs)
	typeFilter := toSet(q.ChunkTypes)
	for _, hit := range e.keyword.search(q.Text, e.cfg.KeywordTopK) {
		meta, ok := e.chunk(hit.id)
		if !ok {
			continue
		}
		if linkFilter != nil {
			if _, ok := linkFilter[meta.linkID]; !ok {
				continue
			}
		}
		if typeFilter != nil {
			if _, ok := typeFilter[meta.chunkType]; !ok {
				continue
			}
		}
		score := hit.score * e.cfg.KeywordWeight
		if existing, ok := merged[hit.id]; ok {
			existing.Score += score
			continue
		}
		merged[hit.id] = &vector.Result{
			LinkID:    meta.linkID,
			ChunkID:   hit.id,
			ChunkType: meta.chunkType,
			Score:     score,
			Preview:   meta.text,
		}
	}

	results := make([]*vector.Result, 0, len(merged))
	for _, res := range merged {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	topK := q.TopK
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (e *Engine) chunk(id string) (chunkMeta, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	meta, ok := e.chunks[id]
	return meta, ok
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

// splitBlocks cuts text on paragraph boundaries, packing paragraphs into
// blocks of at most maxChars. Oversized paragraphs become their own block.
func splitBlocks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	paragraphs := strings.Split(text, "\n\n")
	var blocks []string
	var current strings.Builder
	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > maxChars {
			blocks = append(blocks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if current.Len() > 0 {
		blocks = append(blocks, current.String())
	}
	return blocks
}

// --- BM25 implementation ---

type bm25Index struct {
	mu          sync.RWMutex
	docFreq     map[string]int
	postings    map[string]map[string]int
	chunkLength map[string]int
	totalLength int
	docCount    int
	k1          float64
	b           float64
}

var bm25Regex = regexp.MustCompile(`\p{L}[\p{L}\p{M}]*|\p{N}+`)

func newBM25() *bm25Index {
	return &bm25Index{
		docFreq:     make(map[string]int),
		postings:    make(map[string]map[string]int),
		chunkLength: make(map[string]int),
		k1:          1.6,
		b:           0.75,
	}
}

func (b *bm25Index) add(chunkID, text string) {
	terms := tokenize(text)
	if len(terms) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docCount++
	b.chunkLength[chunkID] = len(terms)
	b.totalLength += len(terms)

	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, ok := b.postings[term]; !ok {
			b.postings[term] = make(map[string]int)
		}
		b.postings[term][chunkID]++
		if _, exists := seen[term]; !exists {
			b.docFreq[term]++
			seen[term] = struct{}{}
		}
	}
}

type keywordHit struct {
	id    string
	score float32
}

func (b *bm25Index) search(query string, limit int) []keywordHit {
	terms := unique(tokenize(query))
	if len(terms) == 0 {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.docCount == 0 {
		return nil
	}
	avgLen := float64(b.totalLength) / float64(b.docCount)
	scores := make(map[string]float64)
	for _, term := range terms {
		postings := b.postings[term]
		if len(postings) == 0 {
			continue
		}
		df := b.docFreq[term]
		idf := math.Log((float64(b.docCount)-float64(df)+0.5)/(float64(df)+0.5) + 1)
		for chunkID, tf := range postings {
			docLen := float64(b.chunkLength[chunkID])
			numerator := float64(tf) * (b.k1 + 1)
			denominator := float64(tf) + b.k1*(1-b.b+b.b*(docLen/avgLen))
			scores[chunkID] += idf * (numerator / denominator)
		}
	}
	results := make([]keywordHit, 0, len(scores))
	for id, score := range scores {
		results = append(results, keywordHit{id: id, score: float32(score)})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func tokenize(content string) []string {
	return bm25Regex.FindAllString(strings.ToLower(content), -1)
}

func unique(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
