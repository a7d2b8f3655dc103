package research

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/embedding"
	"github.com/sweetpotato0/deepresearch/session"
	"github.com/sweetpotato0/deepresearch/vector"
)

// Config controls one plan-execution engine: windowing bounds, retrieval
// sizing, follow-up negotiation, novelty thresholds and the external
// collaborators. Every knob has a default; zero-config construction works.
type Config struct {
	Name string // Logical name for tracing/logging

	// Windowing engine
	WindowWords    int           // Words per sequential window
	WindowOverlap  int           // Overlapping words between windows
	MaxWindows     int           // Upper bound on windows per step
	StepTimeBudget time.Duration // Wall-clock budget per step; 0 = unlimited

	// Retrieval sizing
	MinCharsPerItem       int // Minimum combined evidence before a round counts
	MaxCharsPerItem       int // Cap per generic evidence block
	FullItemMaxChars      int // Cap for full_content_item blocks, set high
	MinTotalFollowupChars int // Floor on accumulated follow-up evidence
	MaxTotalFollowupChars int // Ceiling on accumulated follow-up evidence
	KeywordContextWords   int // Words of context around keyword matches
	MarkerContextChars    int // Characters of context around markers
	CommentLimit          int // Max comments returned per comment retrieval

	// Vector-first negotiation
	VectorTopK            int // Results per semantic search
	VectorMaxRounds       int // Semantic rounds per step
	VectorMinChars        int // Min appended chars when vector hits occurred
	VectorWindowCap       int // Windows allowed after vector escalation
	SemanticContextWindow int // context_window for synthesized semantic asks
	MaxFollowups          int // Follow-up negotiation rounds

	// Novelty filter
	SimilarityThreshold     float64 // Cosine threshold for pruning
	KeywordOverlapThreshold float64 // Token-bag overlap threshold for pruning
	AllowRevisionDuplicates bool    // Keep duplicates flagged as revisions

	// Digest/merge caps
	DigestTokenCap    int // Token cap when aggregating digests for prompts
	MaxPOIPerWindow   int // Points of interest kept per window per category
	MaxDigestPOILines int // Flattened POI lines kept on a digest
	MaxDigestEvidence int // Notable-evidence entries kept on a digest
	MaxTextUnits      int // Novelty-comparison atoms kept on a digest
	MaxChunkChars     int // Hard cap for whole-corpus chunks; 0 = unlimited

	// GenericMissingPhrases are still_missing hints treated as noise rather
	// than actionable follow-up requests.
	GenericMissingPhrases []string

	// Generation parameters passed through to the completion service.
	Params completion.Params

	completionClient completion.Client
	embedder         embedding.Embedder
	search           vector.SearchService
	reranker         vector.Reranker
	store            session.Store
	tokens           session.TokenCounter
	progress         ProgressSink
	logger           *slog.Logger
}

// Option customises the engine configuration.
type Option func(*Config)

// WithWindowWords sets the sequential window size in words.
func WithWindowWords(w int) Option {
	return func(cfg *Config) {
		if w > 0 {
			cfg.WindowWords = w
		}
	}
}

// WithWindowOverlap sets the word overlap between consecutive windows.
func WithWindowOverlap(o int) Option {
	return func(cfg *Config) {
		if o >= 0 {
			cfg.WindowOverlap = o
		}
	}
}

// WithMaxWindows caps how many windows a sequential step may process.
func WithMaxWindows(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.MaxWindows = k
		}
	}
}

// WithStepTimeBudget bounds the wall-clock time spent inside one step's
// windowing loop. Zero disables the check.
func WithStepTimeBudget(d time.Duration) Option {
	return func(cfg *Config) {
		if d >= 0 {
			cfg.StepTimeBudget = d
		}
	}
}

// WithMaxFollowups caps follow-up negotiation rounds in vector-first mode.
func WithMaxFollowups(n int) Option {
	return func(cfg *Config) {
		if n >= 0 {
			cfg.MaxFollowups = n
		}
	}
}

// WithEvidenceBounds sets the minimum acceptable combined evidence size and
// the per-block maximum.
func WithEvidenceBounds(min, max int) Option {
	return func(cfg *Config) {
		if min > 0 {
			cfg.MinCharsPerItem = min
		}
		if max > 0 {
			cfg.MaxCharsPerItem = max
		}
	}
}

// WithFollowupCharBounds sets the floor a step's accumulated follow-up
// evidence must reach to count as sufficient, and the ceiling after which
// negotiation stops.
func WithFollowupCharBounds(min, max int) Option {
	return func(cfg *Config) {
		if min > 0 {
			cfg.MinTotalFollowupChars = min
		}
		if max > 0 {
			cfg.MaxTotalFollowupChars = max
		}
	}
}

// WithFullItemMaxChars overrides the cap applied to full_content_item blocks.
func WithFullItemMaxChars(max int) Option {
	return func(cfg *Config) {
		if max > 0 {
			cfg.FullItemMaxChars = max
		}
	}
}

// WithVectorTopK sets how many results each semantic search requests.
func WithVectorTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.VectorTopK = k
		}
	}
}

// WithVectorMaxRounds caps semantic-search rounds per step.
func WithVectorMaxRounds(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.VectorMaxRounds = n
		}
	}
}

// WithVectorMinChars sets the minimum appended evidence for a vector-first
// round to count as sufficient.
func WithVectorMinChars(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.VectorMinChars = n
		}
	}
}

// WithKeywordContextWords sets the context window around keyword matches.
func WithKeywordContextWords(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.KeywordContextWords = n
		}
	}
}

// WithMarkerContextChars sets the character window around marker matches.
func WithMarkerContextChars(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MarkerContextChars = n
		}
	}
}

// WithCommentLimit caps how many comments a comment retrieval returns.
func WithCommentLimit(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.CommentLimit = n
		}
	}
}

// WithNoveltyThresholds overrides the cosine-similarity and keyword-overlap
// pruning thresholds.
func WithNoveltyThresholds(similarity, overlap float64) Option {
	return func(cfg *Config) {
		if similarity > 0 && similarity <= 1 {
			cfg.SimilarityThreshold = similarity
		}
		if overlap > 0 && overlap <= 1 {
			cfg.KeywordOverlapThreshold = overlap
		}
	}
}

// WithAllowRevisionDuplicates toggles whether revision-flagged candidates
// escape pruning.
func WithAllowRevisionDuplicates(allowed bool) Option {
	return func(cfg *Config) {
		cfg.AllowRevisionDuplicates = allowed
	}
}

// WithGenericMissingPhrases replaces the phrase list treated as noise in
// still_missing hints.
func WithGenericMissingPhrases(phrases []string) Option {
	return func(cfg *Config) {
		if len(phrases) > 0 {
			cfg.GenericMissingPhrases = phrases
		}
	}
}

// WithDigestTokenCap bounds the aggregated digest text fed into prompts.
func WithDigestTokenCap(cap int) Option {
	return func(cfg *Config) {
		if cap > 0 {
			cfg.DigestTokenCap = cap
		}
	}
}

// WithMaxChunkChars sets a hard character cap for whole-corpus chunks.
func WithMaxChunkChars(max int) Option {
	return func(cfg *Config) {
		if max >= 0 {
			cfg.MaxChunkChars = max
		}
	}
}

// WithCompletionParams passes generation parameters to the completion service.
func WithCompletionParams(params completion.Params) Option {
	return func(cfg *Config) {
		cfg.Params = params
	}
}

// WithEmbedder plugs in the embedding provider used by the novelty filter.
func WithEmbedder(e embedding.Embedder) Option {
	return func(cfg *Config) {
		if e != nil {
			cfg.embedder = e
		}
	}
}

// WithSearchService plugs in a semantic-search backend. Without one, all
// semantic requests demote to keyword search.
func WithSearchService(s vector.SearchService) Option {
	return func(cfg *Config) {
		if s != nil {
			cfg.search = s
		}
	}
}

// WithReranker reorders semantic hits before they are rendered into
// evidence blocks. Optional; without one, hits keep the backend's ranking.
func WithReranker(r vector.Reranker) Option {
	return func(cfg *Config) {
		if r != nil {
			cfg.reranker = r
		}
	}
}

// WithSessionStore overrides where session records are persisted.
func WithSessionStore(s session.Store) Option {
	return func(cfg *Config) {
		if s != nil {
			cfg.store = s
		}
	}
}

// WithTokenCounter plugs in a tokenizer for digest caps.
func WithTokenCounter(t session.TokenCounter) Option {
	return func(cfg *Config) {
		if t != nil {
			cfg.tokens = t
		}
	}
}

// WithProgressSink wires the advisory status sink.
func WithProgressSink(p ProgressSink) Option {
	return func(cfg *Config) {
		if p != nil {
			cfg.progress = p
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *Config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:           "deepresearch",
		WindowWords:    3000,
		WindowOverlap:  400,
		MaxWindows:     8,
		StepTimeBudget: 0,

		MinCharsPerItem:       400,
		MaxCharsPerItem:       4000,
		FullItemMaxChars:      250000,
		MinTotalFollowupChars: 1500,
		MaxTotalFollowupChars: 20000,
		KeywordContextWords:   60,
		MarkerContextChars:    2000,
		CommentLimit:          20,

		VectorTopK:            12,
		VectorMaxRounds:       3,
		VectorMinChars:        600,
		VectorWindowCap:       3,
		SemanticContextWindow: 500,
		MaxFollowups:          2,

		SimilarityThreshold:     0.82,
		KeywordOverlapThreshold: 0.70,
		AllowRevisionDuplicates: true,

		DigestTokenCap:    1800,
		MaxPOIPerWindow:   10,
		MaxDigestPOILines: 20,
		MaxDigestEvidence: 20,
		MaxTextUnits:      128,
		MaxChunkChars:     0,

		GenericMissingPhrases: []string{
			"full transcript",
			"entire transcript",
			"whole transcript",
			"full content",
			"entire content",
			"more context",
			"additional context",
			"everything",
		},
	}
}

func applyOptions(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
