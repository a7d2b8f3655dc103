package research

import (
	"strings"

	"github.com/sweetpotato0/deepresearch/errors"
)

// ChunkStrategy selects how a step consumes the corpus.
type ChunkStrategy string

const (
	// StrategyAll feeds the whole permitted corpus chunk in one call.
	StrategyAll ChunkStrategy = "all"
	// StrategySequential walks the corpus in overlapping word windows.
	StrategySequential ChunkStrategy = "sequential"
	// StrategyVectorFirst tries targeted semantic retrieval before falling
	// back to sequential windowing.
	StrategyVectorFirst ChunkStrategy = "vector_first"
)

// Step is one unit of retrieval+analysis work. Steps are immutable once the
// plan is finalized upstream; the engine only reads them.
type Step struct {
	ID            int           `json:"step_id"`
	Goal          string        `json:"goal"`
	RequiredData  string        `json:"required_data,omitempty"`
	ChunkStrategy ChunkStrategy `json:"chunk_strategy,omitempty"`
	ChunkSize     int           `json:"chunk_size,omitempty"`
}

// Plan is an ordered list of research steps.
type Plan struct {
	Steps []*Step `json:"steps"`
}

// Validate checks plan shape: at least one step, unique ids, goals present.
func (p *Plan) Validate() error {
	if p == nil || len(p.Steps) == 0 {
		return errors.ErrInvalidInput
	}
	seen := make(map[int]struct{}, len(p.Steps))
	for _, step := range p.Steps {
		if step == nil || strings.TrimSpace(step.Goal) == "" {
			return errors.ErrInvalidInput
		}
		if _, dup := seen[step.ID]; dup {
			return errors.ErrInvalidInput
		}
		seen[step.ID] = struct{}{}
	}
	return nil
}

// poiCategories is the canonical category order for points_of_interest.
var poiCategories = []string{
	"key_claims",
	"notable_evidence",
	"controversial_topics",
	"surprising_insights",
	"specific_examples",
	"open_questions",
}

// PointsOfInterest holds categorized finding entries. Entries are either
// plain strings or objects carrying text plus flags (e.g. revision markers),
// so values stay loosely typed until the novelty filter extracts text.
type PointsOfInterest map[string][]any

// Count returns the total number of entries across categories.
func (p PointsOfInterest) Count() int {
	n := 0
	for _, entries := range p {
		n += len(entries)
	}
	return n
}

// Findings is the structured output of one step.
type Findings struct {
	Summary          string           `json:"summary"`
	Article          string           `json:"article,omitempty"`
	PointsOfInterest PointsOfInterest `json:"points_of_interest,omitempty"`
}

// Empty reports whether the findings carry no content at all.
func (f *Findings) Empty() bool {
	return f == nil ||
		(strings.TrimSpace(f.Summary) == "" &&
			strings.TrimSpace(f.Article) == "" &&
			f.PointsOfInterest.Count() == 0)
}

// ContextRequestResponse is the parsed stage-1 reply: the model may only ask
// for retrieval requests. A findings field in the raw reply is dropped.
type ContextRequestResponse struct {
	StepID     int
	Requests   []*RetrievalRequest
	Insights   string
	Confidence float64
}

// AnalysisResponse is the parsed stage-2 reply: findings only. A requests
// field in the raw reply is discarded from the findings contract but kept
// aside for the vector-first follow-up loop.
type AnalysisResponse struct {
	StepID           int
	Findings         *Findings
	Insights         string
	Confidence       float64
	CompletionReason string
	StillMissing     []string

	// extraRequests holds requests the model emitted despite the schema;
	// only the follow-up negotiation may look at them.
	extraRequests []*RetrievalRequest
}

// StepResult is the finalized output of one step after novelty filtering.
type StepResult struct {
	StepID           int            `json:"step_id"`
	Goal             string         `json:"goal"`
	Strategy         ChunkStrategy  `json:"strategy"`
	Findings         *Findings      `json:"findings"`
	Insights         string         `json:"insights,omitempty"`
	Confidence       float64        `json:"confidence"`
	CompletionReason string         `json:"completion_reason,omitempty"`
	Sources          []string       `json:"sources,omitempty"`
	Telemetry        *StepTelemetry `json:"telemetry,omitempty"`
}

// NoveltyDecision is the per-candidate verdict of the novelty filter.
// Ephemeral: it exists only during filtering and surfaces only in telemetry.
type NoveltyDecision struct {
	Category       string  `json:"category"`
	Text           string  `json:"text"`
	MatchedText    string  `json:"matched_text,omitempty"`
	Similarity     float64 `json:"similarity"`
	KeywordOverlap float64 `json:"keyword_overlap"`
	Kept           bool    `json:"kept"`
}
