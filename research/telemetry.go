package research

import "time"

// StepTelemetry accumulates per-step counters for one plan run.
type StepTelemetry struct {
	VectorCalls           int     `json:"vector_calls"`
	VectorHits            int     `json:"vector_hits"`
	VectorEmpty           int     `json:"vector_empty"`
	VectorResultsReturned int     `json:"vector_results_returned"`
	VectorLatencyMS       int64   `json:"vector_latency_ms"`
	VectorBestScore       float32 `json:"vector_best_score"`
	SequentialWindows     int     `json:"sequential_windows"`
	VectorAppendedChars   int     `json:"vector_appended_chars"`
	VectorFollowupTurns   int     `json:"vector_followup_turns"`
	NoveltyCandidates     int     `json:"novelty_candidates"`
	NoveltyDuplicates     int     `json:"novelty_duplicates_removed"`

	// NoveltyDecisions surfaces the per-candidate verdicts; ephemeral
	// diagnostics, never persisted.
	NoveltyDecisions []NoveltyDecision `json:"-"`
}

// ObserveVector records one semantic-search call.
func (st *StepTelemetry) ObserveVector(results int, latency time.Duration, best float32) {
	st.VectorCalls++
	st.VectorLatencyMS += latency.Milliseconds()
	st.VectorResultsReturned += results
	if results > 0 {
		st.VectorHits++
		if best > st.VectorBestScore {
			st.VectorBestScore = best
		}
	} else {
		st.VectorEmpty++
	}
}

// Telemetry tracks counters for every step of one plan run. It is private to
// a single engine instance and reset per run.
type Telemetry struct {
	steps map[int]*StepTelemetry
}

// NewTelemetry creates an empty telemetry map.
func NewTelemetry() *Telemetry {
	return &Telemetry{steps: make(map[int]*StepTelemetry)}
}

// Step returns the counters for a step id, creating them on first use.
func (t *Telemetry) Step(stepID int) *StepTelemetry {
	st, ok := t.steps[stepID]
	if !ok {
		st = &StepTelemetry{}
		t.steps[stepID] = st
	}
	return st
}

// Reset clears all counters for a new run.
func (t *Telemetry) Reset() {
	t.steps = make(map[int]*StepTelemetry)
}

// Steps returns the accumulated counters keyed by step id.
func (t *Telemetry) Steps() map[int]*StepTelemetry {
	return t.steps
}
