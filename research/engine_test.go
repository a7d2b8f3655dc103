package research

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/corpus"
	"github.com/sweetpotato0/deepresearch/message"
	"github.com/sweetpotato0/deepresearch/session"
	"github.com/sweetpotato0/deepresearch/vector"
)

// scriptClient replays canned completion replies in order and records the
// user prompt of every call.
type scriptClient struct {
	replies []string
	calls   int
	prompts []string
}

func (c *scriptClient) Generate(_ context.Context, req *completion.Request) (*completion.Response, error) {
	if c.calls >= len(c.replies) {
		return nil, fmt.Errorf("unexpected completion call %d", c.calls+1)
	}
	for _, msg := range req.Messages {
		if msg.Role == message.RoleUser {
			c.prompts = append(c.prompts, msg.Content)
		}
	}
	reply := c.replies[c.calls]
	c.calls++
	return &completion.Response{Text: reply}, nil
}

type stubSearch struct {
	calls   int
	results []*vector.Result
}

func (s *stubSearch) Search(_ context.Context, _ *vector.Query) ([]*vector.Result, error) {
	s.calls++
	return s.results, nil
}

func numberedTranscript(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func testBatch(transcript string) *corpus.Batch {
	return corpus.NewBatch(&corpus.Item{
		LinkID:     "vid-1",
		Title:      "Panel on solar economics",
		Transcript: transcript,
	})
}

func analysisReply(summary string) string {
	return fmt.Sprintf(`{"findings":{"summary":%q},"confidence":0.8,"completion_reason":"complete"}`, summary)
}

func contextReply() string {
	return `{"requests":[],"confidence":0.5}`
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, &scriptClient{}); err == nil {
		t.Fatalf("expected error for empty batch")
	}
	if _, err := New(testBatch("a b c"), nil); err == nil {
		t.Fatalf("expected error for nil completion client")
	}
}

func TestSequentialStepWalksAllWindows(t *testing.T) {
	client := &scriptClient{replies: []string{
		contextReply(), analysisReply("window one findings"),
		contextReply(), analysisReply("window two findings"),
		contextReply(), analysisReply("window three findings"),
	}}
	engine, err := New(testBatch(numberedTranscript(250)), client, WithWindowOverlap(20))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{
		{ID: 1, Goal: "map the discussion", ChunkStrategy: StrategySequential, ChunkSize: 100},
	}}
	results, err := engine.ExecutePlan(context.Background(), plan, "seq-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	// each window runs its own context-request and analysis call
	if client.calls != 6 {
		t.Fatalf("expected 2 calls per window over 3 windows, got %d", client.calls)
	}
	if results[0].Telemetry.SequentialWindows != 3 {
		t.Fatalf("expected 3 sequential windows, got %d", results[0].Telemetry.SequentialWindows)
	}
	if results[0].CompletionReason != "windowed" {
		t.Fatalf("expected windowed completion, got %q", results[0].CompletionReason)
	}
	for _, fragment := range []string{"window one", "window two", "window three"} {
		if !strings.Contains(results[0].Findings.Summary, fragment) {
			t.Fatalf("merged summary missing %q: %q", fragment, results[0].Findings.Summary)
		}
	}
	// the context request sees the window text it is deciding about
	if !strings.Contains(client.prompts[0], "retrieval requests only") {
		t.Fatalf("first call is not a context request:\n%s", client.prompts[0])
	}
	// the second window's analysis carries the preceding summary
	if !strings.Contains(client.prompts[3], "window one findings") {
		t.Fatalf("second window analysis missing prior summary")
	}
}

func TestVectorFirstDedupsIdenticalRequests(t *testing.T) {
	search := &stubSearch{results: []*vector.Result{
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:0", Score: 0.91, Preview: "subsidies doubled since 2020"},
	}}
	client := &scriptClient{replies: []string{
		`{"requests":[
			{"request_type":"semantic","query":"solar subsidies","top_k":3},
			{"request_type":"semantic","query":"solar subsidies","top_k":3}
		],"confidence":0.6}`,
		analysisReply("subsidies drove the expansion"),
	}}
	engine, err := New(testBatch(numberedTranscript(100)), client,
		WithSearchService(search), WithVectorMinChars(1))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "find subsidy claims", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "dedup-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if search.calls != 1 {
		t.Fatalf("identical requests must hit the backend once, got %d calls", search.calls)
	}
	if client.calls != 2 {
		t.Fatalf("expected stage-1 + stage-2 only, got %d calls", client.calls)
	}
	if results[0].Telemetry.VectorCalls != 1 || results[0].Telemetry.VectorHits != 1 {
		t.Fatalf("unexpected vector telemetry: %+v", results[0].Telemetry)
	}
	if len(results[0].Sources) == 0 || results[0].Sources[0] != "vid-1" {
		t.Fatalf("expected vid-1 as source, got %v", results[0].Sources)
	}
}

func TestVectorFirstEmptyRequestsSkipsBackend(t *testing.T) {
	search := &stubSearch{}
	client := &scriptClient{replies: []string{
		`{"requests":[],"confidence":0.9}`,
		analysisReply("the overview alone was sufficient"),
	}}
	engine, err := New(testBatch(numberedTranscript(100)), client, WithSearchService(search))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "overview", ChunkStrategy: StrategyVectorFirst}}}
	if _, err := engine.ExecutePlan(context.Background(), plan, "empty-run"); err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if search.calls != 0 {
		t.Fatalf("empty request list must not touch the backend, got %d calls", search.calls)
	}
	if client.calls != 2 {
		t.Fatalf("expected exactly 2 completion calls, got %d", client.calls)
	}
}

func TestVectorFirstZeroHitsEscalatesToSequential(t *testing.T) {
	search := &stubSearch{} // always zero hits
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"semantic","query":"quantum pricing"}],"confidence":0.6}`,
		analysisReply("confident but unsupported"),
		contextReply(),
		analysisReply("sequential pass findings"),
	}}
	engine, err := New(testBatch(numberedTranscript(200)), client, WithSearchService(search))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "pricing details", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "zerohit-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if search.calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", search.calls)
	}
	if results[0].Telemetry.SequentialWindows == 0 {
		t.Fatalf("zero-hit vector round must escalate to sequential windowing")
	}
	if !strings.Contains(results[0].Findings.Summary, "sequential pass") {
		t.Fatalf("expected sequential findings to win, got %q", results[0].Findings.Summary)
	}
}

func TestRetrievalErrorIsIsolated(t *testing.T) {
	search := &stubSearch{results: []*vector.Result{
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:1", Score: 0.8, Preview: "solar talk"},
	}}
	client := &scriptClient{replies: []string{
		`{"requests":[
			{"request_type":"word_range","source_link_id":"missing-item","start_word":0,"end_word":50},
			{"request_type":"keyword","keywords":["w10"]}
		],"confidence":0.5}`,
		analysisReply("partial evidence was enough"),
	}}
	engine, err := New(testBatch(numberedTranscript(100)), client,
		WithSearchService(search), WithVectorMinChars(1))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "mixed requests", ChunkStrategy: StrategyVectorFirst}}}
	if _, err := engine.ExecutePlan(context.Background(), plan, "error-run"); err != nil {
		t.Fatalf("a failing request must not abort the step: %v", err)
	}

	analysisPrompt := client.prompts[1]
	if !strings.Contains(analysisPrompt, "[Retrieval error]") {
		t.Fatalf("expected inline retrieval error in evidence:\n%s", analysisPrompt)
	}
	if !strings.Contains(analysisPrompt, "[Retrieval Result] type=keyword") {
		t.Fatalf("expected surviving keyword block in evidence:\n%s", analysisPrompt)
	}
}

func TestNoveltyFilterPrunesRepeats(t *testing.T) {
	repeated := "Solar capacity doubled in two years"
	client := &scriptClient{replies: []string{
		contextReply(),
		fmt.Sprintf(`{"findings":{"summary":"first pass on growth","points_of_interest":{"key_claims":[%q]}},"confidence":0.8}`, repeated),
		contextReply(),
		fmt.Sprintf(`{"findings":{"summary":"second pass","points_of_interest":{"key_claims":[%q,"Batteries remain the bottleneck"]}},"confidence":0.8}`, repeated),
	}}
	store := session.NewMemoryStore()
	engine, err := New(testBatch(numberedTranscript(50)), client, WithSessionStore(store))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{
		{ID: 1, Goal: "growth claims", ChunkStrategy: StrategyAll},
		{ID: 2, Goal: "remaining claims", ChunkStrategy: StrategyAll},
	}}
	results, err := engine.ExecutePlan(context.Background(), plan, "novelty-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	claims := results[1].Findings.PointsOfInterest["key_claims"]
	if len(claims) != 1 {
		t.Fatalf("expected repeated claim pruned, got %v", claims)
	}
	if claims[0] != "Batteries remain the bottleneck" {
		t.Fatalf("wrong claim survived: %v", claims[0])
	}
	if results[1].Telemetry.NoveltyDuplicates < 1 {
		t.Fatalf("expected novelty_duplicates_removed >= 1, got %d", results[1].Telemetry.NoveltyDuplicates)
	}

	rec, err := store.Load(context.Background(), "novelty-run")
	if err != nil {
		t.Fatalf("session load failed: %v", err)
	}
	if len(rec.Digests) != 2 {
		t.Fatalf("expected 2 digests, got %d", len(rec.Digests))
	}
	if len(rec.Digests[0].TextUnits) == 0 {
		t.Fatalf("expected non-empty text units on first digest")
	}
	if rec.Scratchpad == "" {
		t.Fatalf("expected scratchpad appended")
	}
}

func TestAllModePlaceholderOnNoFindings(t *testing.T) {
	// stage 1 degrades forgivingly on garbage; the analysis stage does not
	client := &scriptClient{replies: []string{
		"garbage context reply",
		"this reply is not JSON in any recoverable way",
		contextReply(),
		analysisReply("second step succeeded"),
	}}
	engine, err := New(testBatch(numberedTranscript(50)), client)
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{
		{ID: 1, Goal: "doomed step", ChunkStrategy: StrategyAll},
		{ID: 2, Goal: "normal step", ChunkStrategy: StrategyAll},
	}}
	results, err := engine.ExecutePlan(context.Background(), plan, "placeholder-run")
	if err != nil {
		t.Fatalf("a no-findings step must not abort the plan: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected both steps executed, got %d", len(results))
	}
	if results[0].Confidence != 0.1 || results[0].CompletionReason != "no_findings" {
		t.Fatalf("expected low-confidence placeholder, got %+v", results[0])
	}
	if !strings.Contains(results[1].Findings.Summary, "second step succeeded") {
		t.Fatalf("second step should run normally, got %q", results[1].Findings.Summary)
	}
}

func TestTransportErrorAbortsPlan(t *testing.T) {
	client := &scriptClient{replies: []string{}} // any call errors
	engine, err := New(testBatch(numberedTranscript(50)), client)
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "step", ChunkStrategy: StrategyAll}}}
	if _, err := engine.ExecutePlan(context.Background(), plan, "abort-run"); err == nil {
		t.Fatalf("expected transport error to abort the plan")
	}
}

func TestProgressSinkReceivesStatuses(t *testing.T) {
	var statuses []string
	client := &scriptClient{replies: []string{contextReply(), analysisReply("done")}}
	engine, err := New(testBatch(numberedTranscript(50)), client,
		WithProgressSink(ProgressFunc(func(stepID int, status string) {
			statuses = append(statuses, status)
		})))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "step", ChunkStrategy: StrategyAll}}}
	if _, err := engine.ExecutePlan(context.Background(), plan, "progress-run"); err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	joined := strings.Join(statuses, "|")
	for _, want := range []string{"requesting context", "generating analysis", "step 1 complete"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing progress status %q: %v", want, statuses)
		}
	}
}

func TestPlanValidation(t *testing.T) {
	client := &scriptClient{}
	engine, err := New(testBatch("a b c"), client)
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	bad := []*Plan{
		nil,
		{},
		{Steps: []*Step{{ID: 1, Goal: ""}}},
		{Steps: []*Step{{ID: 1, Goal: "a"}, {ID: 1, Goal: "b"}}},
	}
	for i, plan := range bad {
		if _, err := engine.ExecutePlan(context.Background(), plan, "bad"); err == nil {
			t.Fatalf("expected validation error for plan %d", i)
		}
	}
}

type countingReranker struct {
	calls int
}

func (r *countingReranker) Rerank(_ context.Context, results []*vector.Result) ([]*vector.Result, error) {
	r.calls++
	return results, nil
}

func TestVectorFirstAppliesReranker(t *testing.T) {
	search := &stubSearch{results: []*vector.Result{
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:0", Score: 0.9, Preview: "tariff changes announced"},
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:1", Score: 0.8, Preview: "tariff rollout delayed"},
	}}
	reranker := &countingReranker{}
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"semantic","query":"tariff timeline"}],"confidence":0.6}`,
		analysisReply("tariffs were announced and then delayed"),
	}}
	engine, err := New(testBatch(numberedTranscript(100)), client,
		WithSearchService(search), WithReranker(reranker), WithVectorMinChars(1))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "trace the tariff timeline", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "rerank-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if reranker.calls != 1 {
		t.Fatalf("expected one reranker call, got %d", reranker.calls)
	}
	if results[0].Telemetry.VectorHits != 1 {
		t.Fatalf("unexpected vector telemetry: %+v", results[0].Telemetry)
	}
}

func TestAllModeRunsContextRequestBeforeAnalysis(t *testing.T) {
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"keyword","source_link_id":"vid-1","keywords":["w10"]}],"confidence":0.6}`,
		analysisReply("claims cross-checked against the keyword matches"),
	}}
	engine, err := New(testBatch(numberedTranscript(60)), client)
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "verify the claims", ChunkStrategy: StrategyAll}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "all-twostage-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if client.calls != 2 {
		t.Fatalf("expected one context request plus one analysis, got %d calls", client.calls)
	}
	if results[0].CompletionReason != "complete" || results[0].Confidence != 0.8 {
		t.Fatalf("step degraded instead of analyzing: %+v", results[0])
	}
	if !strings.Contains(results[0].Findings.Summary, "cross-checked") {
		t.Fatalf("analysis reply not consumed as findings: %q", results[0].Findings.Summary)
	}
	// stage 1 decides over the assembled chunk
	if !strings.Contains(client.prompts[0], "retrieval requests only") ||
		!strings.Contains(client.prompts[0], "=== Transcript: vid-1") {
		t.Fatalf("context request missing the working chunk:\n%s", client.prompts[0])
	}
	// stage 2 sees the chunk plus the resolved request
	if !strings.Contains(client.prompts[1], "=== Transcript: vid-1") ||
		!strings.Contains(client.prompts[1], "[Retrieval Result] type=keyword") {
		t.Fatalf("analysis prompt missing chunk or retrieved evidence:\n%s", client.prompts[1])
	}
	if len(results[0].Sources) == 0 {
		t.Fatalf("expected retrieval sources recorded, got %v", results[0].Sources)
	}
}

func TestThinEvidenceEscalatesToSequential(t *testing.T) {
	search := &stubSearch{}
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"word_range","source_link_id":"vid-1","start_word":0,"end_word":5}],"confidence":0.6}`,
		analysisReply("confident on five words"),
		contextReply(),
		analysisReply("full pass findings"),
	}}
	engine, err := New(testBatch(numberedTranscript(200)), client, WithSearchService(search))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "cost details", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "thin-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	// a word_range has no free-text hints, so no semantic sibling fires
	if search.calls != 0 {
		t.Fatalf("expected no backend calls, got %d", search.calls)
	}
	// the five-word slice is far below the combined evidence floor
	if results[0].Telemetry.SequentialWindows == 0 {
		t.Fatalf("thin evidence must escalate to sequential windowing")
	}
	if !strings.Contains(results[0].Findings.Summary, "full pass") {
		t.Fatalf("expected sequential findings to win, got %q", results[0].Findings.Summary)
	}
	if client.calls != 4 {
		t.Fatalf("expected 4 completion calls, got %d", client.calls)
	}
}

func TestFollowupConvertsMissingHints(t *testing.T) {
	search := &stubSearch{results: []*vector.Result{
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:0", Score: 0.88, Preview: "tariff policy summary"},
	}}
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"semantic","query":"tariff policy"}],"confidence":0.6}`,
		`{"findings":{"summary":"partial picture"},"confidence":0.5,"completion_reason":"complete","still_missing":["vid-1","entire transcript","import duty exemptions"]}`,
		analysisReply("complete after reading the whole item"),
	}}
	engine, err := New(testBatch(numberedTranscript(120)), client,
		WithSearchService(search), WithVectorMinChars(1))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "trace the tariff debate", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "followup-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if results[0].Telemetry.VectorFollowupTurns != 1 {
		t.Fatalf("expected one follow-up round, got %d", results[0].Telemetry.VectorFollowupTurns)
	}
	if client.calls != 3 {
		t.Fatalf("expected stage-1, stage-2 and one continuation, got %d calls", client.calls)
	}
	// "vid-1" converts to a full-item request, "entire transcript" is noise,
	// and the duty hint becomes a second semantic ask
	if search.calls != 2 {
		t.Fatalf("generic hint must not reach the backend, got %d calls", search.calls)
	}
	if !strings.Contains(client.prompts[2], "=== Transcript: vid-1") {
		t.Fatalf("continuation prompt missing the delivered full item:\n%s", client.prompts[2])
	}
	if !strings.Contains(results[0].Findings.Summary, "whole item") {
		t.Fatalf("continuation findings not kept: %q", results[0].Findings.Summary)
	}
	if len(results[0].Sources) == 0 || results[0].Sources[0] != "vid-1" {
		t.Fatalf("expected vid-1 as source, got %v", results[0].Sources)
	}
}

func TestFollowupEvidenceFloorEscalates(t *testing.T) {
	search := &stubSearch{results: []*vector.Result{
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:0", Score: 0.85, Preview: "subsidy cap mentioned"},
	}}
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"semantic","query":"subsidy caps"}],"confidence":0.6}`,
		`{"findings":{"summary":"needs the cost table"},"confidence":0.5,"completion_reason":"complete","still_missing":["annual subsidy cost figures"]}`,
		analysisReply("still thin"),
		contextReply(),
		analysisReply("window sweep findings"),
	}}
	engine, err := New(testBatch(numberedTranscript(200)), client,
		WithSearchService(search), WithVectorMinChars(1))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "subsidy accounting", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "floor-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if results[0].Telemetry.VectorFollowupTurns != 1 {
		t.Fatalf("expected one follow-up round, got %d", results[0].Telemetry.VectorFollowupTurns)
	}
	// the round gathered far less than the accumulated-evidence floor
	if results[0].Telemetry.SequentialWindows == 0 {
		t.Fatalf("under-floor follow-up evidence must escalate to sequential")
	}
	if !strings.Contains(results[0].Findings.Summary, "window sweep") {
		t.Fatalf("expected sequential findings to win, got %q", results[0].Findings.Summary)
	}
	if client.calls != 5 {
		t.Fatalf("expected 5 completion calls, got %d", client.calls)
	}
}

func TestVectorRoundCapDemotesToKeyword(t *testing.T) {
	search := &stubSearch{results: []*vector.Result{
		{LinkID: "vid-1", ChunkID: "vid-1:transcript:0", Score: 0.9, Preview: "grid congestion costs"},
	}}
	client := &scriptClient{replies: []string{
		`{"requests":[{"request_type":"semantic","query":"grid congestion"}],"confidence":0.6}`,
		`{"findings":{"summary":"first read"},"confidence":0.6,"completion_reason":"complete","still_missing":["curtailment statistics"]}`,
		analysisReply("rounded out with keyword evidence"),
	}}
	engine, err := New(testBatch(numberedTranscript(120)), client,
		WithSearchService(search), WithVectorMinChars(1), WithVectorMaxRounds(1),
		WithFollowupCharBounds(1, 20000))
	if err != nil {
		t.Fatalf("engine init failed: %v", err)
	}

	plan := &Plan{Steps: []*Step{{ID: 1, Goal: "congestion costs", ChunkStrategy: StrategyVectorFirst}}}
	results, err := engine.ExecutePlan(context.Background(), plan, "roundcap-run")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	// the follow-up's semantic ask exceeds the round cap and demotes
	if search.calls != 1 {
		t.Fatalf("expected 1 backend call under the round cap, got %d", search.calls)
	}
	if results[0].Telemetry.VectorCalls != 1 {
		t.Fatalf("demoted round must not count as a vector call: %+v", results[0].Telemetry)
	}
	if results[0].Telemetry.VectorFollowupTurns != 1 || client.calls != 3 {
		t.Fatalf("follow-up negotiation itself must still run: %d turns, %d calls",
			results[0].Telemetry.VectorFollowupTurns, client.calls)
	}
	if !strings.Contains(results[0].Findings.Summary, "rounded out") {
		t.Fatalf("continuation findings not kept: %q", results[0].Findings.Summary)
	}
}

func TestAllChunkCapRespectsRuneBoundary(t *testing.T) {
	batch := corpus.NewBatch(&corpus.Item{
		LinkID:     "vid-cn",
		Title:      "储能专题",
		Transcript: strings.Repeat("储能成本持续下降", 50),
	})
	cfg := applyOptions(WithMaxChunkChars(100))

	chunk := assembleAllChunk(batch, cfg)
	if len(chunk) > 100 {
		t.Fatalf("chunk exceeds cap: %d bytes", len(chunk))
	}
	if !utf8.ValidString(chunk) {
		t.Fatalf("chunk truncation split a rune: %q", chunk)
	}
}
