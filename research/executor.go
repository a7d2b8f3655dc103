package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/config"
	"github.com/sweetpotato0/deepresearch/corpus"
	"github.com/sweetpotato0/deepresearch/embedding"
	errorspkg "github.com/sweetpotato0/deepresearch/errors"
	"github.com/sweetpotato0/deepresearch/pkg/logging"
	"github.com/sweetpotato0/deepresearch/pkg/telemetry"
	"github.com/sweetpotato0/deepresearch/session"
)

// Engine executes research plans over one corpus batch. All per-run state
// (retrieval cache, telemetry, session record) is owned by the instance;
// create one engine per run.
type Engine struct {
	cfg      *Config
	batch    *corpus.Batch
	rt       *retriever
	protocol *protocolDriver
	novelty  *noveltyFilter
	tel      *Telemetry
	tracer   trace.Tracer
	log      *slog.Logger
}

// New creates a plan-execution engine over the given corpus batch. The
// completion client is mandatory; everything else has a working default.
func New(batch *corpus.Batch, client completion.Client, opts ...Option) (*Engine, error) {
	if batch == nil || len(batch.Items) == 0 {
		return nil, fmt.Errorf("corpus batch is empty: %w", errorspkg.ErrInvalidInput)
	}
	if client == nil {
		return nil, fmt.Errorf("completion client is required: %w", errorspkg.ErrInvalidInput)
	}

	cfg := applyOptions(opts...)
	if err := config.ValidateWindowing(cfg.WindowWords, cfg.WindowOverlap, cfg.MaxWindows); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errorspkg.ErrInvalidInput)
	}
	if err := config.ValidateNoveltyThresholds(cfg.SimilarityThreshold, cfg.KeywordOverlapThreshold); err != nil {
		return nil, fmt.Errorf("%v: %w", err, errorspkg.ErrInvalidInput)
	}
	cfg.completionClient = client
	if cfg.embedder == nil {
		cfg.embedder = embedding.NewHashEmbedder(256)
	}
	if cfg.store == nil {
		cfg.store = session.NewMemoryStore()
	}
	if cfg.tokens == nil {
		cfg.tokens = session.ApproxCounter{}
	}
	if cfg.logger == nil {
		cfg.logger = logging.WithComponent("research")
	}

	log := cfg.logger
	rt := newRetriever(cfg, batch, log)
	return &Engine{
		cfg:      cfg,
		batch:    batch,
		rt:       rt,
		protocol: newProtocolDriver(cfg, rt, log),
		novelty:  newNoveltyFilter(cfg, log),
		tel:      NewTelemetry(),
		tracer:   otel.Tracer("deepresearch/research"),
		log:      log,
	}, nil
}

// Telemetry returns the per-step counters accumulated by the last run.
func (e *Engine) Telemetry() *Telemetry { return e.tel }

// ExecutePlan runs every step of the plan in order against the engine's
// corpus batch, persisting a session record under sessionID after each step.
// A step that yields no findings in "all" mode degrades to a low-confidence
// placeholder; transport failures abort the plan.
func (e *Engine) ExecutePlan(ctx context.Context, plan *Plan, sessionID string) ([]*StepResult, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if sessionID == "" {
		sessionID = fmt.Sprintf("run-%d", time.Now().UnixNano())
	}

	rec, err := e.cfg.store.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, errorspkg.ErrNotFound) {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		rec = session.NewRecord(sessionID)
	}

	e.tel.Reset()
	results := make([]*StepResult, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		result, err := e.executeStep(ctx, step, rec)
		if err != nil {
			return results, fmt.Errorf("step %d: %w", step.ID, err)
		}
		results = append(results, result)

		if err := e.cfg.store.Save(ctx, rec); err != nil {
			return results, fmt.Errorf("save session %s: %w", sessionID, err)
		}
		e.cfg.publish(step.ID, fmt.Sprintf("step %d complete", step.ID))
	}

	return results, nil
}

func (e *Engine) executeStep(ctx context.Context, step *Step, rec *session.Record) (result *StepResult, err error) {
	ctx, span := e.tracer.Start(ctx, "research.step",
		trace.WithAttributes(
			attribute.Int("step.id", step.ID),
			attribute.String("step.strategy", string(step.ChunkStrategy)),
		))
	defer func() { telemetry.End(span, err) }()

	tel := e.tel.Step(step.ID)
	strategy := step.ChunkStrategy
	if strategy == "" {
		strategy = StrategyAll
	}

	e.log.Info("executing step", "step", step.ID, "strategy", strategy, "goal", step.Goal)

	var resp *AnalysisResponse
	var stats *resolveStats

	switch strategy {
	case StrategyVectorFirst:
		resp, stats, err = e.runVectorFirstStep(ctx, step, rec, tel)
	case StrategySequential:
		resp, stats, err = e.runSequentialStep(ctx, step, rec, tel, e.cfg.MaxWindows)
	default:
		strategy = StrategyAll
		resp, stats, err = e.runAllStep(ctx, step, rec, tel)
	}

	if err != nil {
		if errors.Is(err, errorspkg.ErrNoFindings) {
			// the model saw everything and still reported nothing usable;
			// record a placeholder and keep the plan moving
			e.log.Warn("step produced no findings, recording placeholder", "step", step.ID)
			resp = &AnalysisResponse{
				StepID:           step.ID,
				Findings:         &Findings{Summary: "No findings could be extracted for this step."},
				Confidence:       0.1,
				CompletionReason: "no_findings",
			}
			err = nil
		} else {
			return nil, err
		}
	}

	priorUnits := rec.PriorTextUnits(step.ID)
	e.novelty.filter(ctx, step.ID, resp.Findings, priorUnits, tel)

	digest := buildDigest(step, resp, e.cfg)
	rec.PutDigest(digest)
	if resp.Findings != nil && resp.Findings.Summary != "" {
		rec.AppendScratchpad(fmt.Sprintf("Step %d (%s): %s", step.ID, step.Goal, trimTo(resp.Findings.Summary, 500)))
	}

	span.SetAttributes(
		attribute.Int("step.vector_calls", tel.VectorCalls),
		attribute.Int("step.sequential_windows", tel.SequentialWindows),
		attribute.Int("step.novelty_duplicates", tel.NoveltyDuplicates),
	)

	result = &StepResult{
		StepID:           step.ID,
		Goal:             step.Goal,
		Strategy:         strategy,
		Findings:         resp.Findings,
		Insights:         resp.Insights,
		Confidence:       resp.Confidence,
		CompletionReason: resp.CompletionReason,
		Telemetry:        tel,
	}
	if stats != nil {
		result.Sources = stats.sourceList()
	}
	return result, nil
}

// runVectorFirstStep tries targeted retrieval and escalates to sequential
// windowing (with a tighter window cap) when the result is not good enough.
func (e *Engine) runVectorFirstStep(ctx context.Context, step *Step, rec *session.Record, tel *StepTelemetry) (*AnalysisResponse, *resolveStats, error) {
	if e.cfg.search == nil {
		e.log.Info("no search backend, vector-first step runs sequential", "step", step.ID)
		return e.runSequentialStep(ctx, step, rec, tel, e.cfg.MaxWindows)
	}

	resp, stats, good, err := e.protocol.runVectorFirst(ctx, step, rec, e.batch, tel)
	if err != nil {
		return nil, stats, err
	}
	if good {
		return resp, stats, nil
	}

	e.log.Info("vector-first result insufficient, escalating to sequential",
		"step", step.ID, "appended_chars", tel.VectorAppendedChars)
	seqResp, seqStats, err := e.runSequentialStep(ctx, step, rec, tel, e.cfg.VectorWindowCap)
	if seqStats != nil && stats != nil {
		mergeResolveStats(stats, seqStats)
	}
	if err != nil {
		if resp != nil && errors.Is(err, errorspkg.ErrNoFindings) {
			// the vector round still produced something reportable
			return resp, stats, nil
		}
		return nil, stats, err
	}
	return seqResp, stats, nil
}

// runSequentialStep walks the concatenated corpus in overlapping windows,
// sends each window independently through the two-stage exchange, and merges
// the per-window analyses. A window whose analysis fails to parse is skipped;
// the step fails only if every window fails.
func (e *Engine) runSequentialStep(ctx context.Context, step *Step, rec *session.Record, tel *StepTelemetry, maxWindows int) (*AnalysisResponse, *resolveStats, error) {
	words := e.corpusWords()
	if len(words) == 0 {
		return nil, nil, fmt.Errorf("corpus has no transcript text: %w", errorspkg.ErrNoFindings)
	}

	windowWords := e.cfg.WindowWords
	if step.ChunkSize > 0 {
		windowWords = step.ChunkSize
	}
	windows := planWindows(len(words), windowWords, e.cfg.WindowOverlap, maxWindows)

	started := time.Now()
	stats := &resolveStats{}
	var responses []*AnalysisResponse
	var prevSummaries []string

	for i, w := range windows {
		if e.cfg.StepTimeBudget > 0 && i > 0 && time.Since(started) > e.cfg.StepTimeBudget {
			e.log.Warn("step time budget exhausted", "step", step.ID, "windows_done", i)
			break
		}

		windowText := strings.Join(words[w.Start:w.End], " ")
		resp, wStats, err := e.protocol.runWindow(ctx, step, rec, e.batch, windowText, i, len(windows), prevSummaries, tel)
		tel.SequentialWindows++
		if wStats != nil {
			mergeResolveStats(stats, wStats)
		}
		if err != nil {
			if errors.Is(err, errorspkg.ErrNoFindings) {
				e.log.Warn("window analysis unparseable, skipping", "step", step.ID, "window", i)
				continue
			}
			return nil, stats, err
		}
		responses = append(responses, resp)

		if resp.Findings != nil && resp.Findings.Summary != "" {
			prevSummaries = append(prevSummaries, trimTo(resp.Findings.Summary, 300))
			if len(prevSummaries) > 3 {
				prevSummaries = prevSummaries[len(prevSummaries)-3:]
			}
		}
	}

	if len(responses) == 0 {
		return nil, stats, fmt.Errorf("no window yielded findings: %w", errorspkg.ErrNoFindings)
	}
	return mergeWindowResults(step.ID, responses, e.cfg), stats, nil
}

// runAllStep feeds the whole permitted chunk through one two-stage exchange.
func (e *Engine) runAllStep(ctx context.Context, step *Step, rec *session.Record, tel *StepTelemetry) (*AnalysisResponse, *resolveStats, error) {
	chunk := assembleAllChunk(e.batch, e.cfg)
	return e.protocol.runChunk(ctx, step, rec, e.batch, chunk, tel)
}

// corpusWords concatenates the transcript words of the whole batch in order.
func (e *Engine) corpusWords() []string {
	var words []string
	for _, item := range e.batch.Items {
		words = append(words, item.Words()...)
	}
	return words
}

// assembleAllChunk builds the whole-corpus chunk: transcripts are the primary
// material, top comments augment them. A batch without any transcript leads
// with an explicit warning so the analysis is framed as comments-only.
func assembleAllChunk(batch *corpus.Batch, cfg *Config) string {
	var b strings.Builder

	if !batch.HasTranscripts() {
		b.WriteString("WARNING: no transcripts available; analysis is based on comments only.\n\n")
	}

	for _, item := range batch.Items {
		if strings.TrimSpace(item.Transcript) == "" {
			continue
		}
		fmt.Fprintf(&b, "=== Transcript: %s ===\n%s\n\n", item.LinkID, item.Transcript)
	}

	for _, item := range batch.Items {
		if len(item.Comments) == 0 {
			continue
		}
		sorted := append([]corpus.Comment(nil), item.Comments...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Engagement() > sorted[j].Engagement()
		})
		if cfg.CommentLimit > 0 && len(sorted) > cfg.CommentLimit {
			sorted = sorted[:cfg.CommentLimit]
		}
		fmt.Fprintf(&b, "=== Top comments: %s ===\n", item.LinkID)
		for _, c := range sorted {
			fmt.Fprintf(&b, "- (likes=%d, replies=%d) %s\n", c.Likes, c.Replies, c.Text)
		}
		b.WriteString("\n")
	}

	return clipText(strings.TrimRight(b.String(), "\n"), cfg.MaxChunkChars)
}
