package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/deepresearch/completion"
	"github.com/sweetpotato0/deepresearch/corpus"
	errorspkg "github.com/sweetpotato0/deepresearch/errors"
	"github.com/sweetpotato0/deepresearch/message"
	"github.com/sweetpotato0/deepresearch/session"
)

const contextSystemPrompt = `You are a research analyst working through a multi-step plan over a fixed corpus of transcripts, comments and articles. In this turn you may ONLY request the evidence you need; you may not report findings yet. Reply with a single JSON object and nothing else:
{
  "requests": [
    {"request_type": "keyword|word_range|semantic|full_content_item|by_marker|by_topic|selective_markers",
     "content_type": "transcript|comments|description|metadata",
     "source_link_id": "optional link id",
     "keywords": [], "query": "", "start_word": 0, "end_word": 0,
     "marker_text": "", "topic": "", "marker_types": []}
  ],
  "insights": "working notes, optional",
  "confidence": 0.0
}
Issue an empty requests array if the material already shown is sufficient.`

const analysisSystemPrompt = `You are a research analyst. Using ONLY the evidence provided, report your findings for the current step. Reply with a single JSON object and nothing else:
{
  "findings": {
    "summary": "required",
    "article": "optional narrative",
    "points_of_interest": {
      "key_claims": [], "notable_evidence": [], "controversial_topics": [],
      "surprising_insights": [], "specific_examples": [], "open_questions": []
    }
  },
  "insights": "working notes, optional",
  "confidence": 0.0,
  "completion_reason": "complete|missing_context|...",
  "still_missing": ["specific missing evidence, optional"]
}
Do not issue retrieval requests in this turn.`

// protocolDriver runs the two-stage request/analysis exchange with the
// completion service for one engine instance.
type protocolDriver struct {
	cfg *Config
	rt  *retriever
	log *slog.Logger
}

func newProtocolDriver(cfg *Config, rt *retriever, log *slog.Logger) *protocolDriver {
	return &protocolDriver{cfg: cfg, rt: rt, log: log}
}

func (p *protocolDriver) generate(ctx context.Context, system, user string) (string, error) {
	req := &completion.Request{
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, system),
			message.NewMessage(message.RoleUser, user),
		},
		Params: p.cfg.Params,
	}
	resp, err := p.cfg.completionClient.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion service: %w", err)
	}
	return resp.Text, nil
}

// stepPreamble renders the shared prompt head: goal, prior digests,
// scratchpad and a marker overview of the corpus.
func (p *protocolDriver) stepPreamble(step *Step, rec *session.Record, batch *corpus.Batch) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Current step %d\nGoal: %s\n", step.ID, step.Goal)
	if step.RequiredData != "" {
		fmt.Fprintf(&b, "Required data: %s\n", step.RequiredData)
	}

	if digests := session.AggregateDigests(rec.Digests, p.cfg.DigestTokenCap, p.cfg.tokens); digests != "" {
		b.WriteString("\n## Findings from earlier steps\n")
		b.WriteString(digests)
		b.WriteString("\n")
	}
	if rec.Scratchpad != "" {
		b.WriteString("\n## Scratchpad\n")
		b.WriteString(rec.Scratchpad)
		b.WriteString("\n")
	}

	b.WriteString("\n## Corpus overview\n")
	b.WriteString(markerOverview(batch))
	return b.String()
}

// markerOverview lists each item with its size and navigable markers so the
// model can issue targeted marker and word-range requests.
func markerOverview(batch *corpus.Batch) string {
	var b strings.Builder
	for _, item := range batch.Items {
		fmt.Fprintf(&b, "- %s: %q (%d words, %d comments",
			item.LinkID, item.Title, item.WordCount(), len(item.Comments))
		if types := item.MarkerTypes(); len(types) > 0 {
			fmt.Fprintf(&b, ", markers: %s", strings.Join(types, ","))
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// requestContext runs stage 1 and returns the parsed (never-failing) reply.
// material, when non-empty, is the working text the model is deciding about;
// chunked modes pass their chunk or window so requests target what is beyond
// it.
func (p *protocolDriver) requestContext(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, material string) (*ContextRequestResponse, error) {
	var b strings.Builder
	b.WriteString(p.stepPreamble(step, rec, batch))
	if strings.TrimSpace(material) != "" {
		b.WriteString("\n\n## Working material\n")
		b.WriteString(material)
		b.WriteString("\n")
	}
	b.WriteString("\n\nDecide what evidence you need for this step and reply with retrieval requests only.")
	raw, err := p.generate(ctx, contextSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return parseContextResponse(raw, step.ID, p.cfg), nil
}

// analyze runs stage 2 over the given evidence text.
func (p *protocolDriver) analyze(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, evidence string) (*AnalysisResponse, error) {
	var b strings.Builder
	b.WriteString(p.stepPreamble(step, rec, batch))
	b.WriteString("\n\n## Retrieved evidence\n")
	if strings.TrimSpace(evidence) == "" {
		b.WriteString("(none requested)\n")
	} else {
		b.WriteString(evidence)
		b.WriteString("\n")
	}
	b.WriteString("\nReport your findings for this step now.")

	raw, err := p.generate(ctx, analysisSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return parseAnalysisResponse(raw, step.ID, p.cfg)
}

// analyzeWindow runs stage 2 over one sequential window, carrying the
// summaries of up to three preceding windows for continuity. extra holds
// evidence the model requested beyond the window itself.
func (p *protocolDriver) analyzeWindow(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, windowText, extra string, index, total int, prevSummaries []string) (*AnalysisResponse, error) {
	var b strings.Builder
	b.WriteString(p.stepPreamble(step, rec, batch))
	fmt.Fprintf(&b, "\n\n## Corpus window %d of %d\n", index+1, total)
	if len(prevSummaries) > 0 {
		b.WriteString("Summaries of preceding windows:\n")
		for _, s := range prevSummaries {
			b.WriteString("- " + s + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(windowText)
	if strings.TrimSpace(extra) != "" {
		b.WriteString("\n\n## Retrieved evidence\n")
		b.WriteString(extra)
	}
	b.WriteString("\n\nReport your findings for this window now.")

	raw, err := p.generate(ctx, analysisSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return parseAnalysisResponse(raw, step.ID, p.cfg)
}

// continueAnalysis feeds follow-up evidence into stage 2 once more.
func (p *protocolDriver) continueAnalysis(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, prev *AnalysisResponse, evidence string) (*AnalysisResponse, error) {
	var b strings.Builder
	b.WriteString(p.stepPreamble(step, rec, batch))
	b.WriteString("\n\n## Your previous findings\n")
	if prev.Findings != nil {
		b.WriteString(prev.Findings.Summary)
		b.WriteString("\n")
	}
	b.WriteString("\n## Additional evidence\n")
	b.WriteString(evidence)
	b.WriteString("\n\nRevise and complete your findings for this step now.")

	raw, err := p.generate(ctx, analysisSystemPrompt, b.String())
	if err != nil {
		return nil, err
	}
	return parseAnalysisResponse(raw, step.ID, p.cfg)
}

// isGenericMissing reports whether a still_missing hint is noise (asks for
// the whole corpus rather than anything specific).
func (p *protocolDriver) isGenericMissing(hint string) bool {
	lower := strings.ToLower(strings.TrimSpace(hint))
	if lower == "" {
		return true
	}
	for _, phrase := range p.cfg.GenericMissingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// followupRequests derives the next negotiation round from a stage-2 reply:
// requests the model emitted despite the schema, plus conversions of its
// specific still_missing hints. A hint naming a known link id becomes a full
// item request; any other specific hint becomes a semantic ask.
func (p *protocolDriver) followupRequests(batch *corpus.Batch, resp *AnalysisResponse) []*RetrievalRequest {
	var reqs []*RetrievalRequest
	reqs = append(reqs, resp.extraRequests...)

	for _, hint := range resp.StillMissing {
		if p.isGenericMissing(hint) {
			continue
		}
		if item := batch.Item(strings.TrimSpace(hint)); item != nil {
			reqs = append(reqs, &RetrievalRequest{
				RequestType:  RequestFullContentItem,
				ContentType:  "transcript",
				SourceLinkID: item.LinkID,
			})
			continue
		}
		fallback := strings.Fields(hint)
		if len(fallback) > 5 {
			fallback = fallback[:5]
		}
		reqs = append(reqs, &RetrievalRequest{
			RequestType:      RequestSemantic,
			ContentType:      "transcript",
			Query:            strings.TrimSpace(hint),
			TopK:             p.cfg.VectorTopK,
			ContextWindow:    p.cfg.SemanticContextWindow,
			FallbackKeywords: fallback,
		})
	}
	return reqs
}

// goodEnough applies the sufficiency check for a vector-first step. A full
// item delivery short-circuits everything: the model has seen all there is.
func (p *protocolDriver) goodEnough(resp *AnalysisResponse, stats *resolveStats, hasPending bool) bool {
	if stats.fullItemDelivered {
		return true
	}
	if hasPending {
		return false
	}
	if stats.vectorQueries > 0 && stats.vectorHits == 0 {
		return false
	}
	if stats.vectorHits > 0 && stats.appendedChars < p.cfg.VectorMinChars {
		return false
	}
	if stats.vectorHits == 0 && stats.appendedChars > 0 && stats.appendedChars < p.cfg.MinCharsPerItem {
		return false
	}
	for _, hint := range resp.StillMissing {
		if !p.isGenericMissing(hint) {
			return false
		}
	}
	switch resp.CompletionReason {
	case "missing_context", "need_more_context", "insufficient_context":
		return false
	}
	if resp.Findings.Empty() && resp.Insights == "" && stats.vectorHits == 0 {
		return false
	}
	return true
}

// retrieveFor resolves the fresh requests of a stage-1 reply without vector
// search; chunked modes carry their material inline and do not escalate to
// the semantic backend.
func (p *protocolDriver) retrieveFor(ctx context.Context, step *Step, reqs []*RetrievalRequest, tel *StepTelemetry) (string, *resolveStats) {
	rt := p.rt.noVector()
	fresh := rt.collect(step.ID, reqs)
	if len(fresh) == 0 {
		return "", &resolveStats{}
	}
	p.cfg.publish(step.ID, "retrieving evidence")
	return rt.resolve(ctx, step.ID, fresh, tel)
}

// runChunk sends one assembled corpus chunk through the two-stage exchange:
// the model first asks for whatever evidence it needs beyond the chunk, then
// reports findings over the chunk plus anything retrieved. Chunked modes do
// not negotiate follow-ups.
func (p *protocolDriver) runChunk(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, chunk string, tel *StepTelemetry) (*AnalysisResponse, *resolveStats, error) {
	p.cfg.publish(step.ID, "requesting context")
	ctxResp, err := p.requestContext(ctx, step, rec, batch, chunk)
	if err != nil {
		return nil, nil, err
	}
	extra, stats := p.retrieveFor(ctx, step, ctxResp.Requests, tel)

	evidence := chunk
	if extra != "" {
		evidence = chunk + "\n\n" + extra
	}
	p.cfg.publish(step.ID, "generating analysis")
	resp, err := p.analyze(ctx, step, rec, batch, evidence)
	if err != nil {
		return nil, stats, err
	}
	return resp, stats, nil
}

// runWindow sends one sequential window through the same two-stage exchange,
// carrying the summaries of up to three preceding windows into the analysis.
func (p *protocolDriver) runWindow(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, windowText string, index, total int, prevSummaries []string, tel *StepTelemetry) (*AnalysisResponse, *resolveStats, error) {
	p.cfg.publish(step.ID, fmt.Sprintf("requesting context (window %d/%d)", index+1, total))
	ctxResp, err := p.requestContext(ctx, step, rec, batch, windowText)
	if err != nil {
		return nil, nil, err
	}
	extra, stats := p.retrieveFor(ctx, step, ctxResp.Requests, tel)

	p.cfg.publish(step.ID, fmt.Sprintf("generating analysis (window %d/%d)", index+1, total))
	resp, err := p.analyzeWindow(ctx, step, rec, batch, windowText, extra, index, total, prevSummaries)
	if err != nil {
		return nil, stats, err
	}
	return resp, stats, nil
}

// runVectorFirst executes the full vector-first exchange for one step:
// stage-1 context request, retrieval, stage-2 analysis, then up to
// MaxFollowups negotiation rounds. The boolean reports whether the result
// satisfied the sufficiency check; false means the caller escalates to
// sequential windowing. A nil response with nil error also means escalate.
func (p *protocolDriver) runVectorFirst(ctx context.Context, step *Step, rec *session.Record, batch *corpus.Batch, tel *StepTelemetry) (*AnalysisResponse, *resolveStats, bool, error) {
	p.cfg.publish(step.ID, "requesting context")
	ctxResp, err := p.requestContext(ctx, step, rec, batch, "")
	if err != nil {
		return nil, nil, false, err
	}

	stats := &resolveStats{}
	var evidence string
	if fresh := p.rt.collect(step.ID, ctxResp.Requests); len(fresh) > 0 {
		p.cfg.publish(step.ID, "retrieving evidence")
		evidence, stats = p.rt.resolve(ctx, step.ID, fresh, tel)
	}
	tel.VectorAppendedChars = stats.appendedChars

	p.cfg.publish(step.ID, "generating analysis")
	resp, err := p.analyze(ctx, step, rec, batch, evidence)
	if err != nil {
		if errors.Is(err, errorspkg.ErrNoFindings) {
			p.log.Warn("vector-first analysis produced no findings, escalating",
				"step", step.ID, "error", err)
			return nil, stats, false, nil
		}
		return nil, stats, false, err
	}

	followupChars := 0
	for turns := 0; turns < p.cfg.MaxFollowups; turns++ {
		if stats.fullItemDelivered {
			break
		}
		pending := p.followupRequests(batch, resp)
		if !p.rt.hasFresh(step.ID, pending) {
			break
		}
		if followupChars >= p.cfg.MaxTotalFollowupChars {
			break
		}

		fresh := p.rt.collect(step.ID, pending)
		if len(fresh) == 0 {
			break
		}
		tel.VectorFollowupTurns++
		p.cfg.publish(step.ID, "retrieving evidence")
		more, roundStats := p.rt.resolve(ctx, step.ID, fresh, tel)
		mergeResolveStats(stats, roundStats)
		followupChars += roundStats.appendedChars
		tel.VectorAppendedChars = stats.appendedChars

		p.cfg.publish(step.ID, "generating analysis")
		next, err := p.continueAnalysis(ctx, step, rec, batch, resp, more)
		if err != nil {
			if errors.Is(err, errorspkg.ErrNoFindings) {
				// keep the last usable reply
				break
			}
			return nil, stats, false, err
		}
		resp = next
	}

	pending := p.followupRequests(batch, resp)
	good := p.goodEnough(resp, stats, p.rt.hasFresh(step.ID, pending))
	if good && !stats.fullItemDelivered && tel.VectorFollowupTurns > 0 && followupChars < p.cfg.MinTotalFollowupChars {
		p.log.Info("follow-up evidence below floor, escalating",
			"step", step.ID, "followup_chars", followupChars)
		good = false
	}
	return resp, stats, good, nil
}

func mergeResolveStats(into, from *resolveStats) {
	into.appendedChars += from.appendedChars
	into.vectorQueries += from.vectorQueries
	into.vectorHits += from.vectorHits
	into.fullItemDelivered = into.fullItemDelivered || from.fullItemDelivered
	for id := range from.sources {
		into.addSource(id)
	}
}
