package research

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sweetpotato0/deepresearch/session"
	"github.com/sweetpotato0/deepresearch/vector"
)

// poiTextFields are the fields checked, in order, when a point-of-interest
// entry is an object rather than a plain string.
var poiTextFields = []string{
	"claim", "description", "quote", "example", "topic",
	"insight", "summary", "question", "observation", "note", "text",
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// noveltyFilter prunes points of interest that repeat what earlier steps
// already recorded. It runs once per step, before the digest is persisted.
type noveltyFilter struct {
	cfg *Config
	log *slog.Logger
}

func newNoveltyFilter(cfg *Config, log *slog.Logger) *noveltyFilter {
	return &noveltyFilter{cfg: cfg, log: log}
}

// filter removes duplicate entries from the findings' points of interest, in
// place. Prior text units come from the digests of earlier steps. Embedding
// failures degrade the check to keyword overlap only.
func (nf *noveltyFilter) filter(ctx context.Context, stepID int, findings *Findings, priorUnits []string, tel *StepTelemetry) {
	if findings == nil || findings.PointsOfInterest.Count() == 0 || len(priorUnits) == 0 {
		return
	}

	priorVecs := nf.embedAll(ctx, priorUnits)

	for category, entries := range findings.PointsOfInterest {
		var kept []any
		for _, entry := range entries {
			text := extractPOIText(category, entry)
			if text == "" {
				kept = append(kept, entry)
				continue
			}
			tel.NoveltyCandidates++

			decision := nf.judge(ctx, category, text, priorUnits, priorVecs)
			if !decision.Kept && nf.cfg.AllowRevisionDuplicates && isRevisionEntry(entry) {
				decision.Kept = true
			}
			tel.NoveltyDecisions = append(tel.NoveltyDecisions, decision)

			if decision.Kept {
				kept = append(kept, entry)
			} else {
				tel.NoveltyDuplicates++
			}
		}
		findings.PointsOfInterest[category] = kept
	}
}

// judge scores one candidate against all prior units and returns the verdict.
func (nf *noveltyFilter) judge(ctx context.Context, category, text string, priorUnits []string, priorVecs [][]float32) NoveltyDecision {
	decision := NoveltyDecision{Category: category, Text: text, Kept: true}

	var candVec []float32
	if priorVecs != nil && nf.cfg.embedder != nil {
		embedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		vec, err := nf.cfg.embedder.Embed(embedCtx, text)
		cancel()
		if err != nil {
			nf.log.Warn("candidate embedding failed, keyword-only novelty check", "error", err)
		} else {
			candVec = vec
		}
	}

	candTokens := tokenBag(text)
	for i, unit := range priorUnits {
		overlap := bagOverlap(candTokens, tokenBag(unit))
		if overlap > decision.KeywordOverlap {
			decision.KeywordOverlap = overlap
			decision.MatchedText = unit
		}
		if candVec != nil && i < len(priorVecs) && priorVecs[i] != nil {
			sim := float64(vector.CosineSimilarity(candVec, priorVecs[i]))
			if sim > decision.Similarity {
				decision.Similarity = sim
				decision.MatchedText = unit
			}
		}
		if decision.Similarity >= nf.cfg.SimilarityThreshold ||
			decision.KeywordOverlap >= nf.cfg.KeywordOverlapThreshold {
			decision.Kept = false
			return decision
		}
	}
	return decision
}

// embedAll batch-embeds the prior units once; nil means degraded mode.
func (nf *noveltyFilter) embedAll(ctx context.Context, units []string) [][]float32 {
	if nf.cfg.embedder == nil {
		return nil
	}
	embedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	vecs, err := nf.cfg.embedder.EmbedBatch(embedCtx, units)
	if err != nil {
		nf.log.Warn("prior-unit embedding failed, keyword-only novelty check", "error", err)
		return nil
	}
	return vecs
}

// extractPOIText flattens one point-of-interest entry to comparable text.
func extractPOIText(category string, entry any) string {
	switch v := entry.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if category == "notable_evidence" {
			desc := strings.TrimSpace(asString(v["description"]))
			quote := strings.TrimSpace(asString(v["quote"]))
			if desc != "" && quote != "" {
				return desc + " | " + quote
			}
		}
		for _, field := range poiTextFields {
			if s := strings.TrimSpace(asString(v[field])); s != "" {
				return s
			}
		}
	}
	return ""
}

// isRevisionEntry reports whether an entry flags itself as revising earlier
// findings rather than repeating them.
func isRevisionEntry(entry any) bool {
	obj, ok := entry.(map[string]any)
	if !ok {
		return false
	}
	for _, key := range []string{"revised", "updated", "is_revision"} {
		if flag, okBool := obj[key].(bool); okBool && flag {
			return true
		}
	}
	for _, key := range []string{"status", "type", "kind"} {
		s := strings.ToLower(asString(obj[key]))
		if strings.Contains(s, "revis") || strings.Contains(s, "updat") {
			return true
		}
	}
	return false
}

// tokenBag lowercases and tokenizes text into a set; very short texts fall
// back to character bigrams so they still compare meaningfully.
func tokenBag(text string) map[string]struct{} {
	bag := make(map[string]struct{})
	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len(token) > 1 {
			bag[token] = struct{}{}
		}
	}
	if len(bag) == 0 {
		lower := strings.ToLower(text)
		for i := 0; i+2 <= len(lower); i++ {
			bag[lower[i:i+2]] = struct{}{}
		}
	}
	return bag
}

// bagOverlap is |A∩B| / min(|A|,|B|).
func bagOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

// buildDigest condenses a finished step into its durable digest.
func buildDigest(step *Step, resp *AnalysisResponse, cfg *Config) *session.StepDigest {
	digest := &session.StepDigest{
		StepID:    step.ID,
		GoalText:  step.Goal,
		CreatedAt: time.Now(),
	}
	if resp == nil || resp.Findings == nil {
		return digest
	}
	digest.Summary = resp.Findings.Summary

	var units []string
	for _, category := range poiCategories {
		for _, entry := range resp.Findings.PointsOfInterest[category] {
			text := extractPOIText(category, entry)
			if text == "" {
				continue
			}
			units = append(units, text)
			switch category {
			case "notable_evidence":
				if len(digest.NotableEvidence) < cfg.MaxDigestEvidence {
					digest.NotableEvidence = append(digest.NotableEvidence, text)
				}
			default:
				if len(digest.PointsOfInterest) < cfg.MaxDigestPOILines {
					digest.PointsOfInterest = append(digest.PointsOfInterest,
						fmt.Sprintf("%s: %s", category, text))
				}
			}
			if isRevisionEntry(entry) {
				digest.RevisionNotes = append(digest.RevisionNotes, text)
			}
		}
	}
	if digest.Summary != "" {
		units = append(units, digest.Summary)
	}
	if cfg.MaxTextUnits > 0 && len(units) > cfg.MaxTextUnits {
		units = units[:cfg.MaxTextUnits]
	}
	digest.TextUnits = units
	return digest
}
