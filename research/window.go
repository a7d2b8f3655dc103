package research

import "strings"

// Window is a half-open [Start, End) word-index range.
type Window struct {
	Start int
	End   int
}

// Len returns the window length in words.
func (w Window) Len() int { return w.End - w.Start }

// planWindows produces the ordered overlapping windows covering a text of n
// words left to right. Overlap is clamped to [0, w-1]; when the resulting
// stride would not advance, a forced stride of w/2 guarantees progress. At
// most k windows are emitted when k > 0. The wall-clock step budget is
// enforced by the caller between windows, not here.
func planWindows(n, w, o, k int) []Window {
	if n <= 0 {
		return nil
	}
	if w <= 0 || w >= n {
		return []Window{{Start: 0, End: n}}
	}

	overlap := o
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= w {
		overlap = w - 1
	}

	var out []Window
	start := 0
	for start < n {
		if k > 0 && len(out) >= k {
			break
		}
		end := min(n, start+w)
		out = append(out, Window{Start: start, End: end})
		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = start + max(1, w/2)
		}
		start = next
	}
	return out
}

// mergeWindowResults folds per-window analyses into one step-level response:
// truncated summary/insight fragments are concatenated, points of interest
// union-append per category with a per-window cap, confidence takes the max.
func mergeWindowResults(stepID int, results []*AnalysisResponse, cfg *Config) *AnalysisResponse {
	merged := &AnalysisResponse{
		StepID:           stepID,
		Findings:         &Findings{PointsOfInterest: PointsOfInterest{}},
		CompletionReason: "windowed",
	}

	var summaries, articles, insights []string
	for _, r := range results {
		if r == nil || r.Findings == nil {
			continue
		}
		if s := trimTo(r.Findings.Summary, 1000); s != "" {
			summaries = append(summaries, s)
		}
		if a := trimTo(r.Findings.Article, 1000); a != "" {
			articles = append(articles, a)
		}
		if ins := trimTo(r.Insights, 1000); ins != "" {
			insights = append(insights, ins)
		}
		for category, entries := range r.Findings.PointsOfInterest {
			capped := entries
			if cfg.MaxPOIPerWindow > 0 && len(capped) > cfg.MaxPOIPerWindow {
				capped = capped[:cfg.MaxPOIPerWindow]
			}
			merged.Findings.PointsOfInterest[category] =
				append(merged.Findings.PointsOfInterest[category], capped...)
		}
		if r.Confidence > merged.Confidence {
			merged.Confidence = r.Confidence
		}
		merged.StillMissing = append(merged.StillMissing, r.StillMissing...)
	}

	merged.Findings.Summary = strings.Join(summaries, "\n\n")
	merged.Findings.Article = strings.Join(articles, "\n\n")
	merged.Insights = trimTo(strings.Join(insights, "\n\n"), 2000)
	return merged
}

func trimTo(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max])
}
