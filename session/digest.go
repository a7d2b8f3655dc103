package session

import (
	"fmt"
	"strings"
)

// TokenCounter measures text in model tokens. The tiktoken-backed
// implementation lives in contrib/tokenizer; ApproxCounter is the
// zero-dependency default.
type TokenCounter interface {
	CountTokens(text string) int
}

// ApproxCounter estimates tokens as one per four characters.
type ApproxCounter struct{}

// CountTokens implements TokenCounter.
func (ApproxCounter) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

// RenderDigest formats a digest as the prompt block fed into later steps.
func RenderDigest(d *StepDigest) string {
	if d == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d: %s\n", d.StepID, d.GoalText)
	if d.Summary != "" {
		b.WriteString(d.Summary)
		b.WriteString("\n")
	}
	if len(d.PointsOfInterest) > 0 {
		b.WriteString("Points of interest:\n")
		for _, line := range d.PointsOfInterest {
			b.WriteString("- " + line + "\n")
		}
	}
	if len(d.NotableEvidence) > 0 {
		b.WriteString("Notable evidence:\n")
		for _, line := range d.NotableEvidence {
			b.WriteString("- " + line + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// AggregateDigests renders digests in plan order until the token cap is
// reached; later digests are dropped whole rather than cut mid-sentence.
func AggregateDigests(digests []*StepDigest, tokenCap int, counter TokenCounter) string {
	if counter == nil {
		counter = ApproxCounter{}
	}
	var parts []string
	used := 0
	for _, d := range digests {
		rendered := RenderDigest(d)
		if rendered == "" {
			continue
		}
		cost := counter.CountTokens(rendered)
		if tokenCap > 0 && used+cost > tokenCap && len(parts) > 0 {
			break
		}
		parts = append(parts, rendered)
		used += cost
		if tokenCap > 0 && used >= tokenCap {
			break
		}
	}
	return strings.Join(parts, "\n\n")
}
