package research

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sweetpotato0/deepresearch/errors"
)

// The completion service does not always return clean JSON. Parsing runs as
// an ordered chain: strict decode, then a generic object scan over the raw
// text, then a balanced-bracket extraction of the "requests" array. The raw
// text is kept until the chain completes so no strategy reparses from
// scratch, and pending requests are never silently lost.

var reJSONObject = regexp.MustCompile(`(?s)\{.*\}`)

// parseObject runs the first two chain links and returns the decoded object.
func parseObject(raw string) (map[string]any, bool) {
	if obj, err := decodeJSON[map[string]any](raw); err == nil {
		return *obj, true
	}
	match := reJSONObject.FindString(raw)
	if match == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(match), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// extractRequestsArray is the last-resort chain link: locate a literal
// "requests" key in the raw text and bracket-match its array value.
func extractRequestsArray(raw string) []map[string]any {
	idx := strings.Index(raw, `"requests"`)
	if idx < 0 {
		return nil
	}
	open := strings.Index(raw[idx:], "[")
	if open < 0 {
		return nil
	}
	open += idx

	depth := 0
	inString := false
	escaped := false
	end := -1
	for i := open; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil
	}

	var items []any
	if err := json.Unmarshal([]byte(raw[open:end+1]), &items); err != nil {
		return nil
	}
	return asMapSlice(items)
}

// parseContextResponse parses a stage-1 reply. It never fails hard: an
// unrecoverable reply degrades to an empty request list with low confidence.
// A findings field in the raw reply is dropped.
func parseContextResponse(raw string, stepID int, cfg *Config) *ContextRequestResponse {
	resp := &ContextRequestResponse{StepID: stepID}

	obj, ok := parseObject(raw)
	var rawRequests []map[string]any
	if ok {
		rawRequests = asMapSlice(obj["requests"])
		resp.Insights = coerceInsights(obj["insights"])
		resp.Confidence = clampConfidence(asFloat(obj["confidence"]))
	} else {
		rawRequests = extractRequestsArray(raw)
		resp.Confidence = 0.1
	}

	for _, rawReq := range rawRequests {
		req, err := NormalizeRequest(rawReq, cfg)
		if err != nil {
			continue
		}
		resp.Requests = append(resp.Requests, req)
	}
	return resp
}

// parseAnalysisResponse parses a stage-2 reply. Missing or malformed
// findings after the whole chain is a hard failure: the step has nothing to
// report. A requests field is discarded from the findings contract but kept
// aside for the follow-up loop.
func parseAnalysisResponse(raw string, stepID int, cfg *Config) (*AnalysisResponse, error) {
	obj, ok := parseObject(raw)
	if !ok {
		return nil, fmt.Errorf("analysis reply for step %d is not parseable: %w", stepID, errors.ErrNoFindings)
	}

	findingsObj, _ := obj["findings"].(map[string]any)
	if findingsObj == nil {
		// some models inline the findings fields at the top level
		findingsObj = obj
	}

	findings := &Findings{
		Summary: strings.TrimSpace(asString(findingsObj["summary"])),
		Article: strings.TrimSpace(asString(findingsObj["article"])),
	}
	if poiRaw, okPOI := findingsObj["points_of_interest"].(map[string]any); okPOI {
		poi := make(PointsOfInterest, len(poiRaw))
		for category, value := range poiRaw {
			entries, okList := value.([]any)
			if !okList {
				continue
			}
			poi[category] = entries
		}
		if len(poi) > 0 {
			findings.PointsOfInterest = poi
		}
	}

	if findings.Summary == "" && findings.Article == "" {
		return nil, fmt.Errorf("analysis reply for step %d carries neither summary nor article: %w",
			stepID, errors.ErrNoFindings)
	}

	resp := &AnalysisResponse{
		StepID:           stepID,
		Findings:         findings,
		Insights:         coerceInsights(obj["insights"]),
		Confidence:       clampConfidence(asFloat(obj["confidence"])),
		CompletionReason: strings.ToLower(strings.TrimSpace(asString(obj["completion_reason"]))),
		StillMissing:     asStringSlice(obj["still_missing"]),
	}

	for _, rawReq := range asMapSlice(obj["requests"]) {
		req, err := NormalizeRequest(rawReq, cfg)
		if err != nil {
			continue
		}
		resp.extraRequests = append(resp.extraRequests, req)
	}

	return resp, nil
}

func asMapSlice(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range items {
		if m, okMap := item.(map[string]any); okMap {
			out = append(out, m)
		}
	}
	return out
}

func coerceInsights(v any) string {
	switch insights := v.(type) {
	case string:
		return strings.TrimSpace(insights)
	case []any:
		var parts []string
		for _, item := range insights {
			if s := strings.TrimSpace(asString(item)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
