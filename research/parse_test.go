package research

import (
	"errors"
	"strings"
	"testing"

	errorspkg "github.com/sweetpotato0/deepresearch/errors"
)

func TestParseContextResponseClean(t *testing.T) {
	raw := `{"requests":[{"request_type":"keyword","keywords":["solar"]}],"insights":"note","confidence":0.7}`

	resp := parseContextResponse(raw, 1, defaultConfig())
	if len(resp.Requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(resp.Requests))
	}
	if resp.Insights != "note" {
		t.Fatalf("expected insights carried, got %q", resp.Insights)
	}
	if resp.Confidence != 0.7 {
		t.Fatalf("expected confidence 0.7, got %v", resp.Confidence)
	}
}

func TestParseContextResponseFencedAndProse(t *testing.T) {
	raw := "Here is what I need:\n```json\n{\"requests\":[{\"request_type\":\"by_topic\",\"topic\":\"pricing\"}]}\n```"
	resp := parseContextResponse(raw, 1, defaultConfig())
	if len(resp.Requests) != 1 || resp.Requests[0].RequestType != RequestByTopic {
		t.Fatalf("expected topic request from fenced reply, got %+v", resp.Requests)
	}
}

func TestParseContextResponseRequestsArrayRescue(t *testing.T) {
	// broken object, but the requests array itself is intact
	raw := `garbage {{{ "requests": [{"request_type":"keyword","keywords":["ev"]}] more garbage`
	resp := parseContextResponse(raw, 2, defaultConfig())
	if len(resp.Requests) != 1 {
		t.Fatalf("expected request rescued from broken reply, got %d", len(resp.Requests))
	}
	if resp.Confidence != 0.1 {
		t.Fatalf("expected degraded confidence 0.1, got %v", resp.Confidence)
	}
}

func TestParseContextResponseNeverFails(t *testing.T) {
	resp := parseContextResponse("total nonsense", 3, defaultConfig())
	if resp == nil {
		t.Fatalf("context parse must never return nil")
	}
	if len(resp.Requests) != 0 {
		t.Fatalf("expected no requests, got %d", len(resp.Requests))
	}
	if resp.Confidence != 0.1 {
		t.Fatalf("expected degraded confidence 0.1, got %v", resp.Confidence)
	}
}

func TestParseContextResponseDropsFindings(t *testing.T) {
	raw := `{"requests":[],"findings":{"summary":"premature"},"confidence":0.9}`
	resp := parseContextResponse(raw, 1, defaultConfig())
	if len(resp.Requests) != 0 {
		t.Fatalf("expected empty requests, got %d", len(resp.Requests))
	}
	// nothing on the response can carry the findings; only shape matters here
	if resp.Confidence != 0.9 {
		t.Fatalf("expected confidence preserved, got %v", resp.Confidence)
	}
}

func TestParseAnalysisResponse(t *testing.T) {
	raw := `{"findings":{"summary":"the panel debated subsidies","points_of_interest":{"key_claims":["subsidies doubled"]}},"confidence":0.8,"completion_reason":"complete","still_missing":["exact quote"]}`

	resp, err := parseAnalysisResponse(raw, 1, defaultConfig())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if resp.Findings.Summary != "the panel debated subsidies" {
		t.Fatalf("unexpected summary %q", resp.Findings.Summary)
	}
	if len(resp.Findings.PointsOfInterest["key_claims"]) != 1 {
		t.Fatalf("expected 1 key claim, got %v", resp.Findings.PointsOfInterest)
	}
	if len(resp.StillMissing) != 1 {
		t.Fatalf("expected still_missing, got %v", resp.StillMissing)
	}
}

func TestParseAnalysisResponseTopLevelFindings(t *testing.T) {
	raw := `{"summary":"inline summary","confidence":0.5}`
	resp, err := parseAnalysisResponse(raw, 1, defaultConfig())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if resp.Findings.Summary != "inline summary" {
		t.Fatalf("expected top-level summary honored, got %q", resp.Findings.Summary)
	}
}

func TestParseAnalysisResponseNoFindings(t *testing.T) {
	for _, raw := range []string{
		"not json at all",
		`{"confidence":0.9}`,
		`{"findings":{"summary":"","article":""}}`,
	} {
		_, err := parseAnalysisResponse(raw, 1, defaultConfig())
		if !errors.Is(err, errorspkg.ErrNoFindings) {
			t.Fatalf("expected ErrNoFindings for %q, got %v", raw, err)
		}
	}
}

func TestParseAnalysisResponseKeepsExtraRequests(t *testing.T) {
	raw := `{"findings":{"summary":"partial"},"requests":[{"request_type":"semantic","query":"follow up"}]}`
	resp, err := parseAnalysisResponse(raw, 1, defaultConfig())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(resp.extraRequests) != 1 {
		t.Fatalf("expected schema-violating requests kept aside, got %d", len(resp.extraRequests))
	}
	if resp.extraRequests[0].Query != "follow up" {
		t.Fatalf("unexpected extra request %+v", resp.extraRequests[0])
	}
}

func TestSanitizeJSONStripsFences(t *testing.T) {
	raw := "```json\n{\"a\":1}\n```"
	if got := sanitizeJSON(raw); !strings.HasPrefix(got, "{") || !strings.HasSuffix(got, "}") {
		t.Fatalf("expected fences stripped, got %q", got)
	}
}
