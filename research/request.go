package research

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/sweetpotato0/deepresearch/errors"
)

// RequestType enumerates the retrieval request kinds the model may issue.
type RequestType string

const (
	RequestKeyword          RequestType = "keyword"
	RequestWordRange        RequestType = "word_range"
	RequestSemantic         RequestType = "semantic"
	RequestFullContentItem  RequestType = "full_content_item"
	RequestByMarker         RequestType = "by_marker"
	RequestByTopic          RequestType = "by_topic"
	RequestSelectiveMarkers RequestType = "selective_markers"
)

// RetrievalRequest is the canonical, normalized shape of one evidence
// request. Two requests are equal when their canonical JSON forms match;
// that string is the cache and dedup key for the whole run.
type RetrievalRequest struct {
	ID            string         `json:"id,omitempty"`
	RequestType   RequestType    `json:"request_type"`
	ContentType   string         `json:"content_type"`
	SourceLinkID  string         `json:"source_link_id,omitempty"`
	SourceLinkIDs []string       `json:"source_link_ids,omitempty"`
	Method        string         `json:"method,omitempty"`
	Parameters    map[string]any `json:"parameters,omitempty"`

	Keywords         []string `json:"keywords,omitempty"`
	ContextWindow    int      `json:"context_window,omitempty"`
	StartWord        int      `json:"start_word,omitempty"`
	EndWord          int      `json:"end_word,omitempty"`
	Query            string   `json:"query,omitempty"`
	TopK             int      `json:"top_k,omitempty"`
	FallbackKeywords []string `json:"fallback_keywords,omitempty"`
	ContentTypes     []string `json:"content_types,omitempty"`
	MarkerText       string   `json:"marker_text,omitempty"`
	Topic            string   `json:"topic,omitempty"`
	MarkerTypes      []string `json:"marker_types,omitempty"`
}

// NormalizeRequest coerces a raw request object from the model into the
// canonical shape. Unknown request types are rejected.
func NormalizeRequest(raw map[string]any, cfg *Config) (*RetrievalRequest, error) {
	if raw == nil {
		return nil, fmt.Errorf("empty request: %w", errors.ErrInvalidInput)
	}

	typ := strings.ToLower(strings.TrimSpace(asString(raw["request_type"])))
	if typ == "" {
		typ = strings.ToLower(strings.TrimSpace(asString(raw["type"])))
	}

	req := &RetrievalRequest{
		ID:          asString(raw["id"]),
		RequestType: RequestType(typ),
		ContentType: strings.TrimSpace(asString(raw["content_type"])),
		Method:      strings.TrimSpace(asString(raw["method"])),
	}
	if req.ContentType == "" {
		req.ContentType = "transcript"
	}

	req.SourceLinkID = strings.TrimSpace(asString(raw["source_link_id"]))
	if req.SourceLinkID == "" {
		// legacy field name
		req.SourceLinkID = strings.TrimSpace(asString(raw["source"]))
	}
	req.SourceLinkIDs = asStringSlice(raw["source_link_ids"])

	if params, ok := raw["parameters"].(map[string]any); ok && len(params) > 0 {
		req.Parameters = params
	}

	switch req.RequestType {
	case RequestKeyword:
		req.Keywords = asStringSlice(raw["keywords"])
		req.ContextWindow = asInt(raw["context_window"])
		if req.ContextWindow <= 0 {
			req.ContextWindow = cfg.KeywordContextWords
		}
	case RequestWordRange:
		req.StartWord = asInt(raw["start_word"])
		req.EndWord = asInt(raw["end_word"])
	case RequestSemantic:
		req.Query = strings.TrimSpace(asString(raw["query"]))
		req.TopK = asInt(raw["top_k"])
		if req.TopK <= 0 {
			req.TopK = cfg.VectorTopK
		}
		req.ContextWindow = asInt(raw["context_window"])
		req.FallbackKeywords = asStringSlice(raw["fallback_keywords"])
	case RequestFullContentItem:
		req.ContentTypes = asStringSlice(raw["content_types"])
	case RequestByMarker:
		req.MarkerText = strings.TrimSpace(asString(raw["marker_text"]))
		req.ContextWindow = asInt(raw["context_window"])
		if req.ContextWindow <= 0 {
			req.ContextWindow = cfg.MarkerContextChars
		}
	case RequestByTopic:
		req.Topic = strings.TrimSpace(asString(raw["topic"]))
	case RequestSelectiveMarkers:
		req.MarkerTypes = asStringSlice(raw["marker_types"])
		req.ContextWindow = asInt(raw["context_window"])
		if req.ContextWindow <= 0 {
			req.ContextWindow = cfg.MarkerContextChars
		}
	default:
		return nil, fmt.Errorf("unknown request type %q: %w", typ, errors.ErrInvalidInput)
	}

	return req, nil
}

// Key returns the canonical JSON form of the request, used for caching and
// deduplication.
func (r *RetrievalRequest) Key() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize request: %w", err)
	}
	return string(canonical), nil
}

// Hints returns the free-text search hints the request carries, used for
// semantic augmentation.
func (r *RetrievalRequest) Hints() []string {
	var hints []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" {
			hints = append(hints, s)
		}
	}
	for _, kw := range r.Keywords {
		add(kw)
	}
	add(r.Query)
	add(r.MarkerText)
	add(r.Topic)
	return hints
}

// AugmentSemantic synthesizes a semantic sibling for a non-semantic request
// carrying free-text hints, so a keyword ask also benefits from vector
// search. Returns nil when no sibling applies.
func (r *RetrievalRequest) AugmentSemantic(cfg *Config) *RetrievalRequest {
	if r.RequestType == RequestSemantic {
		return nil
	}
	hints := r.Hints()
	if len(hints) == 0 {
		return nil
	}
	fallback := hints
	if len(fallback) > 5 {
		fallback = fallback[:5]
	}
	return &RetrievalRequest{
		RequestType:      RequestSemantic,
		ContentType:      r.ContentType,
		SourceLinkID:     r.SourceLinkID,
		SourceLinkIDs:    append([]string(nil), r.SourceLinkIDs...),
		Query:            strings.Join(hints, " "),
		TopK:             cfg.VectorTopK,
		ContextWindow:    cfg.SemanticContextWindow,
		FallbackKeywords: append([]string(nil), fallback...),
	}
}

// LinkIDs returns the link ids the request targets; empty means the whole
// batch.
func (r *RetrievalRequest) LinkIDs() []string {
	if len(r.SourceLinkIDs) > 0 {
		return r.SourceLinkIDs
	}
	if r.SourceLinkID != "" {
		return []string{r.SourceLinkID}
	}
	return nil
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", s), ".0")
	case int:
		return fmt.Sprintf("%d", s)
	default:
		return ""
	}
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		var out int
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &out); err == nil {
			return out
		}
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		var out float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%f", &out); err == nil {
			return out
		}
	}
	return 0
}

func asStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		var out []string
		for _, s := range vals {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []string
		for _, item := range vals {
			if s := strings.TrimSpace(asString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(vals); s != "" {
			return []string{s}
		}
	}
	return nil
}
