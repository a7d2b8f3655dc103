package research

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sweetpotato0/deepresearch/corpus"
	"github.com/sweetpotato0/deepresearch/vector"
)

const (
	snippetChars       = 280
	maxRangesPerItem   = 5
	maxMarkersPerBlock = 12
	noMatchesMarker    = "(no matches found)"
)

// resolveStats summarizes one resolution round for the good-enough check.
type resolveStats struct {
	appendedChars     int
	vectorQueries     int
	vectorHits        int
	fullItemDelivered bool
	sources           map[string]struct{}
}

func (s *resolveStats) addSource(linkID string) {
	if linkID == "" {
		return
	}
	if s.sources == nil {
		s.sources = make(map[string]struct{})
	}
	s.sources[linkID] = struct{}{}
}

func (s *resolveStats) sourceList() []string {
	out := make([]string, 0, len(s.sources))
	for id := range s.sources {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// retriever turns model retrieval requests into bounded evidence text. All
// of its caches are private to one plan-execution run.
type retriever struct {
	cfg          *Config
	batch        *corpus.Batch
	cache        map[string]string           // request key -> evidence block
	seenKeys     map[int]map[string]struct{} // step id -> request keys already collected
	seenChunks   map[int]map[string]struct{} // step id -> vector chunk ids already delivered
	vectorRounds map[int]int                 // step id -> semantic rounds executed
	log          *slog.Logger
}

func newRetriever(cfg *Config, batch *corpus.Batch, log *slog.Logger) *retriever {
	return &retriever{
		cfg:          cfg,
		batch:        batch,
		cache:        make(map[string]string),
		seenKeys:     make(map[int]map[string]struct{}),
		seenChunks:   make(map[int]map[string]struct{}),
		vectorRounds: make(map[int]int),
		log:          log,
	}
}

// noVector returns a view of this retriever with the semantic backend masked,
// sharing every cache. Chunked modes retrieve without vector search; their
// semantic requests demote to keyword fallback.
func (rt *retriever) noVector() *retriever {
	if rt.cfg.search == nil {
		return rt
	}
	cfg := *rt.cfg
	cfg.search = nil
	cfg.reranker = nil
	clone := *rt
	clone.cfg = &cfg
	return &clone
}

// collect dedups requests against everything already seen for the step and
// appends semantic siblings for hint-carrying requests when a vector backend
// is configured. Order is preserved; duplicates are dropped silently.
func (rt *retriever) collect(stepID int, reqs []*RetrievalRequest) []*RetrievalRequest {
	var out []*RetrievalRequest
	for _, req := range reqs {
		if req == nil {
			continue
		}
		candidates := []*RetrievalRequest{req}
		if rt.cfg.search != nil {
			if sibling := req.AugmentSemantic(rt.cfg); sibling != nil {
				candidates = append(candidates, sibling)
			}
		}
		for _, cand := range candidates {
			key, err := cand.Key()
			if err != nil {
				rt.log.Warn("request key failed", "step", stepID, "error", err)
				continue
			}
			if !rt.markSeen(stepID, key) {
				continue
			}
			out = append(out, cand)
		}
	}
	return out
}

// hasFresh reports whether any of the requests carries a key not yet seen
// for this step, without marking anything.
func (rt *retriever) hasFresh(stepID int, reqs []*RetrievalRequest) bool {
	seen := rt.seenKeys[stepID]
	for _, req := range reqs {
		if req == nil {
			continue
		}
		key, err := req.Key()
		if err != nil {
			continue
		}
		if _, dup := seen[key]; !dup {
			return true
		}
	}
	return false
}

// markSeen returns true when the key was not seen before for this step.
func (rt *retriever) markSeen(stepID int, key string) bool {
	seen, ok := rt.seenKeys[stepID]
	if !ok {
		seen = make(map[string]struct{})
		rt.seenKeys[stepID] = seen
	}
	if _, dup := seen[key]; dup {
		return false
	}
	seen[key] = struct{}{}
	return true
}

// resolve executes each request (cache-first) and assembles one retrieved
// context string. A failing request renders as an inline error block; the
// round continues with whatever else resolved.
func (rt *retriever) resolve(ctx context.Context, stepID int, reqs []*RetrievalRequest, tel *StepTelemetry) (string, *resolveStats) {
	stats := &resolveStats{}
	var blocks []string

	if rt.cfg.search != nil {
		for _, req := range reqs {
			if req != nil && req.RequestType == RequestSemantic {
				rt.vectorRounds[stepID]++
				break
			}
		}
	}

	for _, req := range reqs {
		if req == nil {
			continue
		}

		key, err := req.Key()
		if err != nil {
			blocks = append(blocks, fmt.Sprintf("[Retrieval error] %v", err))
			continue
		}

		block, cached := rt.cache[key]
		if !cached {
			block, err = rt.execute(ctx, stepID, req, tel, stats)
			if err != nil {
				block = blockHeader(req) + "\n" + fmt.Sprintf("[Retrieval error] %v", err)
			}
			rt.cache[key] = block
		}

		if req.RequestType == RequestFullContentItem && !strings.Contains(block, noMatchesMarker) {
			stats.fullItemDelivered = true
		}
		for _, id := range req.LinkIDs() {
			stats.addSource(id)
		}

		stats.appendedChars += len(block)
		blocks = append(blocks, block)
	}

	return strings.Join(blocks, "\n\n"), stats
}

func (rt *retriever) execute(ctx context.Context, stepID int, req *RetrievalRequest, tel *StepTelemetry, stats *resolveStats) (string, error) {
	var body string
	var err error

	switch req.RequestType {
	case RequestFullContentItem:
		body, err = rt.fullContentItem(req)
	case RequestByMarker:
		body, err = rt.byMarker(req)
	case RequestSelectiveMarkers:
		body, err = rt.selectiveMarkers(req)
	case RequestByTopic:
		body, err = rt.byTopic(req)
	case RequestWordRange:
		body, err = rt.wordRange(req)
	case RequestKeyword:
		body, err = rt.keyword(req)
	case RequestSemantic:
		body, err = rt.semantic(ctx, stepID, req, tel, stats)
	default:
		err = fmt.Errorf("unsupported request type %q", req.RequestType)
	}
	if err != nil {
		return "", err
	}

	limit := rt.cfg.MaxCharsPerItem
	if req.RequestType == RequestFullContentItem {
		limit = rt.cfg.FullItemMaxChars
	}
	return blockHeader(req) + "\n" + clipText(body, limit), nil
}

func blockHeader(req *RetrievalRequest) string {
	link := strings.Join(req.LinkIDs(), ",")
	if link == "" {
		link = "all"
	}
	return fmt.Sprintf("[Retrieval Result] type=%s, content_type=%s, link_id=%s",
		req.RequestType, req.ContentType, link)
}

// targets resolves the items a request addresses; no link filter means the
// whole batch.
func (rt *retriever) targets(req *RetrievalRequest) []*corpus.Item {
	ids := req.LinkIDs()
	if len(ids) == 0 {
		return rt.batch.Items
	}
	var items []*corpus.Item
	for _, id := range ids {
		if item := rt.batch.Item(id); item != nil {
			items = append(items, item)
		}
	}
	return items
}

func (rt *retriever) fullContentItem(req *RetrievalRequest) (string, error) {
	items := rt.targets(req)
	if len(items) == 0 {
		return "", fmt.Errorf("no item for link id %q", strings.Join(req.LinkIDs(), ","))
	}

	contentTypes := req.ContentTypes
	if len(contentTypes) == 0 {
		contentTypes = []string{req.ContentType}
	}

	var sections []string
	for _, item := range items {
		for _, ct := range contentTypes {
			switch strings.ToLower(ct) {
			case "transcript":
				if strings.TrimSpace(item.Transcript) != "" {
					sections = append(sections, fmt.Sprintf("=== Transcript: %s ===\n%s", item.LinkID, item.Transcript))
				}
			case "comments":
				if rendered := renderComments(item.Comments, 0); rendered != "" {
					sections = append(sections, fmt.Sprintf("=== Comments: %s ===\n%s", item.LinkID, rendered))
				}
			case "description":
				if strings.TrimSpace(item.Description) != "" {
					sections = append(sections, fmt.Sprintf("=== Description: %s ===\n%s", item.LinkID, item.Description))
				}
			case "metadata":
				sections = append(sections, fmt.Sprintf("=== Metadata: %s ===\ntitle: %s\nsource: %s\nwords: %d",
					item.LinkID, item.Title, item.Source, item.WordCount()))
			}
		}
	}

	if len(sections) == 0 {
		return noMatchesMarker, nil
	}
	return strings.Join(sections, "\n\n"), nil
}

func (rt *retriever) byMarker(req *RetrievalRequest) (string, error) {
	if req.MarkerText == "" {
		return "", fmt.Errorf("by_marker request requires marker_text")
	}
	window := req.ContextWindow
	if window <= 0 {
		window = rt.cfg.MarkerContextChars
	}

	for _, item := range rt.targets(req) {
		marker := item.FindMarker(req.MarkerText)
		if marker == nil {
			continue
		}
		return fmt.Sprintf("marker %q (%s) in %s:\n%s",
			marker.Label, marker.Type, item.LinkID,
			sliceAround(item.Transcript, marker.Offset, window)), nil
	}
	return noMatchesMarker, nil
}

func (rt *retriever) selectiveMarkers(req *RetrievalRequest) (string, error) {
	window := req.ContextWindow
	if window <= 0 {
		window = rt.cfg.MarkerContextChars
	}
	wanted := make(map[string]struct{}, len(req.MarkerTypes))
	for _, t := range req.MarkerTypes {
		wanted[strings.ToLower(t)] = struct{}{}
	}

	var sections []string
	for _, item := range rt.targets(req) {
		for _, marker := range item.Markers {
			if len(wanted) > 0 {
				if _, ok := wanted[strings.ToLower(marker.Type)]; !ok {
					continue
				}
			}
			sections = append(sections, fmt.Sprintf("marker %q (%s) in %s:\n%s",
				marker.Label, marker.Type, item.LinkID,
				sliceAround(item.Transcript, marker.Offset, window)))
			if len(sections) >= maxMarkersPerBlock {
				break
			}
		}
		if len(sections) >= maxMarkersPerBlock {
			break
		}
	}

	if len(sections) == 0 {
		return noMatchesMarker, nil
	}
	return strings.Join(sections, "\n\n"), nil
}

func (rt *retriever) byTopic(req *RetrievalRequest) (string, error) {
	if req.Topic == "" {
		return "", fmt.Errorf("by_topic request requires a topic")
	}
	tokens := strings.Fields(strings.ToLower(req.Topic))

	var sections []string
	for _, item := range rt.targets(req) {
		var matched []string
		for _, paragraph := range splitParagraphs(item.Transcript) {
			lower := strings.ToLower(paragraph)
			for _, token := range tokens {
				if strings.Contains(lower, token) {
					matched = append(matched, paragraph)
					break
				}
			}
		}
		if len(matched) == 0 {
			continue
		}
		sections = append(sections, fmt.Sprintf("topic %q in %s:\n%s",
			req.Topic, item.LinkID, strings.Join(matched, "\n")))
	}

	if len(sections) == 0 {
		return noMatchesMarker, nil
	}
	return strings.Join(sections, "\n\n"), nil
}

func (rt *retriever) wordRange(req *RetrievalRequest) (string, error) {
	items := rt.targets(req)
	if len(items) == 0 {
		return "", fmt.Errorf("no item for link id %q", strings.Join(req.LinkIDs(), ","))
	}

	item := items[0]
	words := item.Words()
	start := req.StartWord
	end := req.EndWord
	if start < 0 {
		start = 0
	}
	if end <= 0 || end > len(words) {
		end = len(words)
	}
	if start >= end {
		return noMatchesMarker, nil
	}
	return fmt.Sprintf("words %d-%d of %s:\n%s",
		start, end, item.LinkID, strings.Join(words[start:end], " ")), nil
}

func (rt *retriever) keyword(req *RetrievalRequest) (string, error) {
	if strings.EqualFold(req.ContentType, "comments") {
		return rt.commentKeyword(req), nil
	}
	body := rt.keywordSearch(req.Keywords, req.LinkIDs(), req.ContextWindow)
	if body == "" {
		return noMatchesMarker, nil
	}
	return body, nil
}

// commentKeyword returns matching comments ranked by engagement.
func (rt *retriever) commentKeyword(req *RetrievalRequest) string {
	var matched []corpus.Comment
	for _, item := range rt.targets(req) {
		for _, c := range item.Comments {
			if len(req.Keywords) == 0 || containsAny(strings.ToLower(c.Text), req.Keywords) {
				matched = append(matched, c)
			}
		}
	}
	if len(matched) == 0 {
		return noMatchesMarker
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Engagement() > matched[j].Engagement()
	})
	return renderComments(matched, rt.cfg.CommentLimit)
}

// keywordSearch renders word windows around keyword matches in the targeted
// transcripts. Shared by keyword requests and the semantic fallback path.
func (rt *retriever) keywordSearch(keywords []string, linkIDs []string, contextWords int) string {
	if len(keywords) == 0 {
		return ""
	}
	if contextWords <= 0 {
		contextWords = rt.cfg.KeywordContextWords
	}

	items := rt.batch.Items
	if len(linkIDs) > 0 {
		items = nil
		for _, id := range linkIDs {
			if item := rt.batch.Item(id); item != nil {
				items = append(items, item)
			}
		}
	}

	var sections []string
	for _, item := range items {
		words := item.Words()
		ranges := matchRanges(words, keywords, contextWords)
		if len(ranges) == 0 {
			continue
		}
		var snippets []string
		for _, r := range ranges {
			snippets = append(snippets, "... "+strings.Join(words[r.Start:r.End], " ")+" ...")
		}
		sections = append(sections, fmt.Sprintf("matches in %s:\n%s",
			item.LinkID, strings.Join(snippets, "\n")))
	}
	return strings.Join(sections, "\n\n")
}

func (rt *retriever) semantic(ctx context.Context, stepID int, req *RetrievalRequest, tel *StepTelemetry, stats *resolveStats) (string, error) {
	if rt.cfg.search == nil {
		return rt.semanticFallback(req), nil
	}
	if rt.cfg.VectorMaxRounds > 0 && rt.vectorRounds[stepID] > rt.cfg.VectorMaxRounds {
		rt.log.Warn("semantic round cap reached, demoting to keyword",
			"step", stepID, "rounds", rt.vectorRounds[stepID])
		return rt.semanticFallback(req), nil
	}

	query := &vector.Query{
		Text:       req.Query,
		TopK:       req.TopK,
		LinkIDs:    req.LinkIDs(),
		ChunkTypes: req.ContentTypes,
	}

	stats.vectorQueries++
	started := time.Now()
	results, err := rt.cfg.search.Search(ctx, query)
	latency := time.Since(started)
	if err != nil {
		tel.ObserveVector(0, latency, 0)
		rt.log.Warn("semantic search failed, demoting to keyword",
			"step", stepID, "error", err)
		return rt.semanticFallback(req), nil
	}

	results = rt.filterSeenChunks(stepID, results)

	if rt.cfg.reranker != nil && len(results) > 1 {
		reranked, rerr := rt.cfg.reranker.Rerank(ctx, results)
		if rerr != nil {
			rt.log.Warn("reranker failed, keeping backend order",
				"step", stepID, "error", rerr)
		} else {
			results = reranked
		}
	}

	var best float32
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
	}
	tel.ObserveVector(len(results), latency, best)

	if len(results) == 0 {
		return rt.semanticFallback(req), nil
	}

	stats.vectorHits += len(results)
	for _, r := range results {
		stats.addSource(r.LinkID)
	}
	return renderVectorResults(results), nil
}

// semanticFallback demotes a semantic request to keyword search over its
// fallback keywords (or query terms), per the degraded-backend contract.
func (rt *retriever) semanticFallback(req *RetrievalRequest) string {
	keywords := req.FallbackKeywords
	if len(keywords) == 0 {
		keywords = strings.Fields(req.Query)
	}
	body := rt.keywordSearch(keywords, req.LinkIDs(), rt.cfg.KeywordContextWords)
	if body == "" {
		return noMatchesMarker
	}
	return body
}

// filterSeenChunks drops chunks already delivered to this step and records
// the survivors.
func (rt *retriever) filterSeenChunks(stepID int, results []*vector.Result) []*vector.Result {
	seen, ok := rt.seenChunks[stepID]
	if !ok {
		seen = make(map[string]struct{})
		rt.seenChunks[stepID] = seen
	}
	var fresh []*vector.Result
	for _, r := range results {
		if _, dup := seen[r.ChunkID]; dup {
			continue
		}
		seen[r.ChunkID] = struct{}{}
		fresh = append(fresh, r)
	}
	return fresh
}

// renderVectorResults groups hits per link id with score and snippet bullets.
func renderVectorResults(results []*vector.Result) string {
	order := make([]string, 0)
	grouped := make(map[string][]*vector.Result)
	for _, r := range results {
		if _, ok := grouped[r.LinkID]; !ok {
			order = append(order, r.LinkID)
		}
		grouped[r.LinkID] = append(grouped[r.LinkID], r)
	}

	var sections []string
	for _, linkID := range order {
		var bullets []string
		for _, r := range grouped[linkID] {
			bullets = append(bullets, fmt.Sprintf("  - (score=%.2f) %s", r.Score, clipText(r.Preview, snippetChars)))
		}
		sections = append(sections, linkID+":\n"+strings.Join(bullets, "\n"))
	}
	return strings.Join(sections, "\n")
}

func renderComments(comments []corpus.Comment, limit int) string {
	if len(comments) == 0 {
		return ""
	}
	sorted := append([]corpus.Comment(nil), comments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Engagement() > sorted[j].Engagement()
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	var lines []string
	for _, c := range sorted {
		lines = append(lines, fmt.Sprintf("- (likes=%d, replies=%d) %s", c.Likes, c.Replies, c.Text))
	}
	return strings.Join(lines, "\n")
}

type wordRangeSpan struct {
	Start int
	End   int
}

// matchRanges finds word windows around keyword matches, merging overlaps
// and capping the count per item.
func matchRanges(words []string, keywords []string, contextWords int) []wordRangeSpan {
	lowered := make([]string, len(words))
	for i, w := range words {
		lowered[i] = strings.ToLower(w)
	}

	var spans []wordRangeSpan
	for _, keyword := range keywords {
		tokens := strings.Fields(strings.ToLower(keyword))
		if len(tokens) == 0 {
			continue
		}
		for i := 0; i+len(tokens) <= len(lowered); i++ {
			if !tokensMatchAt(lowered, tokens, i) {
				continue
			}
			start := max(0, i-contextWords)
			end := min(len(words), i+len(tokens)+contextWords)
			spans = append(spans, wordRangeSpan{Start: start, End: end})
		}
	}
	if len(spans) == 0 {
		return nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
	merged := []wordRangeSpan{spans[0]}
	for _, span := range spans[1:] {
		last := &merged[len(merged)-1]
		if span.Start <= last.End {
			if span.End > last.End {
				last.End = span.End
			}
			continue
		}
		merged = append(merged, span)
	}
	if len(merged) > maxRangesPerItem {
		merged = merged[:maxRangesPerItem]
	}
	return merged
}

func tokensMatchAt(lowered, tokens []string, pos int) bool {
	for j, token := range tokens {
		if !strings.Contains(lowered[pos+j], token) {
			return false
		}
	}
	return true
}

func containsAny(haystack string, keywords []string) bool {
	for _, keyword := range keywords {
		if keyword == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

func splitParagraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) <= 1 && text != "" {
		// unsegmented transcripts: fall back to sentence-ish spans
		out = nil
		for _, p := range strings.SplitAfter(text, ". ") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func sliceAround(text string, offset, window int) string {
	if text == "" {
		return ""
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	half := window / 2
	start := max(0, offset-half)
	end := min(len(text), offset+half)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end > start && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	return strings.TrimSpace(text[start:end])
}

// clipText caps a block at max bytes, backing up so a multibyte rune is
// never cut in the middle.
func clipText(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
