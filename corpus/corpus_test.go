package corpus

import "testing"

func TestCommentEngagement(t *testing.T) {
	c := Comment{Likes: 10, Replies: 4}
	if got := c.Engagement(); got != 12 {
		t.Fatalf("expected engagement 12, got %v", got)
	}
}

func TestItemWords(t *testing.T) {
	item := &Item{Transcript: "  one two\nthree  "}
	if got := item.WordCount(); got != 3 {
		t.Fatalf("expected 3 words, got %d", got)
	}
}

func TestItemMarkerTypes(t *testing.T) {
	item := &Item{Markers: []Marker{
		{Type: "chapter", Label: "Intro"},
		{Type: "chapter", Label: "Outro"},
		{Type: "timestamp", Label: "12:00"},
	}}
	types := item.MarkerTypes()
	if len(types) != 2 || types[0] != "chapter" || types[1] != "timestamp" {
		t.Fatalf("expected deduped types in order, got %v", types)
	}
}

func TestFindMarker(t *testing.T) {
	item := &Item{Markers: []Marker{
		{Type: "chapter", Label: "Pricing Deep Dive", Offset: 120},
	}}

	if m := item.FindMarker("pricing"); m == nil || m.Offset != 120 {
		t.Fatalf("expected case-insensitive substring match, got %v", m)
	}
	if m := item.FindMarker("nonexistent"); m != nil {
		t.Fatalf("expected nil for missing marker, got %v", m)
	}
	if m := item.FindMarker("  "); m != nil {
		t.Fatalf("expected nil for blank label, got %v", m)
	}
}

func TestBatchLookup(t *testing.T) {
	batch := NewBatch(
		&Item{LinkID: "a", Transcript: "one two"},
		nil,
		&Item{LinkID: "b"},
	)

	if len(batch.Items) != 2 {
		t.Fatalf("expected nil items dropped, got %d", len(batch.Items))
	}
	if batch.Item("a") == nil || batch.Item("missing") != nil {
		t.Fatalf("item lookup broken")
	}
	if got := batch.TotalWords(); got != 2 {
		t.Fatalf("expected 2 total words, got %d", got)
	}
	if !batch.HasTranscripts() {
		t.Fatalf("expected transcripts present")
	}
	ids := batch.LinkIDs()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected link ids %v", ids)
	}
}

func TestBatchWithoutTranscripts(t *testing.T) {
	batch := NewBatch(&Item{LinkID: "c", Comments: []Comment{{Text: "only comments"}}})
	if batch.HasTranscripts() {
		t.Fatalf("expected no transcripts")
	}
}
