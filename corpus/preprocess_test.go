package corpus

import (
	"strings"
	"testing"
)

func TestCleanBasic(t *testing.T) {
	cleaned := CleanBasic("ﬁrst   line\x00 here\n\n\n\nsecond — line")
	if strings.Contains(cleaned, "\x00") {
		t.Fatalf("control characters must be removed: %q", cleaned)
	}
	if !strings.HasPrefix(cleaned, "first line") {
		t.Fatalf("expected ligature fixed and spaces collapsed: %q", cleaned)
	}
	if strings.Contains(cleaned, "\n\n\n") {
		t.Fatalf("newline runs must be collapsed: %q", cleaned)
	}
	if strings.Contains(cleaned, "—") {
		t.Fatalf("dash artifact must be normalized: %q", cleaned)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><body>
		<h1>Title</h1>
		<p>A paragraph.</p>
		<ul><li>point one</li></ul>
		<table><tr><th>a</th><th>b</th></tr><tr><td>1</td><td>2</td></tr></table>
	</body></html>`

	text, err := HTMLToText(html)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	for _, want := range []string{"# Title", "A paragraph.", "- point one", "| a | b |", "| 1 | 2 |"} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
}

func TestRemoveDuplicateParagraphs(t *testing.T) {
	text := "repeated paragraph\n\nunique paragraph\n\nrepeated paragraph"
	out := RemoveDuplicateParagraphs(text)
	if strings.Count(out, "repeated paragraph") != 1 {
		t.Fatalf("expected duplicate removed: %q", out)
	}
}

func TestRemoveWebNoise(t *testing.T) {
	text := "real content\nSubscribe to our newsletter today!\nmore content"
	out := RemoveWebNoise(text)
	if strings.Contains(strings.ToLower(out), "newsletter") {
		t.Fatalf("expected boilerplate removed: %q", out)
	}
	if !strings.Contains(out, "real content") || !strings.Contains(out, "more content") {
		t.Fatalf("expected real content kept: %q", out)
	}
}

func TestNormalizeItemExtractsHTML(t *testing.T) {
	item := &Item{
		LinkID:      "art-1",
		Transcript:  "<html><body><p>Article body text.</p></body></html>",
		Description: "plain description",
	}
	if err := NormalizeItem(item); err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if strings.Contains(item.Transcript, "<p>") {
		t.Fatalf("expected HTML stripped: %q", item.Transcript)
	}
	if !strings.Contains(item.Transcript, "Article body text.") {
		t.Fatalf("expected body text kept: %q", item.Transcript)
	}
	if item.Description != "plain description" {
		t.Fatalf("plain text must pass through: %q", item.Description)
	}
}
