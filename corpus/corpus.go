// Package corpus models the read-only source material a research plan runs
// against: scraped transcripts, comment threads, and their markers.
package corpus

import "strings"

// Comment is one entry of a comment thread attached to an item.
type Comment struct {
	ID      string `json:"id,omitempty"`
	Author  string `json:"author,omitempty"`
	Text    string `json:"text"`
	Likes   int    `json:"likes,omitempty"`
	Replies int    `json:"replies,omitempty"`
}

// Engagement scores a comment for ranking; replies weigh half a like.
func (c *Comment) Engagement() float64 {
	return float64(c.Likes) + float64(c.Replies)/2
}

// Marker is a named anchor inside an item's transcript (chapter heading,
// timestamp, speaker change). Offset is a character offset into Transcript.
type Marker struct {
	Type   string `json:"type"`
	Label  string `json:"label"`
	Offset int    `json:"offset"`
}

// Item is one scraped source. Items are read-only inputs owned by the
// session/data-loading collaborator.
type Item struct {
	LinkID      string         `json:"link_id"`
	Source      string         `json:"source,omitempty"`
	Title       string         `json:"title,omitempty"`
	Transcript  string         `json:"transcript,omitempty"`
	Description string         `json:"description,omitempty"`
	Comments    []Comment      `json:"comments,omitempty"`
	Markers     []Marker       `json:"markers,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Words returns the whitespace-tokenized transcript.
func (i *Item) Words() []string {
	return strings.Fields(i.Transcript)
}

// WordCount returns the transcript word count.
func (i *Item) WordCount() int {
	return len(i.Words())
}

// MarkerTypes returns the distinct marker types present on the item.
func (i *Item) MarkerTypes() []string {
	seen := make(map[string]struct{})
	var types []string
	for _, m := range i.Markers {
		if _, ok := seen[m.Type]; ok {
			continue
		}
		seen[m.Type] = struct{}{}
		types = append(types, m.Type)
	}
	return types
}

// FindMarker returns the first marker whose label contains the given text,
// case-insensitive, or nil.
func (i *Item) FindMarker(label string) *Marker {
	needle := strings.ToLower(strings.TrimSpace(label))
	if needle == "" {
		return nil
	}
	for idx := range i.Markers {
		if strings.Contains(strings.ToLower(i.Markers[idx].Label), needle) {
			return &i.Markers[idx]
		}
	}
	return nil
}

// Batch is the set of corpus items one plan executes against.
type Batch struct {
	Items []*Item
}

// NewBatch wraps items into a batch, dropping nils.
func NewBatch(items ...*Item) *Batch {
	b := &Batch{}
	for _, item := range items {
		if item != nil {
			b.Items = append(b.Items, item)
		}
	}
	return b
}

// Item looks up an item by link id; returns nil when absent.
func (b *Batch) Item(linkID string) *Item {
	for _, item := range b.Items {
		if item.LinkID == linkID {
			return item
		}
	}
	return nil
}

// LinkIDs returns the link ids of all items in batch order.
func (b *Batch) LinkIDs() []string {
	ids := make([]string, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.LinkID)
	}
	return ids
}

// TotalWords sums the transcript word counts of the batch.
func (b *Batch) TotalWords() int {
	total := 0
	for _, item := range b.Items {
		total += item.WordCount()
	}
	return total
}

// HasTranscripts reports whether any item carries transcript text.
func (b *Batch) HasTranscripts() bool {
	for _, item := range b.Items {
		if strings.TrimSpace(item.Transcript) != "" {
			return true
		}
	}
	return false
}
