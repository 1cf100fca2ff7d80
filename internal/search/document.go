// Package search provides full-text search over the catalog using Bleve.
// Books are indexed with their chapter and chapter mark names, so a query
// finds a book by its title, its author or a chapter inside it.
package search

import (
	"github.com/voiceapp/voice-scanner/internal/domain"
)

// DocType represents the type of document in the index.
type DocType string

// DocTypeBook is the only document type indexed today.
const DocTypeBook DocType = "book"

// Document is the indexed form of a book.
type Document struct {
	ID     string  `json:"id"`
	Type   DocType `json:"type"`
	RootID string  `json:"root_id"`
	Name   string  `json:"name"`
	Author string  `json:"author,omitempty"`

	// Chapters holds chapter titles and the names of their chapter marks.
	Chapters []string `json:"chapters,omitempty"`

	DurationMs int64 `json:"duration_ms"`
	AddedAt    int64 `json:"added_at"` // Unix millis
	Active     bool  `json:"active"`
}

// ToMap converts the document to a map with the field names of the index
// mapping.
func (d *Document) ToMap() map[string]any {
	m := map[string]any{
		"id":          d.ID,
		"type":        string(d.Type),
		"root_id":     d.RootID,
		"name":        d.Name,
		"duration_ms": d.DurationMs,
		"added_at":    d.AddedAt,
		"active":      d.Active,
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if len(d.Chapters) > 0 {
		m["chapters"] = d.Chapters
	}
	return m
}

// BookToDocument converts a catalog book into its index document.
func BookToDocument(b *domain.Book) *Document {
	doc := &Document{
		ID:         b.Content.ID,
		Type:       DocTypeBook,
		RootID:     b.Content.RootID,
		Name:       b.Content.Name,
		Author:     b.Content.Author,
		DurationMs: int64(b.DurationMs()),
		AddedAt:    b.Content.AddedAt.UnixMilli(),
		Active:     b.Content.IsActive,
	}

	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			doc.Chapters = append(doc.Chapters, name)
		}
	}
	for _, ch := range b.Chapters {
		add(ch.Name)
		for _, mark := range ch.Marks {
			add(mark.Name)
		}
	}
	return doc
}
