// Package domain contains the catalog entities produced by the library scanner.
package domain

import (
	"fmt"
	"slices"
	"time"
)

// ChapterMark is a navigable point inside a chapter's audio.
type ChapterMark struct {
	Name    string `json:"name"`
	StartMs uint64 `json:"start_ms"`
}

// Chapter is one audio file of a book. IDs are derived from file identity,
// so the same file maps to the same chapter on every scan.
type Chapter struct {
	FileLastModified time.Time     `json:"file_last_modified"`
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	URI              string        `json:"uri"`
	FileKey          string        `json:"file_key,omitempty"` // device:inode, empty when unknown
	Marks            []ChapterMark `json:"marks,omitempty"`
	DurationMs       uint64        `json:"duration_ms"`
	FileSize         int64         `json:"file_size"`
	// Degraded marks a chapter whose file could not be parsed. It is parsed
	// again on the next scan even when the file is unchanged.
	Degraded bool `json:"degraded,omitempty"`
}

// Unchanged reports whether the chapter was parsed from a file with the given
// modification time and size.
func (c *Chapter) Unchanged(lastModified time.Time, size int64) bool {
	return c.FileLastModified.Equal(lastModified) && c.FileSize == size
}

// Reusable reports whether the chapter's metadata can stand in for parsing
// a file with the given modification time and size.
func (c *Chapter) Reusable(lastModified time.Time, size int64) bool {
	return !c.Degraded && c.Unchanged(lastModified, size)
}

// Equal reports whether two chapters carry identical persisted state.
func (c *Chapter) Equal(other *Chapter) bool {
	return c.ID == other.ID &&
		c.Name == other.Name &&
		c.URI == other.URI &&
		c.FileKey == other.FileKey &&
		c.DurationMs == other.DurationMs &&
		c.FileSize == other.FileSize &&
		c.Degraded == other.Degraded &&
		c.FileLastModified.Equal(other.FileLastModified) &&
		slices.Equal(c.Marks, other.Marks)
}

// BookContent is the persisted, user-owned state of a book.
type BookContent struct {
	AddedAt           time.Time `json:"added_at"`
	ID                string    `json:"id"`
	RootID            string    `json:"root_id"`
	URI               string    `json:"uri"`
	Name              string    `json:"name"`
	Author            string    `json:"author,omitempty"`
	CurrentChapter    string    `json:"current_chapter"`
	Chapters          []string  `json:"chapters"`
	PositionInChapter uint64    `json:"position_in_chapter"`
	IsActive          bool      `json:"is_active"`
}

// Equal reports whether two contents carry identical persisted state.
func (bc *BookContent) Equal(other *BookContent) bool {
	return bc.ID == other.ID &&
		bc.RootID == other.RootID &&
		bc.URI == other.URI &&
		bc.Name == other.Name &&
		bc.Author == other.Author &&
		bc.CurrentChapter == other.CurrentChapter &&
		bc.PositionInChapter == other.PositionInChapter &&
		bc.IsActive == other.IsActive &&
		bc.AddedAt.Equal(other.AddedAt) &&
		slices.Equal(bc.Chapters, other.Chapters)
}

// Validate checks the content invariants: the current chapter is one of the
// chapters and the position lies inside it.
func (bc *BookContent) Validate(chapters map[string]*Chapter) error {
	if len(bc.Chapters) == 0 {
		return fmt.Errorf("book %s has no chapters", bc.ID)
	}
	if !slices.Contains(bc.Chapters, bc.CurrentChapter) {
		return fmt.Errorf("book %s: current chapter %s is not part of the book", bc.ID, bc.CurrentChapter)
	}
	if ch, ok := chapters[bc.CurrentChapter]; ok && ch.DurationMs > 0 && bc.PositionInChapter >= ch.DurationMs {
		return fmt.Errorf("book %s: position %d outside chapter of %d ms", bc.ID, bc.PositionInChapter, ch.DurationMs)
	}
	return nil
}

// Book is a BookContent with its chapters resolved. It is assembled on read
// and never persisted.
type Book struct {
	Content  BookContent `json:"content"`
	Chapters []Chapter   `json:"chapters"`
}

// NewBook resolves the chapters of content from the given chapter index.
// Chapters missing from the index are skipped.
func NewBook(content BookContent, chapters map[string]*Chapter) *Book {
	b := &Book{Content: content, Chapters: make([]Chapter, 0, len(content.Chapters))}
	for _, id := range content.Chapters {
		if ch, ok := chapters[id]; ok {
			b.Chapters = append(b.Chapters, *ch)
		}
	}
	return b
}

// DurationMs returns the total duration of all resolved chapters.
func (b *Book) DurationMs() uint64 {
	var total uint64
	for i := range b.Chapters {
		total += b.Chapters[i].DurationMs
	}
	return total
}

// CurrentChapter returns the chapter playback is positioned in.
func (b *Book) CurrentChapter() *Chapter {
	for i := range b.Chapters {
		if b.Chapters[i].ID == b.Content.CurrentChapter {
			return &b.Chapters[i]
		}
	}
	return nil
}
