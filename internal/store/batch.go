package store

import (
	"iter"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
)

// Batch collects the changes of one scan pass. Commit applies chapter
// upserts first, then content upserts, then chapter deletions, so a content
// never references a chapter that is not stored.
type Batch struct {
	Chapters       []*domain.Chapter
	Contents       []*domain.BookContent
	DeleteChapters []string
}

// UpsertChapter adds or replaces a chapter.
func (b *Batch) UpsertChapter(ch *domain.Chapter) {
	b.Chapters = append(b.Chapters, ch)
}

// UpsertContent adds or replaces a book content.
func (b *Batch) UpsertContent(bc *domain.BookContent) {
	b.Contents = append(b.Contents, bc)
}

// DeleteChapter removes a chapter that no content references any more.
func (b *Batch) DeleteChapter(id string) {
	b.DeleteChapters = append(b.DeleteChapters, id)
}

// Empty reports whether committing b would change nothing.
func (b *Batch) Empty() bool {
	return b == nil || len(b.Chapters) == 0 && len(b.Contents) == 0 && len(b.DeleteChapters) == 0
}

// Len returns the number of operations in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Chapters) + len(b.Contents) + len(b.DeleteChapters)
}

// checkDeletions rejects deleting a chapter that one of contents still
// references. contents yields the book contents as they are once the batch
// is applied. The SQLite catalog enforces the same rule with a foreign key.
func checkDeletions(deletes []string, contents iter.Seq[*domain.BookContent]) error {
	if len(deletes) == 0 {
		return nil
	}
	deleted := make(map[string]bool, len(deletes))
	for _, id := range deletes {
		deleted[id] = true
	}
	for bc := range contents {
		for _, id := range bc.Chapters {
			if deleted[id] {
				return errors.Wrapf(errors.ErrCommit, errors.CodeCommit,
					"chapter %s is still referenced by book %s", id, bc.ID)
			}
		}
	}
	return nil
}
