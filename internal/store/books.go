package store

import (
	"context"
	"fmt"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

// LoadBooks assembles every book of the catalog. Inactive books are only
// included when includeInactive is set.
func LoadBooks(ctx context.Context, cat Catalog, includeInactive bool) ([]*domain.Book, error) {
	contents, err := cat.AllBookContents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load book contents: %w", err)
	}
	chapters, err := chapterIndex(ctx, cat)
	if err != nil {
		return nil, err
	}

	books := make([]*domain.Book, 0, len(contents))
	for _, bc := range contents {
		if !bc.IsActive && !includeInactive {
			continue
		}
		books = append(books, domain.NewBook(*bc, chapters))
	}
	return books, nil
}

// LoadBook assembles the book with the given id.
func LoadBook(ctx context.Context, cat Catalog, id string) (*domain.Book, error) {
	bc, err := cat.GetBookContent(ctx, id)
	if err != nil {
		return nil, err
	}
	chapters, err := chapterIndex(ctx, cat)
	if err != nil {
		return nil, err
	}
	return domain.NewBook(*bc, chapters), nil
}

func chapterIndex(ctx context.Context, cat Catalog) (map[string]*domain.Chapter, error) {
	chapters, err := cat.AllChapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chapters: %w", err)
	}
	m := make(map[string]*domain.Chapter, len(chapters))
	for _, ch := range chapters {
		m[ch.ID] = ch
	}
	return m, nil
}
