// Package store defines the catalog persistence used by the library scanner
// and the Badger-backed implementation of it.
package store

import (
	"context"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

// Catalog is the persisted state the reconciler reads before a pass and
// writes once at the end of it.
type Catalog interface {
	// Lifecycle
	Close() error

	// Reads
	AllChapters(ctx context.Context) ([]*domain.Chapter, error)
	AllBookContents(ctx context.Context) ([]*domain.BookContent, error)
	GetBookContent(ctx context.Context, id string) (*domain.BookContent, error)

	// Commit applies b atomically. Either every change in the batch is
	// visible afterwards or none is.
	Commit(ctx context.Context, b *Batch) error
}
