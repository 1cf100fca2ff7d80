package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/notify"
	"github.com/voiceapp/voice-scanner/internal/store"
)

// Indexer keeps an Index in step with the catalog.
type Indexer struct {
	index   *Index
	catalog store.Catalog
	logger  *slog.Logger
}

// NewIndexer creates an indexer writing catalog books into index.
func NewIndexer(index *Index, catalog store.Catalog, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Indexer{index: index, catalog: catalog, logger: logger}
}

// Reindex replaces the index content with every book of the catalog.
func (x *Indexer) Reindex(ctx context.Context) error {
	books, err := store.LoadBooks(ctx, x.catalog, true)
	if err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	if err := x.index.Rebuild(); err != nil {
		return err
	}

	docs := make([]*Document, len(books))
	for i, b := range books {
		docs[i] = BookToDocument(b)
	}
	if err := x.index.IndexDocuments(docs, nil); err != nil {
		return fmt.Errorf("index books: %w", err)
	}
	x.logger.Info("search index rebuilt", "books", len(docs))
	return nil
}

// Apply reindexes the books named by a change signal. Books that no longer
// exist are removed from the index.
func (x *Indexer) Apply(ctx context.Context, ev notify.CatalogChanged) error {
	var (
		docs    []*Document
		deletes []string
	)
	for _, id := range ev.Books {
		b, err := store.LoadBook(ctx, x.catalog, id)
		switch {
		case errors.Is(err, errors.ErrNotFound):
			deletes = append(deletes, id)
		case err != nil:
			return fmt.Errorf("load book %s: %w", id, err)
		default:
			docs = append(docs, BookToDocument(b))
		}
	}
	if err := x.index.IndexDocuments(docs, deletes); err != nil {
		return fmt.Errorf("index books: %w", err)
	}
	x.logger.Debug("search index updated", "scan_id", ev.ScanID, "indexed", len(docs), "deleted", len(deletes))
	return nil
}

// Run applies every change received on changes until ctx is done or the
// channel closes. A failed update falls back to a full reindex.
func (x *Indexer) Run(ctx context.Context, changes <-chan notify.CatalogChanged) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			if err := x.Apply(ctx, ev); err != nil {
				x.logger.Warn("incremental search update failed, reindexing", "error", err)
				if err := x.Reindex(ctx); err != nil {
					x.logger.Error("search reindex failed", "error", err)
				}
			}
		}
	}
}
