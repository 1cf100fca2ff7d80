package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/logger"
	"github.com/voiceapp/voice-scanner/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index next to the catalog.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.New(search.Options{
		DataPath: cfg.Catalog.DataPath,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{Index: index}, nil
}

// SearchIndexerHandle keeps the search index following catalog changes.
type SearchIndexerHandle struct {
	*search.Indexer
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexerHandle) Shutdown() error {
	h.cancel()
	<-h.done
	return nil
}

// ProvideSearchIndexer subscribes the index to the scanner's catalog
// changes. The index is rebuilt first when it does not match the catalog.
func ProvideSearchIndexer(i do.Injector) (*SearchIndexerHandle, error) {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	catalog := do.MustInvoke[*CatalogHandle](i)
	sc := do.MustInvoke[*ScannerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	indexer := search.NewIndexer(indexHandle.Index, catalog, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	changes := sc.SubscribeChanges(ctx)

	if err := reindexIfNeeded(ctx, indexHandle.Index, indexer, catalog, log); err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = indexer.Run(ctx, changes)
	}()

	return &SearchIndexerHandle{Indexer: indexer, cancel: cancel, done: done}, nil
}

// reindexIfNeeded rebuilds the index when its document count differs from
// the number of books in the catalog.
func reindexIfNeeded(ctx context.Context, index *search.Index, indexer *search.Indexer, catalog *CatalogHandle, log *logger.Logger) error {
	docCount, err := index.DocumentCount()
	if err != nil {
		return err
	}
	contents, err := catalog.AllBookContents(ctx)
	if err != nil {
		return err
	}
	if docCount == uint64(len(contents)) {
		return nil
	}

	log.Info("Search index out of date, reindexing", "documents", docCount, "books", len(contents))
	return indexer.Reindex(ctx)
}
