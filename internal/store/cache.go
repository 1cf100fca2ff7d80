package store

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

// ChapterCache keeps every stored chapter in memory, keyed by id. The first
// call to Snapshot loads the catalog while holding a lock; afterwards
// readers only load an atomic pointer. Snapshots are immutable: Apply
// publishes a new map instead of editing the current one.
type ChapterCache struct {
	catalog Catalog

	mu   sync.Mutex
	snap atomic.Pointer[map[string]*domain.Chapter]
}

// NewChapterCache creates a cache over catalog. Nothing is loaded until the
// first Snapshot.
func NewChapterCache(catalog Catalog) *ChapterCache {
	return &ChapterCache{catalog: catalog}
}

// Snapshot returns the cached chapters. The returned map and its chapters
// must not be modified.
func (c *ChapterCache) Snapshot(ctx context.Context) (map[string]*domain.Chapter, error) {
	if m := c.snap.Load(); m != nil {
		return *m, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.snap.Load(); m != nil {
		return *m, nil
	}

	chapters, err := c.catalog.AllChapters(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]*domain.Chapter, len(chapters))
	for _, ch := range chapters {
		m[ch.ID] = ch
	}
	c.snap.Store(&m)
	return m, nil
}

// Apply publishes the effect of a committed batch. A cache that was never
// warmed stays cold.
func (c *ChapterCache) Apply(b *Batch) {
	if b.Empty() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.snap.Load()
	if old == nil {
		return
	}

	m := maps.Clone(*old)
	for _, ch := range b.Chapters {
		m[ch.ID] = ch
	}
	for _, id := range b.DeleteChapters {
		delete(m, id)
	}
	c.snap.Store(&m)
}

// Invalidate drops the cached chapters so the next Snapshot reloads them.
func (c *ChapterCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Store(nil)
}
