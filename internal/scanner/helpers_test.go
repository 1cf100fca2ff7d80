package scanner

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/fsys"
	"github.com/voiceapp/voice-scanner/internal/store"
)

var discard = slog.New(slog.DiscardHandler)

// fakeFS is the OS provider with injectable failures.
type fakeFS struct {
	*fsys.OS
	mu       sync.Mutex
	failList map[string]error
	failOpen map[string]error
}

func newFakeFS() *fakeFS {
	return &fakeFS{
		OS:       fsys.NewOS(discard),
		failList: make(map[string]error),
		failOpen: make(map[string]error),
	}
}

func (f *fakeFS) ListChildren(ctx context.Context, location string) ([]fsys.Handle, error) {
	f.mu.Lock()
	err := f.failList[location]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.OS.ListChildren(ctx, location)
}

func (f *fakeFS) OpenRead(ctx context.Context, h fsys.Handle) (fsys.File, error) {
	f.mu.Lock()
	err := f.failOpen[h.URI]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.OS.OpenRead(ctx, h)
}

func (f *fakeFS) setListError(location string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failList, location)
		return
	}
	f.failList[location] = err
}

// fakeExtractor reads files written by writeAudio: one line of
// "title|album|artist|durationMs". A file starting with "corrupt" degrades.
type fakeExtractor struct {
	calls atomic.Int32
	// block, when set, is waited on before every extraction.
	block chan struct{}
}

func (e *fakeExtractor) Extract(ctx context.Context, r fsys.File, _ string) (*container.Metadata, error) {
	e.calls.Add(1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(data))
	if strings.HasPrefix(line, "corrupt") {
		return &container.Metadata{Format: container.FormatUnknown, Degraded: true}, nil
	}

	fields := strings.Split(line, "|")
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	duration, _ := strconv.ParseUint(fields[3], 10, 64)
	return &container.Metadata{
		Format:     container.FormatOgg,
		Title:      fields[0],
		Album:      fields[1],
		Artist:     fields[2],
		DurationMs: duration,
	}, nil
}

// writeAudio writes a file below dir with a fixed modification time.
func writeAudio(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	mtime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(p, mtime, mtime))
	return p
}

// flakyCatalog fails commits while commitErr is set and counts full
// chapter loads.
type flakyCatalog struct {
	store.Catalog
	mu        sync.Mutex
	commitErr error
	loads     atomic.Int32
}

func (c *flakyCatalog) AllChapters(ctx context.Context) ([]*domain.Chapter, error) {
	c.loads.Add(1)
	return c.Catalog.AllChapters(ctx)
}

func (c *flakyCatalog) Commit(ctx context.Context, b *store.Batch) error {
	c.mu.Lock()
	err := c.commitErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Catalog.Commit(ctx, b)
}

func (c *flakyCatalog) failCommits(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitErr = err
}

type testEnv struct {
	scanner   *Scanner
	store     *store.Store
	fs        *fakeFS
	extractor *fakeExtractor
}

func newTestEnv(t *testing.T, roots ...domain.Root) *testEnv {
	t.Helper()
	st, err := store.New("", discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{store: st, fs: newFakeFS(), extractor: &fakeExtractor{}}
	env.scanner = NewWithExtractor(st, env.fs, env.extractor, Config{Roots: roots, Workers: 2}, discard)
	t.Cleanup(env.scanner.Close)
	return env
}

func (e *testEnv) scan(t *testing.T) *ScanResult {
	t.Helper()
	result, err := e.scanner.Scan(t.Context(), ScanOptions{})
	require.NoError(t, err)
	return result
}

func (e *testEnv) books(t *testing.T) []*domain.Book {
	t.Helper()
	books, err := store.LoadBooks(t.Context(), e.store, true)
	require.NoError(t, err)
	return books
}

func bookNamed(books []*domain.Book, name string) *domain.Book {
	for _, b := range books {
		if b.Content.Name == name {
			return b
		}
	}
	return nil
}

// touch moves the modification time of p so the next pass parses it again.
func touch(t *testing.T, p string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(p, mtime, mtime))
}

// setPosition stores a playback position as the player would.
func (e *testEnv) setPosition(t *testing.T, bookID, chapterID string, position uint64) {
	t.Helper()
	bc, err := e.store.GetBookContent(t.Context(), bookID)
	require.NoError(t, err)
	bc.CurrentChapter = chapterID
	bc.PositionInChapter = position
	b := &store.Batch{}
	b.UpsertContent(bc)
	require.NoError(t, e.store.Commit(t.Context(), b))
}
