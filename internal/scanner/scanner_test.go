package scanner

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/id"
)

func collectionRoot(t *testing.T) domain.Root {
	t.Helper()
	return domain.Root{ID: "lib", Path: t.TempDir(), Kind: domain.RootCollection}
}

func TestScanner_Scan_EmptyRoot(t *testing.T) {
	env := newTestEnv(t, collectionRoot(t))

	result := env.scan(t)

	assert.NotEmpty(t, result.ScanID)
	assert.Zero(t, result.Added)
	assert.False(t, result.Committed)
	assert.Empty(t, env.books(t))
	assert.Equal(t, StateIdle, env.scanner.State())
	assert.Same(t, result, env.scanner.LastResult())
}

func TestScanner_Scan_AddsBooks(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/10.ogg", "Ten|Dune|Frank Herbert|3000")
	writeAudio(t, root.Path, "Dune/2.ogg", "Two|Dune|Frank Herbert|2000")
	writeAudio(t, root.Path, "Dune/cover.jpg", "not audio")
	writeAudio(t, root.Path, "Untagged/a.ogg", "||")
	writeAudio(t, root.Path, "loose.ogg", "Loose||Someone|500")

	env := newTestEnv(t, root)
	var phases []ScanPhase
	result, err := env.scanner.Scan(t.Context(), ScanOptions{OnProgress: func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Files)
	assert.Equal(t, 3, result.Books)
	assert.Equal(t, 3, result.Added)
	assert.Equal(t, 4, result.Parsed)
	assert.True(t, result.Committed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []ScanPhase{PhaseWalking, PhaseGrouping, PhaseAnalyzing, PhaseMerging, PhaseCommitting, PhaseComplete}, phases)

	books := env.books(t)
	require.Len(t, books, 3)

	dune := bookNamed(books, "Dune")
	require.NotNil(t, dune)
	assert.Equal(t, id.Book("lib", "Dune"), dune.Content.ID)
	assert.Equal(t, "Frank Herbert", dune.Content.Author)
	assert.Equal(t, filepath.Join(root.Path, "Dune"), dune.Content.URI)
	assert.True(t, dune.Content.IsActive)
	require.Len(t, dune.Chapters, 2)
	assert.Equal(t, "Two", dune.Chapters[0].Name, "chapters follow natural order")
	assert.Equal(t, "Ten", dune.Chapters[1].Name)
	assert.Equal(t, dune.Chapters[0].ID, dune.Content.CurrentChapter)
	assert.Zero(t, dune.Content.PositionInChapter)
	assert.Equal(t, uint64(5000), dune.DurationMs())

	untagged := bookNamed(books, "Untagged")
	require.NotNil(t, untagged)
	require.Len(t, untagged.Chapters, 1)
	assert.Equal(t, "a", untagged.Chapters[0].Name, "untitled chapters are named after their file")

	loose := bookNamed(books, "loose")
	require.NotNil(t, loose)
	assert.Equal(t, "Someone", loose.Content.Author)
}

func TestScanner_Scan_IsIdempotent(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")
	writeAudio(t, root.Path, "Dune/2.ogg", "Two|Dune|Frank Herbert|2000")
	writeAudio(t, root.Path, "Emma/1.ogg", "One|Emma|Jane Austen|1000")

	env := newTestEnv(t, root)
	first := env.scan(t)
	require.Equal(t, 2, first.Added)
	before := env.books(t)
	calls := env.extractor.calls.Load()

	second := env.scan(t)

	assert.Zero(t, second.Parsed)
	assert.Equal(t, 3, second.Reused)
	assert.Zero(t, second.Added)
	assert.Zero(t, second.Updated)
	assert.Zero(t, second.Deactivated)
	assert.Zero(t, second.Pruned)
	assert.False(t, second.Committed)
	assert.Equal(t, calls, env.extractor.calls.Load())
	assert.Equal(t, before, env.books(t))
}

func TestScanner_Scan_PreservesPosition(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")
	second := writeAudio(t, root.Path, "Dune/2.ogg", "Two|Dune|Frank Herbert|2000")

	env := newTestEnv(t, root)
	env.scan(t)

	bookID := id.Book("lib", "Dune")
	ch2 := id.Chapter("lib", "Dune/2.ogg")
	env.setPosition(t, bookID, ch2, 1500)

	t.Run("added chapter keeps position", func(t *testing.T) {
		writeAudio(t, root.Path, "Dune/3.ogg", "Three|Dune|Frank Herbert|3000")
		result := env.scan(t)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 1, result.Parsed)

		bc, err := env.store.GetBookContent(t.Context(), bookID)
		require.NoError(t, err)
		assert.Len(t, bc.Chapters, 3)
		assert.Equal(t, ch2, bc.CurrentChapter)
		assert.Equal(t, uint64(1500), bc.PositionInChapter)
	})

	t.Run("shortened chapter clamps position", func(t *testing.T) {
		require.NoError(t, os.WriteFile(second, []byte("Two|Dune|Frank Herbert|1200"), 0o644))
		touch(t, second, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
		result := env.scan(t)
		assert.Equal(t, 1, result.Parsed)

		bc, err := env.store.GetBookContent(t.Context(), bookID)
		require.NoError(t, err)
		assert.Equal(t, ch2, bc.CurrentChapter)
		assert.Equal(t, uint64(1199), bc.PositionInChapter)
	})

	t.Run("removed chapter resets position", func(t *testing.T) {
		require.NoError(t, os.Remove(second))
		result := env.scan(t)
		assert.Equal(t, 1, result.Updated)
		assert.Equal(t, 1, result.Pruned)

		bc, err := env.store.GetBookContent(t.Context(), bookID)
		require.NoError(t, err)
		assert.Equal(t, id.Chapter("lib", "Dune/1.ogg"), bc.CurrentChapter)
		assert.Zero(t, bc.PositionInChapter)

		chapters, err := env.store.AllChapters(t.Context())
		require.NoError(t, err)
		assert.Len(t, chapters, 2)
	})
}

func TestScanner_Scan_DeactivatesRemovedBooks(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")
	writeAudio(t, root.Path, "Emma/1.ogg", "One|Emma|Jane Austen|1000")

	env := newTestEnv(t, root)
	env.scan(t)
	emmaID := id.Book("lib", "Emma")
	env.setPosition(t, emmaID, id.Chapter("lib", "Emma/1.ogg"), 400)

	require.NoError(t, os.RemoveAll(filepath.Join(root.Path, "Emma")))
	result := env.scan(t)
	assert.Equal(t, 1, result.Deactivated)
	assert.Equal(t, []string{emmaID}, result.Changed)

	emma, err := env.store.GetBookContent(t.Context(), emmaID)
	require.NoError(t, err)
	assert.False(t, emma.IsActive)
	assert.Equal(t, uint64(400), emma.PositionInChapter, "deactivation keeps user state")

	writeAudio(t, root.Path, "Emma/1.ogg", "One|Emma|Jane Austen|1000")
	result = env.scan(t)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Parsed, "inactive books keep their chapters")

	emma, err = env.store.GetBookContent(t.Context(), emmaID)
	require.NoError(t, err)
	assert.True(t, emma.IsActive)
	assert.Equal(t, uint64(400), emma.PositionInChapter)
}

func TestScanner_Scan_DetectsRenames(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		root := domain.Root{ID: "lib", Path: t.TempDir(), Kind: domain.RootSingleFolder}
		writeAudio(t, root.Path, "01.ogg", "One|Book|Author|1000")
		writeAudio(t, root.Path, "02.ogg", "Two|Book|Author|2000")

		env := newTestEnv(t, root)
		env.scan(t)
		bookID := id.Book("lib", ".")
		env.setPosition(t, bookID, id.Chapter("lib", "02.ogg"), 700)

		require.NoError(t, os.Rename(filepath.Join(root.Path, "02.ogg"), filepath.Join(root.Path, "02 - renamed.ogg")))
		result := env.scan(t)

		assert.Zero(t, result.Parsed)
		assert.Equal(t, 1, result.Renamed)
		assert.Equal(t, 1, result.Pruned)

		bc, err := env.store.GetBookContent(t.Context(), bookID)
		require.NoError(t, err)
		renamed := id.Chapter("lib", "02 - renamed.ogg")
		assert.Equal(t, []string{id.Chapter("lib", "01.ogg"), renamed}, bc.Chapters)
		assert.Equal(t, renamed, bc.CurrentChapter)
		assert.Equal(t, uint64(700), bc.PositionInChapter)
	})

	t.Run("folder", func(t *testing.T) {
		root := collectionRoot(t)
		writeAudio(t, root.Path, "Old/1.ogg", "One|Book|Author|1000")

		env := newTestEnv(t, root)
		env.scan(t)
		bookID := id.Book("lib", "Old")
		env.setPosition(t, bookID, id.Chapter("lib", "Old/1.ogg"), 250)

		require.NoError(t, os.Rename(filepath.Join(root.Path, "Old"), filepath.Join(root.Path, "New")))
		result := env.scan(t)

		assert.Zero(t, result.Parsed)
		assert.Zero(t, result.Added)
		assert.Zero(t, result.Deactivated)
		assert.Equal(t, 1, result.Updated)

		books := env.books(t)
		require.Len(t, books, 1)
		bc := books[0].Content
		assert.Equal(t, bookID, bc.ID, "book identity survives the rename")
		assert.Equal(t, filepath.Join(root.Path, "New"), bc.URI)
		assert.Equal(t, id.Chapter("lib", "New/1.ogg"), bc.CurrentChapter)
		assert.Equal(t, uint64(250), bc.PositionInChapter)
	})
}

func TestScanner_Scan_DegradedFilesAreRetried(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Book/1.ogg", "One|Book|Author|1000")
	writeAudio(t, root.Path, "Book/2.ogg", "corrupt")

	env := newTestEnv(t, root)
	first := env.scan(t)
	assert.Equal(t, 1, first.Degraded)

	books := env.books(t)
	require.Len(t, books, 1)
	require.Len(t, books[0].Chapters, 2, "degraded files still become chapters")
	assert.True(t, books[0].Chapters[1].Degraded)
	assert.Equal(t, "2", books[0].Chapters[1].Name)

	second := env.scan(t)
	assert.Equal(t, 1, second.Parsed)
	assert.Equal(t, 1, second.Degraded)
	assert.False(t, second.Committed)
}

func TestScanner_Scan_FailingRootKeepsBooks(t *testing.T) {
	good := collectionRoot(t)
	bad := domain.Root{ID: "other", Path: t.TempDir(), Kind: domain.RootCollection}
	writeAudio(t, good.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")
	writeAudio(t, bad.Path, "Emma/1.ogg", "One|Emma|Jane Austen|1000")

	env := newTestEnv(t, good, bad)
	env.scan(t)
	require.Len(t, env.books(t), 2)

	env.fs.setListError(bad.Path, syscall.EIO)
	writeAudio(t, good.Path, "Dune/2.ogg", "Two|Dune|Frank Herbert|1000")
	result := env.scan(t)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "other", result.Errors[0].RootID)
	assert.Equal(t, PhaseWalking, result.Errors[0].Phase)
	assert.Equal(t, errors.CodeEnumeration, errors.CodeOf(result.Errors[0].Err))
	assert.Zero(t, result.Deactivated)
	assert.Equal(t, 1, result.Updated)

	emma, err := env.store.GetBookContent(t.Context(), id.Book("other", "Emma"))
	require.NoError(t, err)
	assert.True(t, emma.IsActive)
	chapters, err := env.store.AllChapters(t.Context())
	require.NoError(t, err)
	assert.Len(t, chapters, 3, "chapters of the failing root are not pruned")
}

func TestScanner_Scan_MissingRootDeactivates(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")

	env := newTestEnv(t, root)
	env.scan(t)

	require.NoError(t, os.RemoveAll(root.Path))
	result := env.scan(t)

	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.Deactivated)
}

func TestScanner_Scan_OpenFailureIsReported(t *testing.T) {
	root := collectionRoot(t)
	p := writeAudio(t, root.Path, "Book/1.ogg", "One|Book|Author|1000")

	env := newTestEnv(t, root)
	env.fs.failOpen[p] = os.ErrPermission
	result := env.scan(t)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, PhaseAnalyzing, result.Errors[0].Phase)
	assert.Equal(t, p, result.Errors[0].Path)
	assert.Equal(t, 1, result.Degraded)
	assert.Equal(t, 1, result.Added, "unreadable files are kept as degraded chapters")
}

func TestScanner_Scan_Exclusive(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Book/1.ogg", "One|Book|Author|1000")

	env := newTestEnv(t, root)
	env.extractor.block = make(chan struct{})

	type outcome struct {
		result *ScanResult
		err    error
	}
	run := func(opts ScanOptions) <-chan outcome {
		ch := make(chan outcome, 1)
		go func() {
			r, err := env.scanner.Scan(t.Context(), opts)
			ch <- outcome{r, err}
		}()
		return ch
	}

	first := run(ScanOptions{})
	require.Eventually(t, func() bool { return env.extractor.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateScanning, env.scanner.State())

	_, err := env.scanner.Scan(t.Context(), ScanOptions{})
	require.ErrorIs(t, err, errors.ErrScanInProgress)

	waiting := run(ScanOptions{Wait: true})
	close(env.extractor.block)

	out := <-first
	require.NoError(t, out.err)
	assert.Equal(t, 1, out.result.Added)

	out = <-waiting
	require.NoError(t, out.err)
	assert.Zero(t, out.result.Added, "the queued pass sees the committed catalog")
	assert.Equal(t, StateIdle, env.scanner.State())
}

func TestScanner_Scan_Restart(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Book/1.ogg", "One|Book|Author|1000")

	env := newTestEnv(t, root)
	env.extractor.block = make(chan struct{})

	firstErr := make(chan error, 1)
	go func() {
		_, err := env.scanner.Scan(t.Context(), ScanOptions{})
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return env.extractor.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	restarted := make(chan *ScanResult, 1)
	go func() {
		r, err := env.scanner.Scan(t.Context(), ScanOptions{RestartIfScanning: true})
		assert.NoError(t, err)
		restarted <- r
	}()

	err := <-firstErr
	require.ErrorIs(t, err, ErrRestarted)
	assert.Empty(t, env.books(t), "a canceled pass commits nothing")

	require.Eventually(t, func() bool { return env.extractor.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(env.extractor.block)

	r := <-restarted
	require.NotNil(t, r)
	assert.Equal(t, 1, r.Added)
}

func TestScanner_Scan_LockedByAnotherProcess(t *testing.T) {
	root := collectionRoot(t)
	lockPath := filepath.Join(t.TempDir(), "scan.lock")

	env := newTestEnv(t, root)
	env.scanner.lock = flock.New(lockPath)

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = env.scanner.Scan(t.Context(), ScanOptions{})
	assert.ErrorIs(t, err, errors.ErrScanInProgress)
	assert.Equal(t, StateIdle, env.scanner.State())

	require.NoError(t, other.Unlock())
	_, err = env.scanner.Scan(t.Context(), ScanOptions{})
	assert.NoError(t, err)
}

func TestScanner_Scan_WaitsForLockOfAnotherProcess(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")
	lockPath := filepath.Join(t.TempDir(), "scan.lock")

	env := newTestEnv(t, root)
	env.scanner.lock = flock.New(lockPath)

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	done := make(chan error, 1)
	go func() {
		_, err := env.scanner.Scan(t.Context(), ScanOptions{Wait: true})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("scan finished while the lock was held: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	require.NoError(t, other.Unlock())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not run after the lock was released")
	}
	assert.Len(t, env.books(t), 1)
}

func TestScanner_Scan_WaitForLockStopsWithContext(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "scan.lock")
	env := newTestEnv(t, collectionRoot(t))
	env.scanner.lock = flock.New(lockPath)

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = other.Unlock() })

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = env.scanner.Scan(ctx, ScanOptions{Wait: true})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateIdle, env.scanner.State())
}

func TestScanner_Scan_SeesCommitsOfAnotherProcess(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")
	second := writeAudio(t, root.Path, "Dune/2.ogg", "Two|Dune|Frank Herbert|2000")
	lockPath := filepath.Join(t.TempDir(), "scan.lock")

	env := newTestEnv(t, root)
	cfg := Config{Roots: []domain.Root{root}, Workers: 1, LockPath: lockPath}
	a := NewWithExtractor(env.store, env.fs, env.extractor, cfg, discard)
	t.Cleanup(a.Close)
	b := NewWithExtractor(env.store, env.fs, env.extractor, cfg, discard)
	t.Cleanup(b.Close)

	_, err := a.Scan(t.Context(), ScanOptions{})
	require.NoError(t, err)

	// b prunes the chapter of the removed file.
	require.NoError(t, os.Remove(second))
	result, err := b.Scan(t.Context(), ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)

	// The file comes back unchanged; a must not trust its earlier view.
	writeAudio(t, root.Path, "Dune/2.ogg", "Two|Dune|Frank Herbert|2000")
	result, err = a.Scan(t.Context(), ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Parsed)

	books := env.books(t)
	require.Len(t, books, 1)
	assert.Len(t, books[0].Chapters, 2)
	assert.Len(t, books[0].Content.Chapters, 2)
}

func TestScanner_Scan_CommitFailureLeavesCatalog(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")

	env := newTestEnv(t, root)
	catalog := &flakyCatalog{Catalog: env.store}
	sc := NewWithExtractor(catalog, env.fs, env.extractor, Config{Roots: []domain.Root{root}, Workers: 1}, discard)
	t.Cleanup(sc.Close)

	_, err := sc.Scan(t.Context(), ScanOptions{})
	require.NoError(t, err)
	require.Equal(t, int32(1), catalog.loads.Load())
	before := env.books(t)

	writeAudio(t, root.Path, "Emma/1.ogg", "One|Emma|Jane Austen|1000")
	changes := sc.SubscribeChanges(t.Context())
	diskFull := errors.New("disk full")
	catalog.failCommits(diskFull)

	_, err = sc.Scan(t.Context(), ScanOptions{})
	require.ErrorIs(t, err, diskFull)
	assert.Equal(t, StateIdle, sc.State())
	assert.Equal(t, before, env.books(t))
	select {
	case ev := <-changes:
		t.Fatalf("unexpected change notification %+v", ev)
	default:
	}

	catalog.failCommits(nil)
	result, err := sc.Scan(t.Context(), ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), catalog.loads.Load(), "chapters are reloaded after a failed commit")
	assert.Equal(t, 1, result.Added)
	assert.Len(t, env.books(t), 2)
}

func TestScanner_SubscribeChanges(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Dune/1.ogg", "One|Dune|Frank Herbert|1000")

	env := newTestEnv(t, root)
	changes := env.scanner.SubscribeChanges(t.Context())
	states := env.scanner.SubscribeState(t.Context())

	result := env.scan(t)

	select {
	case ev := <-changes:
		assert.Equal(t, result.ScanID, ev.ScanID)
		assert.Equal(t, 1, ev.Added)
		assert.Equal(t, []string{id.Book("lib", "Dune")}, ev.Books)
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}

	start := <-states
	end := <-states
	assert.True(t, start.Active)
	assert.False(t, end.Active)
	assert.Empty(t, end.Err)

	env.scan(t)
	select {
	case ev := <-changes:
		t.Fatalf("unexpected change notification %+v", ev)
	default:
	}
}

func TestScanner_SetRoots(t *testing.T) {
	first := collectionRoot(t)
	second := domain.Root{ID: "second", Path: t.TempDir(), Kind: domain.RootSingleFolder}
	writeAudio(t, second.Path, "1.ogg", "One|Solo|Author|1000")

	env := newTestEnv(t, first)
	env.scanner.SetRoots([]domain.Root{first, second})
	assert.Len(t, env.scanner.Roots(), 2)

	result := env.scan(t)
	assert.Equal(t, 1, result.Added)
}

func TestScanner_Close(t *testing.T) {
	root := collectionRoot(t)
	writeAudio(t, root.Path, "Book/1.ogg", "One|Book|Author|1000")

	env := newTestEnv(t, root)
	env.extractor.block = make(chan struct{})

	scanErr := make(chan error, 1)
	go func() {
		_, err := env.scanner.Scan(t.Context(), ScanOptions{})
		scanErr <- err
	}()
	require.Eventually(t, func() bool { return env.extractor.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	env.scanner.Close()

	select {
	case err := <-scanErr:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("running pass did not end")
	}
	assert.Equal(t, StateIdle, env.scanner.State())
	assert.Empty(t, env.books(t), "a canceled pass commits nothing")

	_, err := env.scanner.Scan(t.Context(), ScanOptions{Wait: true})
	assert.ErrorIs(t, err, ErrClosed)
}
