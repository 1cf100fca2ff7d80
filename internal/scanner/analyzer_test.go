package scanner

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/domain"
)

func walkDir(t *testing.T, fs *fakeFS, dir string) []WalkResult {
	t.Helper()
	files, err := collect(NewWalker(fs, discard).Walk(t.Context(), domain.Root{ID: "r", Path: dir}))
	require.NoError(t, err)
	return files
}

func TestAnalyzer_Analyze_PreservesOrder(t *testing.T) {
	dir := t.TempDir()
	for i := range 20 {
		writeAudio(t, dir, fmt.Sprintf("%02d.ogg", i), fmt.Sprintf("t%02d||author|%d", i, 1000+i))
	}
	fs := newFakeFS()
	files := walkDir(t, fs, dir)
	require.Len(t, files, 20)

	var done atomic.Int32
	a := NewAnalyzer(fs, &fakeExtractor{}, discard)
	results, err := a.Analyze(t.Context(), files, 4, func(WalkResult) { done.Add(1) })
	require.NoError(t, err)
	require.Len(t, results, 20)

	assert.Equal(t, int32(20), done.Load())
	for i, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, "t"+files[i].RelPath[:2], r.Meta.Title)
		assert.Equal(t, "author", r.Meta.Artist)
	}
}

func TestAnalyzer_Analyze_OpenFailureDegrades(t *testing.T) {
	dir := t.TempDir()
	good := writeAudio(t, dir, "good.ogg", "Good")
	bad := writeAudio(t, dir, "bad.ogg", "Bad")

	fs := newFakeFS()
	fs.failOpen[bad] = os.ErrPermission
	files := walkDir(t, fs, dir)
	require.Len(t, files, 2)

	results, err := NewAnalyzer(fs, &fakeExtractor{}, discard).Analyze(t.Context(), files, 2, nil)
	require.NoError(t, err)

	for i, f := range files {
		switch f.File.URI {
		case good:
			assert.NoError(t, results[i].Err)
			assert.Equal(t, "Good", results[i].Meta.Title)
			assert.False(t, results[i].Meta.Degraded)
		case bad:
			assert.ErrorIs(t, results[i].Err, os.ErrPermission)
			assert.True(t, results[i].Meta.Degraded)
			assert.Equal(t, container.FormatUnknown, results[i].Meta.Format)
		}
	}
}

func TestAnalyzer_Analyze_Empty(t *testing.T) {
	results, err := NewAnalyzer(newFakeFS(), &fakeExtractor{}, discard).Analyze(t.Context(), nil, 2, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnalyzer_Analyze_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeAudio(t, dir, "a.ogg", "a")
	writeAudio(t, dir, "b.ogg", "b")
	fs := newFakeFS()
	files := walkDir(t, fs, dir)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := NewAnalyzer(fs, &fakeExtractor{}, discard).Analyze(ctx, files, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzer_Analyze_CancelledWhileExtracting(t *testing.T) {
	dir := t.TempDir()
	writeAudio(t, dir, "a.ogg", "a")
	fs := newFakeFS()
	files := walkDir(t, fs, dir)

	ctx, cancel := context.WithCancel(t.Context())
	extractor := &fakeExtractor{block: make(chan struct{})}
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := NewAnalyzer(fs, extractor, discard).Analyze(ctx, files, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), extractor.calls.Load())
}
