package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, opts Options) (*Watcher, string) {
	t.Helper()
	if opts.SettleDelay == 0 {
		opts.SettleDelay = 50 * time.Millisecond
	}
	w, err := New(nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })

	dir := t.TempDir()
	require.NoError(t, w.Watch(dir))
	return w, dir
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case err := <-w.Errors():
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func assertNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNew(t *testing.T) {
	w, err := New(nil, Options{})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())

	_, open := <-w.Events()
	assert.False(t, open)
}

func TestWatcher_WatchMissingPath(t *testing.T) {
	w, err := New(nil, Options{})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup

	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing")))
}

func TestWatcher_FileCreation(t *testing.T) {
	w, dir := newTestWatcher(t, Options{})

	path := filepath.Join(dir, "test.m4b")
	require.NoError(t, os.WriteFile(path, []byte("test audiobook content"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Type)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, int64(22), ev.Size)
	assert.False(t, ev.IsDir)
}

func TestWatcher_FileModification(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.mp3")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := New(nil, Options{SettleDelay: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup
	require.NoError(t, w.Watch(dir))

	require.NoError(t, os.WriteFile(path, []byte("version 2"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, EventModified, ev.Type)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, int64(9), ev.Size)
}

func TestWatcher_FileDeletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	w, err := New(nil, Options{})
	require.NoError(t, err)
	defer w.Stop() //nolint:errcheck // Test cleanup
	require.NoError(t, w.Watch(dir))

	require.NoError(t, os.Remove(path))

	ev := nextEvent(t, w)
	assert.Equal(t, EventRemoved, ev.Type)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_IgnoreHidden(t *testing.T) {
	w, dir := newTestWatcher(t, Options{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("secret"), 0o644))
	normal := filepath.Join(dir, "normal.mp3")
	require.NoError(t, os.WriteFile(normal, []byte("content"), 0o644))

	assert.Equal(t, normal, nextEvent(t, w).Path)
	assertNoEvent(t, w)
}

func TestWatcher_Filter(t *testing.T) {
	w, dir := newTestWatcher(t, Options{
		Filter: func(path string) bool { return filepath.Ext(path) == ".mp3" },
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte("jpeg"), 0o644))
	audio := filepath.Join(dir, "01.mp3")
	require.NoError(t, os.WriteFile(audio, []byte("mp3"), 0o644))

	assert.Equal(t, audio, nextEvent(t, w).Path)
	assertNoEvent(t, w)
}

func TestWatcher_NewDirectory(t *testing.T) {
	w, dir := newTestWatcher(t, Options{})

	sub := filepath.Join(dir, "New Book")
	require.NoError(t, os.Mkdir(sub, 0o755))

	ev := nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Type)
	assert.Equal(t, sub, ev.Path)
	assert.True(t, ev.IsDir)

	// The new directory is watched as well.
	path := filepath.Join(sub, "01.mp3")
	require.NoError(t, os.WriteFile(path, []byte("mp3"), 0o644))

	ev = nextEvent(t, w)
	assert.Equal(t, EventAdded, ev.Type)
	assert.Equal(t, path, ev.Path)
}

func TestWatcher_Start(t *testing.T) {
	w, err := New(nil, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}

	_, open := <-w.Events()
	assert.False(t, open)
}
