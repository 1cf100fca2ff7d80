// Package watcher reports settled file system changes below the library
// roots and turns them into debounced rescans.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors library roots with fsnotify. Writes are reported only
// once a file has stopped changing for the settle delay, so an audio file
// being copied produces a single event.
type Watcher struct {
	logger *slog.Logger
	opts   Options
	fsw    *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*pendingEvent
	closed  bool

	events   chan Event
	errors   chan error
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// pendingEvent tracks a file that may still be changing.
type pendingEvent struct {
	modTime time.Time
	timer   *time.Timer
	size    int64
	typ     EventType
}

// New creates a watcher. Nothing is watched until Watch is called, and the
// watcher runs until Stop.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts.setDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		logger:  logger,
		opts:    opts,
		fsw:     fsw,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// Watch adds a path to be monitored. Directories are watched recursively;
// a file is watched through its parent directory.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat watch path: %w", err)
	}
	if info.IsDir() {
		return w.watchDir(path)
	}
	return w.fsw.Add(filepath.Dir(path))
}

func (w *Watcher) watchDir(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("failed to access path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != path && w.opts.shouldIgnore(p) {
			return filepath.SkipDir
		}

		if err := w.fsw.Add(p); err != nil {
			w.logger.Error("failed to add watch", "path", p, "error", err)
			return nil
		}
		w.logger.Debug("added watch", "path", p)
		return nil
	})
}

// Start blocks until ctx is done or Stop is called. Events are processed
// from creation on; Start ties the watcher's lifetime to ctx and stops it
// on return.
func (w *Watcher) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-w.done:
	}
	return w.Stop()
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn("watcher error dropped", "error", err)
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if w.opts.shouldIgnore(path) {
		return
	}

	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// fsnotify drops watches of removed directories on its own.
		w.cancelPending(path)
		w.emit(Event{Type: EventRemoved, Path: path})

	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			// A directory moved in brings its files without further events.
			if err := w.watchDir(path); err != nil {
				w.logger.Warn("failed to watch new directory", "path", path, "error", err)
			}
			w.emit(Event{Type: EventAdded, Path: path, IsDir: true, ModTime: info.ModTime()})
			return
		}
		w.settle(path, EventAdded)

	case event.Has(fsnotify.Write):
		w.settle(path, EventModified)
	}
}

// settle starts or restarts the settle timer of a file.
func (w *Watcher) settle(path string, typ EventType) {
	if !w.opts.accepts(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		// A write right after creation still reports an addition.
		if p.typ == EventAdded {
			typ = EventAdded
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		return
	}
	if info.IsDir() {
		return
	}

	w.pending[path] = &pendingEvent{
		size:    info.Size(),
		modTime: info.ModTime(),
		typ:     typ,
		timer:   time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) }),
	}
}

// checkSettled emits the event of a file whose size and mtime did not
// change during the last settle delay.
func (w *Watcher) checkSettled(path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok || w.closed {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		delete(w.pending, path)
		w.mu.Unlock()
		if errors.Is(err, fs.ErrNotExist) {
			w.emit(Event{Type: EventRemoved, Path: path})
		}
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.opts.SettleDelay, func() { w.checkSettled(path) })
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()

	w.emit(Event{
		Type:    p.typ,
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	})
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// emit delivers an event unless the watcher is stopping.
func (w *Watcher) emit(event Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	select {
	case w.events <- event:
	case <-w.done:
	}
}

// Events returns the channel of settled events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watcher errors. It is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop stops the watcher and releases its resources. It is safe to call
// more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.mu.Lock()
		for _, p := range w.pending {
			p.timer.Stop()
		}
		clear(w.pending)
		w.closed = true
		w.mu.Unlock()

		err = w.fsw.Close()
		w.wg.Wait()

		close(w.events)
		close(w.errors)
	})
	return err
}
