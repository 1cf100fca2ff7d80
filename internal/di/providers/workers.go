package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/logger"
	"github.com/voiceapp/voice-scanner/internal/scanner"
	"github.com/voiceapp/voice-scanner/internal/watcher"
)

// FileWatcherHandle wraps the file watcher and its rescan trigger with
// shutdown capability. Watcher is nil when watching is disabled.
type FileWatcherHandle struct {
	*watcher.Watcher
	cancel context.CancelFunc
	done   chan struct{}
}

// Shutdown implements do.Shutdownable.
func (h *FileWatcherHandle) Shutdown() error {
	if h.Watcher == nil {
		return nil
	}
	h.cancel()
	err := h.Stop()
	<-h.done
	return err
}

// ProvideFileWatcher watches the library roots and rescans after changes
// settle. A change during a pass restarts it.
func ProvideFileWatcher(i do.Injector) (*FileWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sc := do.MustInvoke[*ScannerHandle](i)

	if !cfg.Scanner.Watch {
		log.Info("File watching disabled")
		return &FileWatcherHandle{}, nil
	}

	w, err := watcher.New(log.Logger, watcher.Options{
		Filter: func(path string) bool { return scanner.IsAudioExt(filepath.Ext(path)) },
	})
	if err != nil {
		return nil, err
	}

	for _, root := range sc.Roots() {
		if err := w.Watch(root.Path); err != nil {
			// A missing root is scanned as empty; it is not watched until restart.
			log.Warn("Cannot watch library root", "root", root.ID, "path", root.Path, "error", err)
			continue
		}
		log.Info("Watching library root", "root", root.ID, "path", root.Path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	trigger := watcher.NewTrigger(w.Events(), cfg.Scanner.Debounce, func(ctx context.Context) error {
		_, err := sc.Scan(ctx, scanner.ScanOptions{RestartIfScanning: true})
		return err
	}, log.Logger)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = trigger.Run(ctx)
	}()
	go func() {
		for err := range w.Errors() {
			log.Warn("File watcher error", "error", err)
		}
	}()

	return &FileWatcherHandle{Watcher: w, cancel: cancel, done: done}, nil
}
