package providers

import (
	"context"
	"errors"

	"github.com/samber/do/v2"

	"github.com/voiceapp/voice-scanner/internal/config"
	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/fsys"
	"github.com/voiceapp/voice-scanner/internal/logger"
	"github.com/voiceapp/voice-scanner/internal/scanner"
)

// ProvideDispatcher provides the container dispatcher. Files without a
// chapter parser are probed with audiometa, then ffprobe when installed.
func ProvideDispatcher(i do.Injector) (*container.Dispatcher, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	probers := container.ChainProber{container.NewAudiometaProber()}
	ffprobe := container.NewFFprobeProber(cfg.Scanner.FFprobePath)
	if ffprobe.Available() {
		probers = append(probers, ffprobe)
	} else {
		log.Info("ffprobe not found, probing with audiometa only")
	}

	return container.NewDispatcher(probers, cfg.Scanner.Languages, log.Logger), nil
}

// ScannerHandle wraps the scanner with shutdown capability.
type ScannerHandle struct {
	*scanner.Scanner
}

// Shutdown implements do.Shutdownable.
func (h *ScannerHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideScanner provides the library scanner over the configured roots.
func ProvideScanner(i do.Injector) (*ScannerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	catalog := do.MustInvoke[*CatalogHandle](i)
	dispatcher := do.MustInvoke[*container.Dispatcher](i)
	log := do.MustInvoke[*logger.Logger](i)

	sc := scanner.New(catalog, fsys.NewOS(log.Logger), dispatcher, scanner.Config{
		Roots:    cfg.Library.Roots,
		LockPath: cfg.LockPath(),
		Workers:  cfg.Scanner.Workers,
	}, log.Logger)

	log.Info("Scanner ready", "roots", len(cfg.Library.Roots))

	return &ScannerHandle{Scanner: sc}, nil
}

// RunInitialScan runs one pass over the configured roots. Should be called
// after all dependencies are wired.
func RunInitialScan(ctx context.Context, sc *ScannerHandle, log *logger.Logger) {
	if len(sc.Roots()) == 0 {
		log.Warn("No library roots configured, skipping initial scan")
		return
	}

	_, err := sc.Scan(ctx, scanner.ScanOptions{Wait: true})
	switch {
	case err == nil, ctx.Err() != nil, errors.Is(err, scanner.ErrClosed):
	default:
		log.Error("Initial scan failed", "error", err)
	}
}
