package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/voiceapp/voice-scanner/internal/errors"
)

// ScanFunc runs one library pass.
type ScanFunc func(ctx context.Context) error

// Trigger turns bursts of watcher events into single rescans. A rescan runs
// once no event arrived for the debounce delay.
type Trigger struct {
	events <-chan Event
	scan   ScanFunc
	logger *slog.Logger
	delay  time.Duration
}

// NewTrigger creates a trigger reading from events.
func NewTrigger(events <-chan Event, delay time.Duration, scan ScanFunc, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Trigger{events: events, scan: scan, logger: logger, delay: delay}
}

// Run debounces events and rescans until ctx is done or the event channel
// closes. Events arriving during a rescan schedule another one.
func (t *Trigger) Run(ctx context.Context) error {
	timer := time.NewTimer(t.delay)
	timer.Stop()
	defer timer.Stop()

	changes := 0
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-t.events:
			if !ok {
				return nil
			}
			changes++
			t.logger.Debug("library change", "type", ev.Type.String(), "path", ev.Path)
			timer.Reset(t.delay)

		case <-timer.C:
			t.logger.Info("library changed, rescanning", "events", changes)
			changes = 0
			if err := t.scan(ctx); err != nil {
				if errors.Is(err, errors.ErrScanInProgress) {
					t.logger.Debug("rescan skipped", "error", err)
				} else if ctx.Err() == nil {
					t.logger.Error("rescan failed", "error", err)
				}
			}
		}
	}
}
