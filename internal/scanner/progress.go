package scanner

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ProgressTracker tracks and reports scan progress. Every change reaches
// the callback; log records are sampled.
type ProgressTracker struct {
	callback func(Progress)
	logger   *slog.Logger
	sample   rate.Sometimes
	progress Progress
	mu       sync.Mutex
}

// NewProgressTracker creates a new progress tracker. callback may be nil.
func NewProgressTracker(scanID string, callback func(Progress), logger *slog.Logger) *ProgressTracker {
	return &ProgressTracker{
		callback: callback,
		logger:   logger,
		sample:   rate.Sometimes{First: 1, Interval: 2 * time.Second},
		progress: Progress{ScanID: scanID, Phase: PhaseWalking},
	}
}

// SetPhase updates the current phase.
func (p *ProgressTracker) SetPhase(phase ScanPhase) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Phase = phase
	p.progress.Current = 0
	p.progress.Total = 0
	p.progress.CurrentItem = ""
	p.logger.Debug("scan phase", "scan_id", p.progress.ScanID, "phase", phase)
	p.notify()
}

// SetTotal sets the total items for current phase.
func (p *ProgressTracker) SetTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Total = total
	p.notify()
}

// Increment increments the current progress.
func (p *ProgressTracker) Increment(currentItem string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Current++
	p.progress.CurrentItem = currentItem
	p.sample.Do(func() {
		p.logger.Info("scan progress",
			"scan_id", p.progress.ScanID,
			"phase", p.progress.Phase,
			"current", p.progress.Current,
			"total", p.progress.Total,
		)
	})
	p.notify()
}

// AddError counts a scan error.
func (p *ProgressTracker) AddError() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.progress.Errors++
	p.notify()
}

// Get returns current progress.
func (p *ProgressTracker) Get() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// notify runs the callback synchronously so updates arrive in order.
// Callers hold p.mu.
func (p *ProgressTracker) notify() {
	if p.callback != nil {
		p.callback(p.progress)
	}
}
