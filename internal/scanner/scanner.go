// Package scanner reconciles the audio files below the configured roots
// with the persisted catalog.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/fsys"
	"github.com/voiceapp/voice-scanner/internal/id"
	"github.com/voiceapp/voice-scanner/internal/notify"
	"github.com/voiceapp/voice-scanner/internal/store"
)

var (
	// ErrRestarted is the cause of a pass canceled by a restarting trigger.
	ErrRestarted = errors.New("scan restarted by a newer trigger")

	// ErrClosed is returned by Scan once the scanner is closed.
	ErrClosed = errors.New("scanner closed")
)

// lockRetryDelay is how often a waiting trigger retries the lock held by
// another process.
const lockRetryDelay = 250 * time.Millisecond

// Config configures a Scanner.
type Config struct {
	Roots []domain.Root
	// LockPath names a lock file held during each pass so that two
	// processes sharing a catalog never scan at once. Empty disables it.
	LockPath string
	Workers  int
}

// ScanOptions configures one trigger.
type ScanOptions struct {
	OnProgress func(Progress)
	// RestartIfScanning cancels a running pass and starts over. A pass that
	// is already committing is allowed to finish first.
	RestartIfScanning bool
	// Wait queues the trigger behind a running pass instead of dropping it.
	Wait bool
}

// Scanner runs scan passes one at a time.
type Scanner struct {
	catalog  store.Catalog
	chapters *store.ChapterCache
	logger   *slog.Logger
	lock     *flock.Flock
	now      func() time.Time

	walker   *Walker
	grouper  *Grouper
	analyzer *Analyzer

	changes *notify.Hub[notify.CatalogChanged]
	states  *notify.Hub[notify.ScanState]

	mu      sync.Mutex
	roots   []domain.Root
	workers int
	state   State
	closed  bool
	cancel  context.CancelCauseFunc
	done    chan struct{}
	last    *ScanResult
}

// New creates a scanner reading files through provider and parsing them
// with dispatcher.
func New(catalog store.Catalog, provider fsys.Provider, dispatcher *container.Dispatcher, cfg Config, logger *slog.Logger) *Scanner {
	return NewWithExtractor(catalog, provider, dispatcherExtractor{d: dispatcher}, cfg, logger)
}

// NewWithExtractor is New with a custom per-file extractor.
func NewWithExtractor(catalog store.Catalog, provider fsys.Provider, extractor Extractor, cfg Config, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	s := &Scanner{
		catalog:  catalog,
		chapters: store.NewChapterCache(catalog),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		walker:   NewWalker(provider, logger),
		grouper:  NewGrouper(logger),
		analyzer: NewAnalyzer(provider, extractor, logger),
		changes:  notify.NewHub[notify.CatalogChanged]("catalog", 0, logger),
		states:   notify.NewHub[notify.ScanState]("scan", 0, logger),
		roots:    cfg.Roots,
		workers:  workers,
	}
	if cfg.LockPath != "" {
		s.lock = flock.New(cfg.LockPath)
	}
	return s
}

// SetRoots replaces the roots scanned by the next pass.
func (s *Scanner) SetRoots(roots []domain.Root) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = roots
}

// Roots returns the configured roots.
func (s *Scanner) Roots() []domain.Root {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Root(nil), s.roots...)
}

// State returns where the scanner is in its current pass.
func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastResult returns the result of the last finished pass, or nil.
func (s *Scanner) LastResult() *ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// SubscribeChanges delivers a signal after every pass that changed the
// catalog until ctx is done.
func (s *Scanner) SubscribeChanges(ctx context.Context) <-chan notify.CatalogChanged {
	return s.changes.Subscribe(ctx)
}

// SubscribeState delivers a signal when a pass starts and ends until ctx
// is done.
func (s *Scanner) SubscribeState(ctx context.Context) <-chan notify.ScanState {
	return s.states.Subscribe(ctx)
}

// Close cancels a running pass, waits for it to end and ends every
// subscription. Later triggers fail with ErrClosed.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.closed = true
	running := s.done
	if s.state == StateScanning && s.cancel != nil {
		s.cancel(ErrClosed)
	}
	s.mu.Unlock()

	if running != nil {
		<-running
	}
	s.changes.Close()
	s.states.Close()
}

// Scan runs one pass. A trigger arriving while another pass runs fails
// with errors.ErrScanInProgress unless opts asks to wait or to restart.
// When the pass fails the catalog is left as it was before it started.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	passCtx, done, err := s.begin(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer s.end(done)

	if s.lock != nil {
		locked, err := s.acquireLock(passCtx, opts.Wait)
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, errors.ErrScanInProgress.WithDetails("held by another process")
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				s.logger.Warn("failed to release scan lock", "error", err)
			}
		}()
		// Another process may have committed since the cache was warmed.
		s.chapters.Invalidate()
	}

	result, err := s.run(passCtx, opts)
	if err != nil {
		if cause := context.Cause(passCtx); cause != nil && errors.Is(cause, ErrRestarted) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
		s.publishState(result.ScanID, false, err)
		return nil, err
	}

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()
	s.publishState(result.ScanID, false, nil)
	return result, nil
}

// acquireLock takes the cross-process lock. With wait it retries until
// the lock is free or ctx is done.
func (s *Scanner) acquireLock(ctx context.Context, wait bool) (bool, error) {
	if !wait {
		locked, err := s.lock.TryLock()
		if err != nil {
			return false, fmt.Errorf("acquire scan lock: %w", err)
		}
		return locked, nil
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return false, context.Cause(ctx)
		}
		return false, fmt.Errorf("acquire scan lock: %w", err)
	}
	return locked, nil
}

// begin moves the scanner from Idle to Scanning.
func (s *Scanner) begin(ctx context.Context, opts ScanOptions) (context.Context, chan struct{}, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, nil, ErrClosed
		}
		if s.state == StateIdle {
			passCtx, cancel := context.WithCancelCause(ctx)
			s.state = StateScanning
			s.cancel = cancel
			s.done = make(chan struct{})
			done := s.done
			s.mu.Unlock()
			return passCtx, done, nil
		}

		running := s.done
		switch {
		case opts.RestartIfScanning:
			if s.state == StateScanning {
				s.cancel(ErrRestarted)
			}
		case opts.Wait:
		default:
			s.mu.Unlock()
			return nil, nil, errors.ErrScanInProgress
		}
		s.mu.Unlock()

		select {
		case <-running:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// end moves the scanner back to Idle and releases waiting triggers.
func (s *Scanner) end(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel(nil)
	s.state = StateIdle
	s.cancel = nil
	close(done)
}

// setState records a transition inside a running pass.
func (s *Scanner) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// run executes the pass. It always returns a result carrying the scan id.
func (s *Scanner) run(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{
		ScanID:    id.MustGenerate(id.PrefixScan),
		StartedAt: s.now(),
	}
	tracker := NewProgressTracker(result.ScanID, opts.OnProgress, s.logger)
	log := s.logger.With("scan_id", result.ScanID)
	s.publishState(result.ScanID, true, nil)
	log.Info("scan started")

	snapshot, err := s.chapters.Snapshot(ctx)
	if err != nil {
		return result, fmt.Errorf("load chapters: %w", err)
	}
	contents, err := s.catalog.AllBookContents(ctx)
	if err != nil {
		return result, fmt.Errorf("load book contents: %w", err)
	}

	candidates, failedRoots, err := s.discover(ctx, tracker, result)
	if err != nil {
		return result, err
	}

	plans := planChapters(snapshot, candidates)
	if err := s.analyze(ctx, candidates, plans, tracker, result); err != nil {
		return result, err
	}

	tracker.SetPhase(PhaseMerging)
	batch := newMerger(result.StartedAt, snapshot, contents, failedRoots, result).merge(candidates, plans)
	result.Books = len(candidates)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	tracker.SetPhase(PhaseCommitting)
	s.setState(StateCommitting)
	if !batch.Empty() {
		// A started commit runs to completion; restarts wait for it.
		if err := s.catalog.Commit(context.WithoutCancel(ctx), batch); err != nil {
			s.chapters.Invalidate()
			return result, err
		}
		s.chapters.Apply(batch)
		result.Committed = true
	}

	result.CompletedAt = s.now()
	tracker.SetPhase(PhaseComplete)
	log.Info("scan complete",
		"duration", result.CompletedAt.Sub(result.StartedAt),
		"files", result.Files,
		"books", result.Books,
		"parsed", result.Parsed,
		"reused", result.Reused,
		"added", result.Added,
		"updated", result.Updated,
		"deactivated", result.Deactivated,
		"errors", len(result.Errors),
	)

	if result.Committed {
		s.changes.Publish(notify.CatalogChanged{
			At:          result.CompletedAt,
			ScanID:      result.ScanID,
			Books:       result.Changed,
			Added:       result.Added,
			Updated:     result.Updated,
			Deactivated: result.Deactivated,
		})
	}
	return result, nil
}

// discover walks and groups every root. Roots that fail to enumerate are
// reported in failed and contribute no candidates.
func (s *Scanner) discover(ctx context.Context, tracker *ProgressTracker, result *ScanResult) ([]Candidate, map[string]bool, error) {
	roots := s.Roots()
	failed := make(map[string]bool)
	files := make(map[string][]WalkResult, len(roots))

	tracker.SetPhase(PhaseWalking)
	tracker.SetTotal(len(roots))
	for _, root := range roots {
		rootFiles, err := collect(s.walker.Walk(ctx, root))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		if err != nil {
			s.logger.Error("root enumeration failed", "root", root.ID, "path", root.Path, "error", err)
			failed[root.ID] = true
			s.addError(tracker, result, ScanError{RootID: root.ID, Path: root.Path, Phase: PhaseWalking, Err: err})
			tracker.Increment(root.Path)
			continue
		}
		files[root.ID] = rootFiles
		result.Files += len(rootFiles)
		tracker.Increment(root.Path)
	}

	tracker.SetPhase(PhaseGrouping)
	var candidates []Candidate
	for _, root := range roots {
		if !failed[root.ID] {
			candidates = append(candidates, s.grouper.Group(root, files[root.ID])...)
		}
	}
	return candidates, failed, nil
}

// analyze parses every file planned for parsing and completes every plan
// with its chapter.
func (s *Scanner) analyze(ctx context.Context, candidates []Candidate, plans [][]*fileState, tracker *ProgressTracker, result *ScanResult) error {
	var pending []*fileState
	for _, states := range plans {
		for _, st := range states {
			switch {
			case st.parse:
				pending = append(pending, st)
			case st.renamedFrom != "":
				result.Renamed++
			default:
				result.Reused++
			}
		}
	}

	tracker.SetPhase(PhaseAnalyzing)
	tracker.SetTotal(len(pending))

	files := make([]WalkResult, len(pending))
	for i, st := range pending {
		files[i] = st.file
	}
	analyzed, err := s.analyzer.Analyze(ctx, files, s.workers, func(f WalkResult) {
		tracker.Increment(f.File.URI)
	})
	if err != nil {
		return err
	}

	for i, st := range pending {
		st.meta = analyzed[i].Meta
		if err := analyzed[i].Err; err != nil {
			s.addError(tracker, result, ScanError{RootID: st.file.RootID, Path: st.file.File.URI, Phase: PhaseAnalyzing, Err: err})
		}
		if st.meta.Degraded {
			result.Degraded++
		}
		result.Parsed++
	}

	for i, c := range candidates {
		for _, st := range plans[i] {
			if st.parse {
				st.chapter = chapterFromMeta(st.chapterID(c), st.file, st.meta)
			}
		}
	}
	return nil
}

func (s *Scanner) addError(tracker *ProgressTracker, result *ScanResult, e ScanError) {
	e.Time = s.now()
	result.Errors = append(result.Errors, e)
	tracker.AddError()
}

func (s *Scanner) publishState(scanID string, active bool, err error) {
	st := notify.ScanState{At: s.now(), ScanID: scanID, Active: active}
	if err != nil {
		st.Err = err.Error()
	}
	s.states.Publish(st)
}
