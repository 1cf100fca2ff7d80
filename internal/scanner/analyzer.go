package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/voiceapp/voice-scanner/internal/container"
	"github.com/voiceapp/voice-scanner/internal/fsys"
)

// Extractor reads the chapter metadata of one open file.
type Extractor interface {
	Extract(ctx context.Context, r fsys.File, path string) (*container.Metadata, error)
}

// dispatcherExtractor adapts a container.Dispatcher to Extractor.
type dispatcherExtractor struct {
	d *container.Dispatcher
}

func (e dispatcherExtractor) Extract(ctx context.Context, r fsys.File, path string) (*container.Metadata, error) {
	return e.d.Extract(ctx, r, path)
}

// Analyzer extracts metadata from files on a bounded worker pool.
type Analyzer struct {
	fs        fsys.Provider
	extractor Extractor
	logger    *slog.Logger
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(provider fsys.Provider, extractor Extractor, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		fs:        provider,
		extractor: extractor,
		logger:    logger,
	}
}

// AnalyzeResult is the outcome for the file at the same index.
type AnalyzeResult struct {
	Meta *container.Metadata
	// Err is set when the file could not be opened. Meta is then a
	// degraded placeholder.
	Err error
}

// Analyze extracts every file in files, keeping their order. onDone is
// called once per finished file and may be nil. A failing file never fails
// the batch; only cancellation of ctx does.
func (a *Analyzer) Analyze(ctx context.Context, files []WalkResult, workers int, onDone func(WalkResult)) ([]AnalyzeResult, error) {
	if len(files) == 0 {
		return []AnalyzeResult{}, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]AnalyzeResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			meta, err := a.analyzeFile(gctx, f)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.logger.Warn("failed to read file", "path", f.File.URI, "error", err)
				meta = &container.Metadata{Format: container.FormatUnknown, Degraded: true}
			}
			results[i] = AnalyzeResult{Meta: meta, Err: err}
			if onDone != nil {
				onDone(f)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// analyzeFile opens f and always closes it before returning.
func (a *Analyzer) analyzeFile(ctx context.Context, f WalkResult) (*container.Metadata, error) {
	r, err := a.fs.OpenRead(ctx, f.File)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.File.URI, err)
	}
	defer r.Close()

	return a.extractor.Extract(ctx, r, f.File.URI)
}
