package container

import (
	"context"
	"fmt"
	"time"

	"github.com/simonhull/audiometa"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
)

// ProbeResult is what a generic prober knows about a file.
type ProbeResult struct {
	Title      string
	Album      string
	Artist     string
	Chapters   []domain.ChapterMark
	DurationMs uint64
}

// Prober reads duration and tags from a file without a chapter parser.
type Prober interface {
	Probe(ctx context.Context, path string) (*ProbeResult, error)
}

// AudiometaProber probes with the native audiometa parsers.
type AudiometaProber struct{}

// NewAudiometaProber creates a prober backed by audiometa.
func NewAudiometaProber() *AudiometaProber {
	return &AudiometaProber{}
}

// Probe opens path with audiometa.
func (p *AudiometaProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("audiometa: %w", err)
	}
	defer file.Close()

	res := &ProbeResult{
		Title:      file.Tags.Title,
		Album:      file.Tags.Album,
		Artist:     file.Tags.Artist,
		DurationMs: durationMs(file.Audio.Duration),
	}
	for i, ch := range file.Chapters {
		name := ch.Title
		if name == "" {
			name = fmt.Sprintf("Chapter %d", i+1)
		}
		res.Chapters = append(res.Chapters, domain.ChapterMark{
			StartMs: durationMs(ch.StartTime),
			Name:    name,
		})
	}
	return res, nil
}

// ChainProber asks each prober in turn. The first result with a duration
// wins; otherwise the first successful result is returned.
type ChainProber []Prober

// Probe implements Prober.
func (c ChainProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	var (
		first *ProbeResult
		errs  []error
	)
	for _, p := range c {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.Probe(ctx, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.DurationMs > 0 {
			return res, nil
		}
		if first == nil {
			first = res
		}
	}
	if first != nil {
		return first, nil
	}
	if len(errs) == 0 {
		return nil, errors.Internalf("no prober configured for %s", path)
	}
	return nil, errors.Join(errs...)
}

func durationMs(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d.Milliseconds())
}
