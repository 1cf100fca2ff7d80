package container

import (
	"context"
	"io"
	"log/slog"

	"github.com/voiceapp/voice-scanner/internal/errors"
	"github.com/voiceapp/voice-scanner/internal/matroska"
	"github.com/voiceapp/voice-scanner/internal/mp4"
	"github.com/voiceapp/voice-scanner/internal/ogg"
)

// Dispatcher runs the parser matching a file's signature.
type Dispatcher struct {
	prober    Prober
	mp4       *mp4.Extractor
	logger    *slog.Logger
	languages []string
}

// NewDispatcher creates a dispatcher. prober may be nil, in which case files
// without parsable chapters only report what their container parser found.
// languages orders the preferred Matroska chapter languages.
func NewDispatcher(prober Prober, languages []string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		prober:    prober,
		mp4:       mp4.NewExtractor(logger.With("component", "mp4")),
		logger:    logger,
		languages: languages,
	}
}

// Extract reads the chapter marks and duration of one file. path is handed
// to the prober when the container parser yields no chapters or no duration.
//
// Parse and truncation errors never escape: they degrade the file to
// whatever the prober reports. Only cancellation of ctx is returned.
func (d *Dispatcher) Extract(ctx context.Context, r io.ReadSeeker, path string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	meta, err := d.parse(r)
	if err != nil {
		d.logger.Debug("container parse failed",
			"path", path,
			"format", meta.Format,
			"code", errors.CodeOf(err),
			"error", err,
		)
		meta.Degraded = true
	}

	if d.prober != nil && (len(meta.Marks) == 0 || meta.DurationMs == 0) {
		if err := d.fillFromProbe(ctx, meta, path); err != nil {
			return nil, err
		}
	}

	meta.Marks = Normalize(meta.Marks)
	return meta, nil
}

// parse always returns a non-nil Metadata carrying the detected format.
func (d *Dispatcher) parse(r io.ReadSeeker) (*Metadata, error) {
	meta := &Metadata{Format: FormatUnknown}

	header := make([]byte, sniffSize)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return meta, errors.Wrap(err, errors.CodeTruncated, "read container signature")
	}
	meta.Format = Sniff(header[:n])
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return meta, errors.Wrap(err, errors.CodeInternal, "rewind file")
	}

	switch meta.Format {
	case FormatOgg:
		m, err := ogg.ReadMetadata(r)
		if err != nil {
			return meta, err
		}
		meta.DurationMs = m.DurationMs
		meta.Marks = m.Chapters
		if c := m.Comment; c != nil {
			meta.Title, _ = c.Get("TITLE")
			meta.Album, _ = c.Get("ALBUM")
			meta.Artist, _ = c.Get("ARTIST")
		}

	case FormatMatroska:
		f, err := matroska.Read(r)
		if err != nil {
			return meta, err
		}
		meta.DurationMs = f.DurationMs
		meta.Marks = matroska.Flatten(f.Chapters, d.languages)
		meta.Title = firstNonEmpty(f.Tags["TITLE"], f.Title)
		meta.Album = f.Tags["ALBUM"]
		meta.Artist = firstNonEmpty(f.Tags["ARTIST"], f.Tags["PERFORMER"])

	case FormatMP4:
		res, err := d.mp4.Extract(r)
		if err != nil {
			return meta, err
		}
		meta.DurationMs = res.DurationMs
		meta.Marks = res.Chapters
		meta.Title = res.Title
		meta.Album = res.Album
		meta.Artist = res.Artist
	}
	return meta, nil
}

// fillFromProbe completes meta with the prober's answer. Prober failures
// are logged; only context cancellation is returned.
func (d *Dispatcher) fillFromProbe(ctx context.Context, meta *Metadata, path string) error {
	res, err := d.prober.Probe(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		d.logger.Debug("probe failed", "path", path, "error", err)
		return nil
	}

	if meta.DurationMs == 0 {
		meta.DurationMs = res.DurationMs
	}
	if len(meta.Marks) == 0 {
		meta.Marks = res.Chapters
	}
	meta.Title = firstNonEmpty(meta.Title, res.Title)
	meta.Album = firstNonEmpty(meta.Album, res.Album)
	meta.Artist = firstNonEmpty(meta.Artist, res.Artist)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
