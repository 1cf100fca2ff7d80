// Package mp4 extracts chapter marks, duration and basic tags from ISO-BMFF
// (MP4/M4A/M4B) files.
package mp4

import (
	stderrors "errors"
	"io"
	"log/slog"
	"strings"

	gomp4 "github.com/abema/go-mp4"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
)

// ErrUnsupportedVersion is logged for boxes whose version is not understood.
// Such boxes are skipped; it never aborts an extraction.
var ErrUnsupportedVersion = stderrors.New("mp4: unsupported box version")

// Result is what Extract reads from a file.
type Result struct {
	Title      string
	Album      string
	Artist     string
	Chapters   []domain.ChapterMark
	DurationMs uint64
}

// Extractor walks the box tree of MP4 files.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger discards log output.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{logger: logger}
}

// action is what the walker does with a box found at a known path.
type action struct {
	// expand descends into the box's children.
	expand bool
	// handle consumes the box's payload.
	handle func(w *walk, h *gomp4.ReadHandle) error
}

// actions maps box paths to what to do with them. Boxes at any other path are
// skipped without being read.
var actions = map[string]action{
	"moov":                          {expand: true},
	"moov/mvhd":                     {handle: (*walk).mvhd},
	"moov/trak":                     {expand: true, handle: (*walk).trak},
	"moov/trak/tkhd":                {handle: (*walk).tkhd},
	"moov/trak/tref":                {handle: (*walk).tref},
	"moov/trak/mdia":                {expand: true},
	"moov/trak/mdia/mdhd":           {handle: (*walk).mdhd},
	"moov/trak/mdia/minf":           {expand: true},
	"moov/trak/mdia/minf/stbl":      {expand: true},
	"moov/trak/mdia/minf/stbl/stts": {handle: (*walk).stts},
	"moov/trak/mdia/minf/stbl/stsc": {handle: (*walk).stsc},
	"moov/trak/mdia/minf/stbl/stsz": {handle: (*walk).stsz},
	"moov/trak/mdia/minf/stbl/stco": {handle: (*walk).stco},
	"moov/trak/mdia/minf/stbl/co64": {handle: (*walk).co64},
	"moov/udta":                     {expand: true},
	"moov/udta/chpl":                {handle: (*walk).chpl},
	"moov/udta/meta":                {expand: true},
	"moov/udta/meta/ilst":           {expand: true},
	"moov/udta/meta/ilst/\xa9nam":   {handle: readTag(tagTitle)},
	"moov/udta/meta/ilst/\xa9alb":   {handle: readTag(tagAlbum)},
	"moov/udta/meta/ilst/\xa9ART":   {handle: readTag(tagArtist)},
}

// walk carries the accumulator through one ReadBoxStructure pass.
type walk struct {
	acc    *accumulator
	logger *slog.Logger
}

// Extract reads r once. Explicit chpl chapters take precedence over a
// referenced chapter track; when neither exists only the duration and tags
// are reported.
func (e *Extractor) Extract(r io.ReadSeeker) (*Result, error) {
	w := &walk{acc: &accumulator{}, logger: e.logger}

	_, err := gomp4.ReadBoxStructure(r, func(h *gomp4.ReadHandle) (any, error) {
		// Nothing more is needed once an explicit chapter list was found.
		if len(w.acc.chpl) > 0 {
			return nil, nil
		}
		act, ok := actions[pathKey(h.Path)]
		if !ok {
			return nil, nil
		}
		if act.handle != nil {
			if err := act.handle(w, h); err != nil {
				return nil, err
			}
		}
		if act.expand {
			return h.Expand()
		}
		return nil, nil
	})
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, errors.CodeTruncated, "mp4: unexpected end of file")
		}
		return nil, errors.Wrap(err, errors.CodeParse, "mp4: read box structure")
	}

	acc := w.acc
	res := &Result{
		Title:      acc.title,
		Album:      acc.album,
		Artist:     acc.artist,
		DurationMs: acc.durationMs(),
	}
	if len(acc.chpl) > 0 {
		res.Chapters = acc.chpl
	} else if track := acc.chapterTrack(); track != nil {
		res.Chapters = acc.trackChapters(r, track, e.logger)
	}
	return res, nil
}

func pathKey(p gomp4.BoxPath) string {
	parts := make([]string, len(p))
	for i, t := range p {
		parts[i] = string(t[:])
	}
	return strings.Join(parts, "/")
}
