package mp4

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"fmt"

	gomp4 "github.com/abema/go-mp4"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

type stscEntry struct {
	firstChunk      uint32
	samplesPerChunk uint32
}

type sttsEntry struct {
	count uint32
	delta uint32
}

// track collects the sample table of one trak box.
type track struct {
	id           uint32
	timescale    uint32
	duration     uint64
	stts         []sttsEntry
	stsc         []stscEntry
	// sampleSize is set instead of sampleSizes when every sample has the
	// same size; sampleCount then holds the number of samples.
	sampleSize   uint32
	sampleCount  uint32
	sampleSizes  []uint32
	chunkOffsets []uint64
}

// accumulator is the single state threaded through every box handler.
type accumulator struct {
	title, album, artist string

	chpl   []domain.ChapterMark
	tracks []*track

	chapterTrackID uint32
	movieTimescale uint32
	movieDuration  uint64
}

// current returns the track whose trak box is being walked.
func (acc *accumulator) current() *track {
	if len(acc.tracks) == 0 {
		acc.tracks = append(acc.tracks, &track{})
	}
	return acc.tracks[len(acc.tracks)-1]
}

type tagField int

const (
	tagTitle tagField = iota
	tagAlbum
	tagArtist
)

func (w *walk) skip(h *gomp4.ReadHandle, err error) {
	w.logger.Debug("skipping box",
		"path", pathKey(h.Path),
		"error", err,
	)
}

func (w *walk) trak(*gomp4.ReadHandle) error {
	w.acc.tracks = append(w.acc.tracks, &track{})
	return nil
}

func (w *walk) mvhd(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		if stderrors.Is(err, gomp4.ErrUnsupportedBoxVersion) {
			w.skip(h, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err))
			return nil
		}
		return err
	}
	mvhd, ok := payload.(*gomp4.Mvhd)
	if !ok {
		return nil
	}
	w.acc.movieTimescale = mvhd.Timescale
	if mvhd.GetVersion() == 0 {
		w.acc.movieDuration = uint64(mvhd.DurationV0)
	} else {
		w.acc.movieDuration = mvhd.DurationV1
	}
	return nil
}

func (w *walk) tkhd(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		if stderrors.Is(err, gomp4.ErrUnsupportedBoxVersion) {
			w.skip(h, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err))
			return nil
		}
		return err
	}
	if tkhd, ok := payload.(*gomp4.Tkhd); ok {
		w.acc.current().id = tkhd.TrackID
	}
	return nil
}

// tref records the first track referenced by a chap child box.
func (w *walk) tref(h *gomp4.ReadHandle) error {
	var buf bytes.Buffer
	if _, err := h.ReadData(&buf); err != nil {
		return err
	}
	data := buf.Bytes()
	for offset := 0; offset+8 <= len(data); {
		size := int(binary.BigEndian.Uint32(data[offset:]))
		if size < 8 || offset+size > len(data) {
			break
		}
		if string(data[offset+4:offset+8]) == "chap" && size >= 12 && w.acc.chapterTrackID == 0 {
			w.acc.chapterTrackID = binary.BigEndian.Uint32(data[offset+8:])
		}
		offset += size
	}
	return nil
}

// mdhd is decoded by hand so that versions other than 0 and 1 can be skipped
// without failing the whole walk.
func (w *walk) mdhd(h *gomp4.ReadHandle) error {
	var buf bytes.Buffer
	if _, err := h.ReadData(&buf); err != nil {
		return err
	}
	data := buf.Bytes()
	if len(data) < 4 {
		w.skip(h, fmt.Errorf("mdhd of %d bytes", len(data)))
		return nil
	}

	t := w.acc.current()
	switch version := data[0]; version {
	case 0:
		if len(data) < 20 {
			w.skip(h, fmt.Errorf("mdhd v0 of %d bytes", len(data)))
			return nil
		}
		t.timescale = binary.BigEndian.Uint32(data[12:16])
		t.duration = uint64(binary.BigEndian.Uint32(data[16:20]))
	case 1:
		if len(data) < 32 {
			w.skip(h, fmt.Errorf("mdhd v1 of %d bytes", len(data)))
			return nil
		}
		t.timescale = binary.BigEndian.Uint32(data[20:24])
		t.duration = binary.BigEndian.Uint64(data[24:32])
	default:
		w.skip(h, fmt.Errorf("%w: mdhd version %d", ErrUnsupportedVersion, version))
	}
	return nil
}

func (w *walk) stts(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	if stts, ok := payload.(*gomp4.Stts); ok {
		t := w.acc.current()
		for _, e := range stts.Entries {
			t.stts = append(t.stts, sttsEntry{count: e.SampleCount, delta: e.SampleDelta})
		}
	}
	return nil
}

func (w *walk) stsc(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	if stsc, ok := payload.(*gomp4.Stsc); ok {
		t := w.acc.current()
		for _, e := range stsc.Entries {
			t.stsc = append(t.stsc, stscEntry{firstChunk: e.FirstChunk, samplesPerChunk: e.SamplesPerChunk})
		}
	}
	return nil
}

func (w *walk) stsz(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	stsz, ok := payload.(*gomp4.Stsz)
	if !ok {
		return nil
	}
	t := w.acc.current()
	if stsz.SampleSize > 0 {
		t.sampleSize = stsz.SampleSize
		t.sampleCount = stsz.SampleCount
		return nil
	}
	t.sampleSizes = stsz.EntrySize
	return nil
}

func (w *walk) stco(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	if stco, ok := payload.(*gomp4.Stco); ok {
		t := w.acc.current()
		t.chunkOffsets = make([]uint64, len(stco.ChunkOffset))
		for i, o := range stco.ChunkOffset {
			t.chunkOffsets[i] = uint64(o)
		}
	}
	return nil
}

func (w *walk) co64(h *gomp4.ReadHandle) error {
	payload, _, err := h.ReadPayload()
	if err != nil {
		return err
	}
	if co64, ok := payload.(*gomp4.Co64); ok {
		w.acc.current().chunkOffsets = co64.ChunkOffset
	}
	return nil
}

// chpl decodes the Nero chapter list: version, flags, four reserved bytes and
// a one byte count, then per entry a timestamp in 100 ns units (32 bits in
// version 0, 64 bits in version 1) and a length prefixed title.
func (w *walk) chpl(h *gomp4.ReadHandle) error {
	var buf bytes.Buffer
	if _, err := h.ReadData(&buf); err != nil {
		return err
	}
	data := buf.Bytes()
	if len(data) < 9 {
		w.skip(h, fmt.Errorf("chpl of %d bytes", len(data)))
		return nil
	}

	var tsSize int
	switch version := data[0]; version {
	case 0:
		tsSize = 4
	case 1:
		tsSize = 8
	default:
		w.skip(h, fmt.Errorf("%w: chpl version %d", ErrUnsupportedVersion, version))
		return nil
	}

	count := int(data[8])
	offset := 9
	marks := make([]domain.ChapterMark, 0, count)
	for range count {
		if offset+tsSize+1 > len(data) {
			break
		}
		var ts uint64
		if tsSize == 4 {
			ts = uint64(binary.BigEndian.Uint32(data[offset:]))
		} else {
			ts = binary.BigEndian.Uint64(data[offset:])
		}
		offset += tsSize
		n := int(data[offset])
		offset++
		if offset+n > len(data) {
			break
		}
		marks = append(marks, domain.ChapterMark{
			StartMs: ts / 10_000,
			Name:    string(data[offset : offset+n]),
		})
		offset += n
	}
	w.acc.chpl = marks
	return nil
}

// readTag returns a handler storing the text of an ilst item's data box.
func readTag(field tagField) func(*walk, *gomp4.ReadHandle) error {
	return func(w *walk, h *gomp4.ReadHandle) error {
		var buf bytes.Buffer
		if _, err := h.ReadData(&buf); err != nil {
			return err
		}
		text, ok := dataText(buf.Bytes())
		if !ok {
			return nil
		}
		switch field {
		case tagTitle:
			w.acc.title = text
		case tagAlbum:
			w.acc.album = text
		case tagArtist:
			w.acc.artist = text
		}
		return nil
	}
}

// dataText returns the UTF-8 payload of the first data box in content.
func dataText(content []byte) (string, bool) {
	if len(content) < 16 || string(content[4:8]) != "data" {
		return "", false
	}
	size := int(binary.BigEndian.Uint32(content))
	if size < 16 || size > len(content) {
		return "", false
	}
	// Type indicator 1 is UTF-8.
	if binary.BigEndian.Uint32(content[8:12])&0xFFFFFF != 1 {
		return "", false
	}
	return string(content[16:size]), true
}
