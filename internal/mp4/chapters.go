package mp4

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

const (
	// maxTextSample bounds how much of a chapter text sample is read.
	maxTextSample = 4096
	// maxTrackChapters bounds the samples of a chapter track expanded into
	// marks. Larger tracks are treated as having no chapters.
	maxTrackChapters = 10_000
)

// durationMs prefers the movie header and falls back to the longest track.
func (acc *accumulator) durationMs() uint64 {
	if acc.movieTimescale > 0 && acc.movieDuration > 0 {
		return acc.movieDuration * 1000 / uint64(acc.movieTimescale)
	}
	var longest uint64
	for _, t := range acc.tracks {
		if t.timescale == 0 || t == acc.chapterTrack() {
			continue
		}
		longest = max(longest, t.duration*1000/uint64(t.timescale))
	}
	return longest
}

// chapterTrack resolves the tref/chap target by track id, falling back to
// its position among the trak boxes when no tkhd carried that id.
func (acc *accumulator) chapterTrack() *track {
	if acc.chapterTrackID == 0 {
		return nil
	}
	for _, t := range acc.tracks {
		if t.id == acc.chapterTrackID {
			return t
		}
	}
	if i := int(acc.chapterTrackID) - 1; i < len(acc.tracks) {
		return acc.tracks[i]
	}
	return nil
}

// sampleDurations expands the time-to-sample runs into one delta per sample.
// It reports false without allocating when the track holds more than limit
// samples.
func (t *track) sampleDurations(limit int) ([]uint32, bool) {
	var n uint64
	for _, e := range t.stts {
		n += uint64(e.count)
	}
	if n > uint64(limit) {
		return nil, false
	}
	durations := make([]uint32, 0, n)
	for _, e := range t.stts {
		for range e.count {
			durations = append(durations, e.delta)
		}
	}
	return durations, true
}

// numSamples is the sample count declared by stsz.
func (t *track) numSamples() int {
	if t.sampleSize > 0 {
		return int(t.sampleCount)
	}
	return len(t.sampleSizes)
}

// sampleSizeAt returns the size of the 0-based sample i.
func (t *track) sampleSizeAt(i int) uint32 {
	if t.sampleSize > 0 {
		return t.sampleSize
	}
	if i < len(t.sampleSizes) {
		return t.sampleSizes[i]
	}
	return 0
}

// samplesPerChunk returns the stsc value in effect for a 1-based chunk.
func (t *track) samplesPerChunk(chunk uint32) uint32 {
	n := uint32(1)
	for _, e := range t.stsc {
		if chunk < e.firstChunk {
			break
		}
		n = e.samplesPerChunk
	}
	return n
}

// sampleOffsets computes the file offset of the first limit samples from
// the chunk offsets, the sample-to-chunk table and the sample sizes.
func (t *track) sampleOffsets(limit int) []uint64 {
	total := min(t.numSamples(), limit)
	if len(t.chunkOffsets) == 0 || total <= 0 {
		return nil
	}
	offsets := make([]uint64, 0, total)
	sample := 0
	for i, chunkOffset := range t.chunkOffsets {
		if sample >= total {
			break
		}
		offset := chunkOffset
		for n := t.samplesPerChunk(uint32(i + 1)); n > 0 && sample < total; n-- {
			offsets = append(offsets, offset)
			offset += uint64(t.sampleSizeAt(sample))
			sample++
		}
	}
	return offsets
}

// trackChapters turns each sample of the chapter track into a mark starting
// at the sample's cumulative time. Names come from the text samples when they
// can be read and are otherwise "Chapter N".
func (acc *accumulator) trackChapters(r io.ReadSeeker, t *track, logger *slog.Logger) []domain.ChapterMark {
	timescale := t.timescale
	if timescale == 0 {
		timescale = acc.movieTimescale
	}
	if timescale == 0 {
		logger.Debug("chapter track without timescale", "track_id", t.id)
		return nil
	}

	durations, ok := t.sampleDurations(maxTrackChapters)
	if !ok {
		logger.Warn("chapter track has too many samples, ignoring it",
			"track_id", t.id, "limit", maxTrackChapters)
		return nil
	}
	offsets := t.sampleOffsets(len(durations))

	marks := make([]domain.ChapterMark, 0, len(durations))
	var elapsed uint64
	for i, delta := range durations {
		name := ""
		if i < len(offsets) {
			name = readTextSample(r, offsets[i], t.sampleSizeAt(i))
		}
		if name == "" {
			name = fmt.Sprintf("Chapter %d", i+1)
		}
		marks = append(marks, domain.ChapterMark{
			StartMs: elapsed * 1000 / uint64(timescale),
			Name:    name,
		})
		elapsed += uint64(delta)
	}
	return marks
}

// readTextSample reads a [u16 length][text] sample. Any failure yields "".
func readTextSample(r io.ReadSeeker, offset uint64, size uint32) string {
	if size < 2 {
		return ""
	}
	size = min(size, maxTextSample)
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return ""
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ""
	}
	n := int(binary.BigEndian.Uint16(buf))
	if n > len(buf)-2 {
		n = len(buf) - 2
	}
	text := buf[2 : 2+n]
	if !utf8.Valid(text) {
		return ""
	}
	return strings.TrimSpace(string(text))
}
