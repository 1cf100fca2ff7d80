// Package container picks the chapter parser for an audio file by its
// signature and falls back to a generic prober when the parser yields nothing.
package container

import (
	"bytes"
	"slices"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

// Format is a container format recognised by its leading bytes.
type Format string

const (
	FormatUnknown  Format = "unknown"
	FormatOgg      Format = "ogg"
	FormatMatroska Format = "matroska"
	FormatMP4      Format = "mp4"
)

// sniffSize is the number of leading bytes Sniff needs.
const sniffSize = 12

var (
	oggMagic  = []byte("OggS")
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
	ftypMagic = []byte("ftyp")
)

// Sniff identifies the container from the first bytes of a file.
func Sniff(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, oggMagic):
		return FormatOgg
	case bytes.HasPrefix(header, ebmlMagic):
		return FormatMatroska
	case len(header) >= 8 && bytes.Equal(header[4:8], ftypMagic):
		return FormatMP4
	default:
		return FormatUnknown
	}
}

// Metadata is the format independent result of reading one file.
type Metadata struct {
	Format Format
	Title  string
	Album  string
	Artist string
	// Marks is strictly ascending by StartMs.
	Marks      []domain.ChapterMark
	DurationMs uint64
	// Degraded is set when the container parser failed and the result only
	// holds what the prober could supply.
	Degraded bool
}

// Normalize orders marks by start time and drops every mark whose start time
// equals an earlier one, so the result is strictly ascending. The input is
// not modified.
func Normalize(marks []domain.ChapterMark) []domain.ChapterMark {
	if len(marks) == 0 {
		return nil
	}
	out := slices.Clone(marks)
	slices.SortStableFunc(out, func(a, b domain.ChapterMark) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(out, func(a, b domain.ChapterMark) bool {
		return a.StartMs == b.StartMs
	})
}
