package ogg

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"io"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
)

const (
	codecVorbis = "vorbis"
	codecOpus   = "opus"

	opusGranuleRate = 48000
)

var (
	vorbisIDMagic = []byte("\x01vorbis")
	opusHeadMagic = []byte("OpusHead")

	// ErrNoAudioStream is returned when no Vorbis or Opus stream is present.
	ErrNoAudioStream = stderrors.New("ogg: no vorbis or opus stream")
)

// Metadata is what the scanner needs from an OGG file.
type Metadata struct {
	Comment    *VorbisComment
	Codec      string
	Chapters   []domain.ChapterMark
	DurationMs uint64
}

// ReadMetadata demuxes r, decodes the comment header of the first Vorbis or
// Opus stream and computes its duration from the last granule position.
//
// When r is also an io.Seeker the last granule is located by scanning the
// tail of the file; otherwise every page is read.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	d := NewDemuxer(NewPageReader(r), 2)
	if err := d.ReadHeaders(); err != nil {
		return nil, err
	}

	var (
		stream *Stream
		meta   Metadata
		rate   uint64
		skip   uint64
	)
	for _, s := range d.Streams() {
		if len(s.Packets) == 0 {
			continue
		}
		if codec, sampleRate, preSkip, ok := identify(s.Packets[0]); ok {
			stream = s
			meta.Codec = codec
			rate, skip = sampleRate, preSkip
			break
		}
	}
	if stream == nil {
		return nil, errors.Wrap(ErrNoAudioStream, errors.CodeParse, "read ogg metadata")
	}

	if len(stream.Packets) > 1 {
		comment, err := ParseComment(stream.Packets[1])
		if err != nil {
			return nil, err
		}
		meta.Comment = comment
		meta.Chapters = comment.Chapters()
	}

	granule := int64(-1)
	if rs, ok := r.(io.ReadSeeker); ok {
		if g, found := tailGranule(rs, stream.Serial); found {
			granule = g
		}
	} else {
		if err := d.Drain(); err != nil {
			return nil, err
		}
		granule = stream.LastGranule
	}

	if granule > 0 && rate > 0 && uint64(granule) > skip {
		meta.DurationMs = (uint64(granule) - skip) * 1000 / rate
	}
	return &meta, nil
}

// identify inspects an identification header and returns the codec, the
// granule rate and the number of granules to skip at the start.
func identify(packet []byte) (codec string, rate, preSkip uint64, ok bool) {
	switch {
	case bytes.HasPrefix(packet, vorbisIDMagic) && len(packet) >= 16:
		return codecVorbis, uint64(binary.LittleEndian.Uint32(packet[12:16])), 0, true
	case bytes.HasPrefix(packet, opusHeadMagic) && len(packet) >= 12:
		return codecOpus, opusGranuleRate, uint64(binary.LittleEndian.Uint16(packet[10:12])), true
	}
	return "", 0, 0, false
}

// tailGranule finds the granule position of the last page of serial within
// the final maxPageSize bytes of rs.
func tailGranule(rs io.ReadSeeker, serial int32) (int64, bool) {
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, false
	}
	start := max(end-maxPageSize, 0)
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return 0, false
	}
	buf, err := io.ReadAll(io.LimitReader(rs, end-start))
	if err != nil {
		return 0, false
	}

	for i := len(buf) - headerSize; i >= 0; i-- {
		if buf[i] != 'O' || !bytes.Equal(buf[i:i+4], capturePattern) || buf[i+4] != 0 {
			continue
		}
		if int32(binary.LittleEndian.Uint32(buf[i+14:i+18])) != serial {
			continue
		}
		if g := int64(binary.LittleEndian.Uint64(buf[i+6 : i+14])); g >= 0 {
			return g, true
		}
	}
	return 0, false
}
