// Package matroska reads chapters and descriptive tags from Matroska/WebM files.
package matroska

import (
	"encoding/binary"
	stderrors "errors"
	"io"
	"math"

	"github.com/voiceapp/voice-scanner/internal/errors"
)

// Element IDs, with their length marker bits kept.
const (
	idEBML    = 0x1A45DFA3
	idDocType = 0x4282
	idSegment = 0x18538067
	idCluster = 0x1F43B675

	idInfo          = 0x1549A966
	idTimecodeScale = 0x2AD7B1
	idDuration      = 0x4489
	idTitle         = 0x7BA9

	idChapters           = 0x1043A770
	idEditionEntry       = 0x45B9
	idEditionFlagHidden  = 0x45BD
	idEditionFlagDefault = 0x45DB
	idEditionFlagOrdered = 0x45DD
	idChapterAtom        = 0xB6
	idChapterTimeStart   = 0x91
	idChapterFlagHidden  = 0x98
	idChapterDisplay     = 0x80
	idChapString         = 0x85
	idChapLanguage       = 0x437C
	idChapLanguageIETF   = 0x437D

	idTags      = 0x1254C367
	idTag       = 0x7373
	idSimpleTag = 0x67C8
	idTagName   = 0x45A3
	idTagString = 0x4487
)

const (
	unknownSize = -1
	// maxValueSize bounds string and binary payloads read into memory.
	maxValueSize = 1 << 20
)

// ErrInvalidElement marks any structural EBML error.
var ErrInvalidElement = stderrors.New("matroska: invalid ebml element")

type element struct {
	id        uint32
	size      int64 // unknownSize when the element extends to its parent's end
	dataStart int64
}

// end returns the offset just past the element, bounded by parentEnd.
func (e element) end(parentEnd int64) int64 {
	if e.size == unknownSize {
		return parentEnd
	}
	return e.dataStart + e.size
}

type ebmlReader struct {
	r   io.ReadSeeker
	pos int64
	buf [8]byte
}

func newEBMLReader(r io.ReadSeeker) (*ebmlReader, error) {
	pos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	return &ebmlReader{r: r, pos: pos}, nil
}

func invalid(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidElement, errors.CodeParse, format, args...)
}

func (er *ebmlReader) readByte() (byte, error) {
	if _, err := io.ReadFull(er.r, er.buf[:1]); err != nil {
		return 0, err
	}
	er.pos++
	return er.buf[0], nil
}

// readVint reads a variable length integer. With keepMarker the length
// marker bit stays in the value, as element IDs are written.
func (er *ebmlReader) readVint(maxLen int, keepMarker bool) (value uint64, length int, err error) {
	first, err := er.readByte()
	if err != nil {
		return 0, 0, err
	}
	length = 1
	mask := byte(0x80)
	for length <= 8 && first&mask == 0 {
		mask >>= 1
		length++
	}
	if length > maxLen {
		return 0, 0, invalid("vint length %d at offset %d", length, er.pos-1)
	}

	if keepMarker {
		value = uint64(first)
	} else {
		value = uint64(first & (mask - 1))
	}
	for i := 1; i < length; i++ {
		b, err := er.readByte()
		if err != nil {
			return 0, 0, err
		}
		value = value<<8 | uint64(b)
	}
	return value, length, nil
}

// next reads the header of the element starting at the current position.
func (er *ebmlReader) next() (element, error) {
	id, _, err := er.readVint(4, true)
	if err != nil {
		return element{}, err
	}
	size, length, err := er.readVint(8, false)
	if err != nil {
		return element{}, truncatedOr(err)
	}

	el := element{id: uint32(id), size: int64(size), dataStart: er.pos}
	if size == 1<<(7*uint(length))-1 {
		el.size = unknownSize
	} else if size > math.MaxInt64/2 {
		return element{}, invalid("element 0x%X size %d", id, size)
	}
	return el, nil
}

// seek moves to an absolute offset.
func (er *ebmlReader) seek(offset int64) error {
	if offset == er.pos {
		return nil
	}
	if _, err := er.r.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	er.pos = offset
	return nil
}

// children calls fn for every child of the element spanning [start, end).
// After fn returns the reader is moved past the child, so fn may read as
// much or as little of it as it likes. A child of unknown size ends the walk
// after fn returns.
func (er *ebmlReader) children(end int64, fn func(el element, end int64) error) error {
	for er.pos < end {
		el, err := er.next()
		if err != nil {
			if err == io.EOF && end == math.MaxInt64 {
				return nil
			}
			return truncatedOr(err)
		}
		childEnd := el.end(end)
		if childEnd > end {
			return invalid("element 0x%X overruns its parent", el.id)
		}
		if err := fn(el, childEnd); err != nil {
			return err
		}
		if el.size == unknownSize {
			return nil
		}
		if err := er.seek(childEnd); err != nil {
			return truncatedOr(err)
		}
	}
	return nil
}

func (er *ebmlReader) payload(el element) ([]byte, error) {
	if el.size == unknownSize || el.size > maxValueSize {
		return nil, invalid("element 0x%X has unreadable size", el.id)
	}
	b := make([]byte, el.size)
	if _, err := io.ReadFull(er.r, b); err != nil {
		return nil, truncatedOr(err)
	}
	er.pos += el.size
	return b, nil
}

func (er *ebmlReader) readUint(el element) (uint64, error) {
	if el.size > 8 {
		return 0, invalid("unsigned integer 0x%X of %d bytes", el.id, el.size)
	}
	b, err := er.payload(el)
	if err != nil {
		return 0, err
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

func (er *ebmlReader) readFloat(el element) (float64, error) {
	b, err := er.payload(el)
	if err != nil {
		return 0, err
	}
	switch len(b) {
	case 0:
		return 0, nil
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	default:
		return 0, invalid("float 0x%X of %d bytes", el.id, len(b))
	}
}

func (er *ebmlReader) readString(el element) (string, error) {
	b, err := er.payload(el)
	if err != nil {
		return "", err
	}
	// Strings may be zero padded.
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

func truncatedOr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errors.Wrap(err, errors.CodeTruncated, "matroska: unexpected end of file")
	}
	return err
}
