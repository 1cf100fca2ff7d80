// Package ogg demultiplexes OGG bitstreams into logical streams and decodes the
// Vorbis comment header, including CHAPTERnnn chapter tags.
package ogg

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"io"

	"github.com/voiceapp/voice-scanner/internal/errors"
)

const (
	headerSize  = 27
	maxSegments = 255
	// maxPageSize is the largest possible page: header, full segment table, 255*255 data bytes.
	maxPageSize = headerSize + maxSegments + maxSegments*255

	flagContinued = 0x01
	flagFirst     = 0x02
	flagLast      = 0x04
)

var capturePattern = []byte("OggS")

// Page errors. They are wrapped with a PARSE or TRUNCATED code when returned.
var (
	ErrBadCapture         = stderrors.New("ogg: bad capture pattern")
	ErrUnsupportedVersion = stderrors.New("ogg: unsupported stream structure version")
	ErrTruncated          = stderrors.New("ogg: truncated page")
)

// Page is a single OGG page with its segment table folded into packet fragments.
type Page struct {
	Packets         [][]byte
	GranulePosition int64
	Serial          int32
	Sequence        uint32
	Continued       bool
	Finished        bool
	FirstOfStream   bool
	LastOfStream    bool
}

type readerState int

const (
	stateReading readerState = iota
	stateExhausted
	stateFailed
)

// PageReader yields pages from a stream one at a time.
//
// It owns the stream position: pages are consumed as they are read and the
// reader cannot be rewound. Once Next returns false the reader is either
// exhausted (Err returns nil) or failed (Err returns the cause).
type PageReader struct {
	r     io.Reader
	page  *Page
	err   error
	state readerState
	hdr   [headerSize]byte
	segs  [maxSegments]byte
}

// NewPageReader creates a page reader over r.
func NewPageReader(r io.Reader) *PageReader {
	return &PageReader{r: r}
}

// Next advances to the next page. It returns false at the end of the stream
// or on the first error.
func (pr *PageReader) Next() bool {
	if pr.state != stateReading {
		return false
	}

	page, err := pr.readPage()
	if err != nil {
		pr.page = nil
		if err == io.EOF {
			pr.state = stateExhausted
			return false
		}
		pr.state = stateFailed
		pr.err = err
		return false
	}

	pr.page = page
	return true
}

// Page returns the page read by the last successful call to Next.
func (pr *PageReader) Page() *Page {
	return pr.page
}

// Err returns the error that stopped the reader, or nil if it is exhausted.
func (pr *PageReader) Err() error {
	return pr.err
}

// Exhausted reports whether the reader reached a clean end of stream.
func (pr *PageReader) Exhausted() bool {
	return pr.state == stateExhausted
}

func (pr *PageReader) readPage() (*Page, error) {
	n, err := io.ReadFull(pr.r, pr.hdr[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, io.EOF
		}
		return nil, truncated(err)
	}

	if !bytes.Equal(pr.hdr[:4], capturePattern) {
		return nil, errors.Wrap(ErrBadCapture, errors.CodeParse, "read page header")
	}
	if pr.hdr[4] != 0 {
		return nil, errors.Wrapf(ErrUnsupportedVersion, errors.CodeParse, "page version %d", pr.hdr[4])
	}

	flags := pr.hdr[5]
	segCount := int(pr.hdr[26])

	segs := pr.segs[:segCount]
	if _, err := io.ReadFull(pr.r, segs); err != nil {
		return nil, truncated(err)
	}

	dataLen := 0
	for _, s := range segs {
		dataLen += int(s)
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(pr.r, data); err != nil {
		return nil, truncated(err)
	}

	return &Page{
		Continued:       flags&flagContinued != 0,
		FirstOfStream:   flags&flagFirst != 0,
		LastOfStream:    flags&flagLast != 0,
		GranulePosition: int64(binary.LittleEndian.Uint64(pr.hdr[6:14])),
		Serial:          int32(binary.LittleEndian.Uint32(pr.hdr[14:18])),
		Sequence:        binary.LittleEndian.Uint32(pr.hdr[18:22]),
		Finished:        segCount == 0 || segs[segCount-1] != 255,
		Packets:         foldSegments(segs, data),
	}, nil
}

// foldSegments splits page data into packet fragments. A run of 255-valued
// segments belongs to one packet; any other value terminates it. A trailing
// run of 255s is an unfinished fragment continued on the next page.
func foldSegments(segs, data []byte) [][]byte {
	var packets [][]byte
	start, size := 0, 0
	for i, s := range segs {
		size += int(s)
		if s != 255 || i == len(segs)-1 {
			packets = append(packets, data[start:start+size])
			start += size
			size = 0
		}
	}
	return packets
}

func truncated(err error) error {
	return errors.Wrap(stderrors.Join(ErrTruncated, err), errors.CodeTruncated, "read page")
}
