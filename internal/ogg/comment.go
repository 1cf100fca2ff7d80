package ogg

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"strings"

	"github.com/voiceapp/voice-scanner/internal/errors"
)

var (
	vorbisCommentMagic = []byte("\x03vorbis")
	opusTagsMagic      = []byte("OpusTags")

	// ErrNotComment is returned for packets that are not a comment header.
	ErrNotComment = stderrors.New("ogg: packet is not a comment header")
)

// Comment is a single KEY=VALUE entry of a Vorbis comment.
type Comment struct {
	Key   string
	Value string
}

// VorbisComment is a decoded Vorbis comment header. Comments keep their
// original order and duplicates; key lookups are case-insensitive.
type VorbisComment struct {
	Vendor   string
	Comments []Comment
}

// Get returns the first value stored under key.
func (vc *VorbisComment) Get(key string) (string, bool) {
	for _, c := range vc.Comments {
		if strings.EqualFold(c.Key, key) {
			return c.Value, true
		}
	}
	return "", false
}

// GetAll returns every value stored under key in order.
func (vc *VorbisComment) GetAll(key string) []string {
	var values []string
	for _, c := range vc.Comments {
		if strings.EqualFold(c.Key, key) {
			values = append(values, c.Value)
		}
	}
	return values
}

// ParseComment decodes a Vorbis (\x03vorbis) or Opus (OpusTags) comment packet.
func ParseComment(packet []byte) (*VorbisComment, error) {
	var body []byte
	switch {
	case bytes.HasPrefix(packet, vorbisCommentMagic):
		body = packet[len(vorbisCommentMagic):]
	case bytes.HasPrefix(packet, opusTagsMagic):
		body = packet[len(opusTagsMagic):]
	default:
		return nil, errors.Wrap(ErrNotComment, errors.CodeParse, "parse comment")
	}

	r := commentReader{buf: body}

	vendor, err := r.lengthPrefixed("vendor")
	if err != nil {
		return nil, err
	}
	count, err := r.readUint32("comment count")
	if err != nil {
		return nil, err
	}

	vc := &VorbisComment{Vendor: string(vendor)}
	for i := uint32(0); i < count; i++ {
		entry, err := r.lengthPrefixed("comment")
		if err != nil {
			return nil, err
		}
		key, value, ok := strings.Cut(string(entry), "=")
		if !ok {
			continue
		}
		vc.Comments = append(vc.Comments, Comment{Key: key, Value: value})
	}
	return vc, nil
}

type commentReader struct {
	buf []byte
	off int
}

func (r *commentReader) readUint32(what string) (uint32, error) {
	if len(r.buf)-r.off < 4 {
		return 0, errors.Wrapf(ErrTruncated, errors.CodeTruncated, "read %s", what)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *commentReader) lengthPrefixed(what string) ([]byte, error) {
	n, err := r.readUint32(what + " length")
	if err != nil {
		return nil, err
	}
	if uint64(len(r.buf)-r.off) < uint64(n) {
		return nil, errors.Wrapf(ErrTruncated, errors.CodeTruncated, "read %s: need %d bytes", what, n)
	}
	b := r.buf[r.off : r.off+int(n)]
	r.off += int(n)
	return b, nil
}
