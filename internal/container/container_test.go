package container

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voiceapp/voice-scanner/internal/domain"
	"github.com/voiceapp/voice-scanner/internal/errors"
)

type fakeProber struct {
	result *ProbeResult
	err    error
	calls  int
}

func (f *fakeProber) Probe(context.Context, string) (*ProbeResult, error) {
	f.calls++
	return f.result, f.err
}

// oggPage builds a page holding a single packet shorter than 255 bytes.
func oggPage(flags byte, granule int64, seq uint32, packet []byte) []byte {
	var b bytes.Buffer
	b.WriteString("OggS")
	b.Write([]byte{0, flags})
	_ = binary.Write(&b, binary.LittleEndian, granule)
	_ = binary.Write(&b, binary.LittleEndian, int32(7))
	_ = binary.Write(&b, binary.LittleEndian, seq)
	b.Write([]byte{0, 0, 0, 0, 1, byte(len(packet))})
	b.Write(packet)
	return b.Bytes()
}

func oggFile(comments ...string) []byte {
	id := make([]byte, 30)
	copy(id, "\x01vorbis")
	binary.LittleEndian.PutUint32(id[12:16], 1000)

	var c bytes.Buffer
	c.WriteString("\x03vorbis")
	_ = binary.Write(&c, binary.LittleEndian, uint32(0))
	_ = binary.Write(&c, binary.LittleEndian, uint32(len(comments)))
	for _, s := range comments {
		_ = binary.Write(&c, binary.LittleEndian, uint32(len(s)))
		c.WriteString(s)
	}

	return bytes.Join([][]byte{
		oggPage(0x02, 0, 0, id),
		oggPage(0, 0, 1, c.Bytes()),
		oggPage(0x04, 7000, 2, []byte("audio")),
	}, nil)
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"matroska", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x9F}, FormatMatroska},
		{"mp4", []byte("\x00\x00\x00\x20ftypM4B "), FormatMP4},
		{"mp3", []byte("ID3\x04\x00\x00\x00\x00"), FormatUnknown},
		{"short", []byte("Og"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sniff(tt.header))
		})
	}
}

func TestNormalize(t *testing.T) {
	in := []domain.ChapterMark{
		{StartMs: 5000, Name: "c"},
		{StartMs: 0, Name: "a"},
		{StartMs: 5000, Name: "d"},
		{StartMs: 1000, Name: "b"},
	}

	got := Normalize(in)

	assert.Equal(t, []domain.ChapterMark{
		{StartMs: 0, Name: "a"},
		{StartMs: 1000, Name: "b"},
		{StartMs: 5000, Name: "c"},
	}, got)
	assert.Equal(t, "c", in[0].Name, "input must not be reordered")
	assert.Nil(t, Normalize(nil))
}

func TestDispatcher_Ogg(t *testing.T) {
	prober := &fakeProber{result: &ProbeResult{DurationMs: 1}}
	d := NewDispatcher(prober, nil, nil)

	data := oggFile(
		"TITLE=Chapter Title", "ALBUM=Book", "ARTIST=Author",
		"CHAPTER001=00:00:00.000", "CHAPTER001NAME=One",
		"CHAPTER002=00:00:03.000", "CHAPTER002NAME=Two",
	)
	meta, err := d.Extract(context.Background(), bytes.NewReader(data), "a.ogg")
	require.NoError(t, err)

	assert.Equal(t, FormatOgg, meta.Format)
	assert.False(t, meta.Degraded)
	assert.Equal(t, uint64(7000), meta.DurationMs)
	assert.Equal(t, "Chapter Title", meta.Title)
	assert.Equal(t, "Book", meta.Album)
	assert.Equal(t, "Author", meta.Artist)
	assert.Equal(t, []domain.ChapterMark{{StartMs: 0, Name: "One"}, {StartMs: 3000, Name: "Two"}}, meta.Marks)
	assert.Zero(t, prober.calls)
}

func TestDispatcher_ProbesWhenNoChapters(t *testing.T) {
	prober := &fakeProber{result: &ProbeResult{
		DurationMs: 9000,
		Title:      "probed title",
		Artist:     "probed artist",
		Chapters: []domain.ChapterMark{
			{StartMs: 4000, Name: "second"},
			{StartMs: 0, Name: "first"},
		},
	}}
	d := NewDispatcher(prober, nil, nil)

	meta, err := d.Extract(context.Background(), bytes.NewReader(oggFile("TITLE=own title")), "a.ogg")
	require.NoError(t, err)

	assert.Equal(t, 1, prober.calls)
	assert.Equal(t, uint64(7000), meta.DurationMs, "the container duration is kept")
	assert.Equal(t, "own title", meta.Title)
	assert.Equal(t, "probed artist", meta.Artist)
	assert.Equal(t, []domain.ChapterMark{{StartMs: 0, Name: "first"}, {StartMs: 4000, Name: "second"}}, meta.Marks)
}

func TestDispatcher_DegradesOnParseError(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"bad ogg capture", append(oggFile()[:40], []byte("garbage garbage garbage garbage")...)},
		{"truncated ogg", oggFile()[:20]},
		{"bad ebml", []byte{0x1A, 0x45, 0xDF, 0xA3, 0x81, 0x00, 0x18, 0x53, 0x80, 0x67, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := &fakeProber{result: &ProbeResult{DurationMs: 1234}}
			d := NewDispatcher(prober, nil, nil)

			meta, err := d.Extract(context.Background(), bytes.NewReader(tt.data), "x")
			require.NoError(t, err)
			assert.True(t, meta.Degraded)
			assert.Empty(t, meta.Marks)
			assert.Equal(t, uint64(1234), meta.DurationMs)
		})
	}
}

func TestDispatcher_UnknownFormatWithFailingProber(t *testing.T) {
	prober := &fakeProber{err: errors.New("boom")}
	d := NewDispatcher(prober, nil, nil)

	meta, err := d.Extract(context.Background(), bytes.NewReader([]byte("ID3 not parsed here")), "a.mp3")
	require.NoError(t, err)
	assert.Equal(t, FormatUnknown, meta.Format)
	assert.False(t, meta.Degraded)
	assert.Zero(t, meta.DurationMs)
	assert.Empty(t, meta.Marks)
}

func TestDispatcher_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDispatcher(nil, nil, nil).Extract(ctx, bytes.NewReader(oggFile()), "a.ogg")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChainProber(t *testing.T) {
	failing := &fakeProber{err: errors.New("no")}
	empty := &fakeProber{result: &ProbeResult{Title: "empty"}}
	full := &fakeProber{result: &ProbeResult{DurationMs: 10}}

	res, err := ChainProber{failing, empty, full}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), res.DurationMs)

	res, err = ChainProber{failing, empty}.Probe(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "empty", res.Title)

	_, err = ChainProber{failing}.Probe(context.Background(), "x")
	assert.Error(t, err)

	_, err = ChainProber{}.Probe(context.Background(), "x")
	assert.Equal(t, errors.CodeInternal, errors.CodeOf(err))
}

func TestParseFFprobeOutput(t *testing.T) {
	output := []byte(`{
		"chapters": [
			{"id": 0, "start_time": "0.000000", "tags": {"title": "Opening"}},
			{"id": 1, "start_time": "125.500000", "tags": {}}
		],
		"format": {
			"format_name": "mp3",
			"duration": "300.250000",
			"tags": {"TITLE": "Track", "album": "Book", "album_artist": "Author"}
		}
	}`)

	res, err := parseFFprobeOutput(output)
	require.NoError(t, err)

	assert.Equal(t, uint64(300250), res.DurationMs)
	assert.Equal(t, "Track", res.Title)
	assert.Equal(t, "Book", res.Album)
	assert.Equal(t, "Author", res.Artist)
	assert.Equal(t, []domain.ChapterMark{
		{StartMs: 0, Name: "Opening"},
		{StartMs: 125500, Name: "Chapter 2"},
	}, res.Chapters)

	_, err = parseFFprobeOutput([]byte("not json"))
	assert.Error(t, err)
}
