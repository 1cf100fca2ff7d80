package matroska

import (
	"io"
	"math"
	"strings"

	"github.com/voiceapp/voice-scanner/internal/errors"
)

const (
	defaultTimecodeScale = 1_000_000
	// defaultDocType applies when the EBML header carries no DocType.
	defaultDocType = "matroska"
)

// Name is one ChapterDisplay of a chapter atom.
type Name struct {
	Text      string
	Languages []string
}

// Chapter is a visible chapter atom of the selected edition.
type Chapter struct {
	Names    []Name
	Children []Chapter
	StartNs  uint64
}

// File holds what Read extracts from a Matroska or WebM file.
type File struct {
	// Tags maps upper-cased SimpleTag names to their first value.
	Tags       map[string]string
	Title      string
	DocType    string
	Chapters   []Chapter
	DurationMs uint64
}

// ReadChapters returns the chapter tree of the selected edition.
func ReadChapters(r io.ReadSeeker) ([]Chapter, error) {
	f, err := Read(r)
	if err != nil {
		return nil, err
	}
	return f.Chapters, nil
}

// Read walks the top level of the segment, decoding Info, Chapters and Tags
// and skipping everything else. The EBML header must be the first element
// and the Segment the second.
func Read(r io.ReadSeeker) (*File, error) {
	er, err := newEBMLReader(r)
	if err != nil {
		return nil, err
	}

	header, err := er.next()
	if err != nil {
		return nil, truncatedOr(err)
	}
	if header.id != idEBML {
		return nil, invalid("first element 0x%X is not an EBML header", header.id)
	}
	f := &File{Tags: make(map[string]string)}
	if err := er.children(header.end(math.MaxInt64), func(el element, _ int64) error {
		if el.id != idDocType {
			return nil
		}
		f.DocType, err = er.readString(el)
		return err
	}); err != nil {
		return nil, err
	}
	if f.DocType == "" {
		f.DocType = defaultDocType
	}
	if f.DocType != "matroska" && f.DocType != "webm" {
		return nil, invalid("unsupported doc type %q", f.DocType)
	}
	if err := er.seek(header.end(math.MaxInt64)); err != nil {
		return nil, truncatedOr(err)
	}

	segment, err := er.next()
	if err != nil {
		return nil, truncatedOr(err)
	}
	if segment.id != idSegment {
		return nil, invalid("second element 0x%X is not a segment", segment.id)
	}

	var (
		scale    uint64 = defaultTimecodeScale
		duration float64
	)
	err = er.children(segment.end(math.MaxInt64), func(el element, end int64) error {
		switch el.id {
		case idInfo:
			return er.children(end, func(el element, _ int64) error {
				var err error
				switch el.id {
				case idTimecodeScale:
					scale, err = er.readUint(el)
				case idDuration:
					duration, err = er.readFloat(el)
				case idTitle:
					f.Title, err = er.readString(el)
				}
				return err
			})
		case idChapters:
			chapters, err := er.readChapters(end)
			if err != nil {
				return err
			}
			f.Chapters = chapters
		case idTags:
			return er.readTags(end, f.Tags)
		case idCluster:
			if el.size == unknownSize {
				// Clusters of unknown size run to the end of the segment and
				// nothing we need follows them.
				return errStop
			}
		}
		return nil
	})
	if err != nil && err != errStop {
		return nil, err
	}

	if scale == 0 {
		scale = defaultTimecodeScale
	}
	if duration > 0 {
		f.DurationMs = uint64(duration * float64(scale) / 1e6)
	}
	return f, nil
}

var errStop = errors.New("stop")

// readChapters selects one edition: a later default edition replaces the
// current choice, otherwise the first visible edition is kept. Hidden and
// ordered editions are never selected.
func (er *ebmlReader) readChapters(end int64) ([]Chapter, error) {
	var chapters []Chapter
	err := er.children(end, func(el element, end int64) error {
		if el.id != idEditionEntry {
			return nil
		}
		candidate, isDefault, err := er.readEdition(end)
		if err != nil {
			return err
		}
		if candidate != nil && (len(chapters) == 0 || isDefault) {
			chapters = candidate
		}
		return nil
	})
	return chapters, err
}

func (er *ebmlReader) readEdition(end int64) (chapters []Chapter, isDefault bool, err error) {
	var hidden, ordered bool
	err = er.children(end, func(el element, end int64) error {
		switch el.id {
		case idEditionFlagHidden:
			v, err := er.readUint(el)
			hidden = v == 1
			return err
		case idEditionFlagDefault:
			v, err := er.readUint(el)
			isDefault = v == 1
			return err
		case idEditionFlagOrdered:
			v, err := er.readUint(el)
			ordered = v == 1
			return err
		case idChapterAtom:
			ch, err := er.readAtom(end)
			if err != nil {
				return err
			}
			if ch != nil {
				chapters = append(chapters, *ch)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if hidden || ordered {
		return nil, isDefault, nil
	}
	return chapters, isDefault, nil
}

// readAtom returns nil for a hidden atom.
func (er *ebmlReader) readAtom(end int64) (*Chapter, error) {
	var (
		ch       Chapter
		hasStart bool
		hidden   bool
	)
	err := er.children(end, func(el element, end int64) error {
		switch el.id {
		case idChapterTimeStart:
			v, err := er.readUint(el)
			ch.StartNs, hasStart = v, true
			return err
		case idChapterFlagHidden:
			v, err := er.readUint(el)
			hidden = v == 1
			return err
		case idChapterDisplay:
			name, err := er.readDisplay(end)
			if err != nil {
				return err
			}
			ch.Names = append(ch.Names, name)
		case idChapterAtom:
			child, err := er.readAtom(end)
			if err != nil {
				return err
			}
			if child != nil {
				ch.Children = append(ch.Children, *child)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !hasStart {
		return nil, invalid("chapter atom without ChapterTimeStart")
	}
	if hidden {
		return nil, nil
	}
	return &ch, nil
}

func (er *ebmlReader) readDisplay(end int64) (Name, error) {
	var (
		name    Name
		hasText bool
	)
	err := er.children(end, func(el element, _ int64) error {
		switch el.id {
		case idChapString:
			s, err := er.readString(el)
			name.Text, hasText = s, true
			return err
		case idChapLanguage, idChapLanguageIETF:
			s, err := er.readString(el)
			if s != "" {
				name.Languages = append(name.Languages, s)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return Name{}, err
	}
	if !hasText {
		return Name{}, invalid("chapter display without ChapString")
	}
	return name, nil
}

func (er *ebmlReader) readTags(end int64, tags map[string]string) error {
	return er.children(end, func(el element, end int64) error {
		if el.id != idTag {
			return nil
		}
		return er.children(end, func(el element, end int64) error {
			if el.id != idSimpleTag {
				return nil
			}
			var key, value string
			if err := er.children(end, func(el element, _ int64) error {
				var err error
				switch el.id {
				case idTagName:
					key, err = er.readString(el)
				case idTagString:
					value, err = er.readString(el)
				}
				return err
			}); err != nil {
				return err
			}
			key = strings.ToUpper(strings.TrimSpace(key))
			if _, dup := tags[key]; key != "" && value != "" && !dup {
				tags[key] = value
			}
			return nil
		})
	})
}
