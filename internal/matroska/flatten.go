package matroska

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

const nestedPrefix = "+ "

// Flatten turns a chapter tree into marks ordered by start time, visiting
// chapters depth first. Nested chapters are prefixed with "+ " once per
// level. Chapters without a usable name are called "Chapter N", N being the
// 1-based position among their siblings. Marks with equal start times keep
// the order in which they were visited.
//
// A first child usually starts together with its parent, so it is shifted by
// its depth in milliseconds to keep both navigable.
func Flatten(chapters []Chapter, preferredLanguages []string) []domain.ChapterMark {
	prefs := make([]string, 0, len(preferredLanguages))
	for _, p := range preferredLanguages {
		prefs = append(prefs, languageKey(p))
	}

	var marks []domain.ChapterMark
	var walk func(chapters []Chapter, depth int)
	walk = func(chapters []Chapter, depth int) {
		for i, ch := range chapters {
			startMs := ch.StartNs / 1_000_000
			if i == 0 {
				startMs += uint64(depth)
			}
			name, ok := ch.name(prefs)
			if !ok {
				name = fmt.Sprintf("Chapter %d", i+1)
			}
			marks = append(marks, domain.ChapterMark{
				StartMs: startMs,
				Name:    strings.Repeat(nestedPrefix, depth) + name,
			})
			walk(ch.Children, depth+1)
		}
	}
	walk(chapters, 0)

	slices.SortStableFunc(marks, func(a, b domain.ChapterMark) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		}
		return 0
	})
	return marks
}

// name picks the first display matching the earliest preferred language,
// else the first display without any language.
func (ch Chapter) name(prefs []string) (string, bool) {
	for _, pref := range prefs {
		for _, n := range ch.Names {
			for _, l := range n.Languages {
				if languageKey(l) == pref {
					return n.Text, true
				}
			}
		}
	}
	for _, n := range ch.Names {
		if len(n.Languages) == 0 {
			return n.Text, true
		}
	}
	return "", false
}

// languageKey maps ISO 639-2 codes and BCP 47 tags onto one comparable base
// language, so "jpn", "ja" and "ja-JP" compare equal.
func languageKey(code string) string {
	code = strings.TrimSpace(code)
	if tag, err := language.Parse(code); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	return strings.ToLower(code)
}
