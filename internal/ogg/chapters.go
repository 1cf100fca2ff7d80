package ogg

import (
	"slices"
	"strconv"
	"strings"

	"github.com/voiceapp/voice-scanner/internal/domain"
)

const chapterPrefix = "CHAPTER"

// Chapters extracts CHAPTERnnn / CHAPTERnnnNAME chapter tags.
//
// Only the contiguous run of indices starting at 1 is considered; everything
// after the first missing index is ignored. If any index in that run lacks its
// time or its name, or carries an unparsable time, no chapters are returned.
// The result is sorted by start time with duplicate start times dropped.
func (vc *VorbisComment) Chapters() []domain.ChapterMark {
	times := make(map[int]string)
	names := make(map[int]string)

	for _, c := range vc.Comments {
		key := strings.ToUpper(c.Key)
		rest, ok := strings.CutPrefix(key, chapterPrefix)
		if !ok {
			continue
		}
		if idx, ok := strings.CutSuffix(rest, "NAME"); ok {
			if n, ok := parseIndex(idx); ok {
				if _, dup := names[n]; !dup {
					names[n] = c.Value
				}
			}
			continue
		}
		if n, ok := parseIndex(rest); ok {
			if _, dup := times[n]; !dup {
				times[n] = c.Value
			}
		}
	}

	count := 0
	for {
		_, hasTime := times[count+1]
		_, hasName := names[count+1]
		if !hasTime && !hasName {
			break
		}
		count++
	}
	if count == 0 {
		return nil
	}

	marks := make([]domain.ChapterMark, 0, count)
	for i := 1; i <= count; i++ {
		ts, hasTime := times[i]
		name, hasName := names[i]
		if !hasTime || !hasName {
			return nil
		}
		startMs, ok := ParseChapterTime(ts)
		if !ok {
			return nil
		}
		marks = append(marks, domain.ChapterMark{StartMs: startMs, Name: name})
	}

	slices.SortStableFunc(marks, func(a, b domain.ChapterMark) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(marks, func(a, b domain.ChapterMark) bool {
		return a.StartMs == b.StartMs
	})
}

func parseIndex(s string) (int, bool) {
	if s == "" || !allDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ParseChapterTime parses HH:MM:SS.mmm into milliseconds. Hours may have any
// number of digits; minutes and seconds must be two-digit values below 60.
// The fractional part is optional and truncated to milliseconds.
func ParseChapterTime(s string) (uint64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, false
	}

	hours, ok := parseUnsigned(parts[0])
	if !ok {
		return 0, false
	}
	minutes, ok := parseTwoDigit(parts[1])
	if !ok {
		return 0, false
	}

	secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
	seconds, ok := parseTwoDigit(secPart)
	if !ok {
		return 0, false
	}

	var millis uint64
	if hasFrac {
		if fracPart == "" || !allDigits(fracPart) {
			return 0, false
		}
		frac := (fracPart + "00")[:3]
		millis, _ = strconv.ParseUint(frac, 10, 64)
	}

	return ((hours*60+minutes)*60+seconds)*1000 + millis, true
}

func parseUnsigned(s string) (uint64, bool) {
	if s == "" || !allDigits(s) {
		return 0, false
	}
	n, err := strconv.ParseUint(s, 10, 64)
	return n, err == nil
}

func parseTwoDigit(s string) (uint64, bool) {
	if len(s) != 2 || !allDigits(s) {
		return 0, false
	}
	n := uint64(s[0]-'0')*10 + uint64(s[1]-'0')
	return n, n < 60
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
