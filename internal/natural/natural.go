// Package natural orders file names the way people read them: runs of digits
// compare by numeric value and letters compare without regard to case.
package natural

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Compare returns -1, 0 or +1 depending on whether a sorts before, together
// with or after b. "Chapter 2" sorts before "chapter 10". Strings that only
// differ by case, normalization or leading zeros are ordered by their raw
// bytes, so Compare is a total order and sorting is deterministic.
func Compare(a, b string) int {
	if c := compareFolded(fold(a), fold(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Less reports whether a sorts before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

func fold(s string) string {
	// A Caser is stateful and must not be shared.
	return cases.Fold().String(norm.NFC.String(s))
}

func compareFolded(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if isDigit(a[i]) && isDigit(b[j]) {
			ni := digitRun(a, i)
			nj := digitRun(b, j)
			if c := compareNumbers(a[i:ni], b[j:nj]); c != 0 {
				return c
			}
			i, j = ni, nj
			continue
		}

		ra, sa := utf8.DecodeRuneInString(a[i:])
		rb, sb := utf8.DecodeRuneInString(b[j:])
		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		i += sa
		j += sb
	}

	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	}
	return 0
}

// compareNumbers compares two digit runs by value without converting them,
// so runs of any length are supported.
func compareNumbers(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return strings.Compare(a, b)
}

func digitRun(s string, i int) int {
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
