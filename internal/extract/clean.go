package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// allowedPunct is kept by Clean next to letters, digits and whitespace.
const allowedPunct = "-.,'&:$/"

var reSpaceRun = regexp.MustCompile(`\s+`)

// Clean returns the copy of text that patterns run against:
//   - NFKC folded (full-width digits, ligatures)
//   - glyphs outside the allow-list replaced by spaces
//   - runs of O/o/l/I inside a number read as digits
//   - whitespace collapsed to single spaces
//
// Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	if text == "" {
		return ""
	}
	s := norm.NFKC.String(text)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '‘', '’', 'ʼ', '`':
			return '\''
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(allowedPunct, r) {
			return r
		}
		return ' '
	}, s)
	s = fixDigitArtifacts(s)
	s = reSpaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// fixDigitArtifacts rewrites runs of letters commonly misread for digits when
// the run sits inside a number: "55O00" -> "55000", "6,2OO.00" -> "6,200.00",
// "1,OOO.00" -> "1,000.00". It repeats until nothing changes.
func fixDigitArtifacts(s string) string {
	rs := []rune(s)
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(rs); {
			if lookalikeDigit(rs[i]) == 0 {
				i++
				continue
			}
			j := i
			for j < len(rs) && lookalikeDigit(rs[j]) != 0 {
				j++
			}
			if insideNumber(rs, i, j) {
				for k := i; k < j; k++ {
					rs[k] = lookalikeDigit(rs[k])
				}
				changed = true
			}
			i = j
		}
	}
	return string(rs)
}

// insideNumber reports whether rs[i:j] is bounded by a digit on one side and a
// digit or separator on the other, or by separators that each touch a digit.
func insideNumber(rs []rune, i, j int) bool {
	if i == 0 || j == len(rs) {
		return false
	}
	left, right := rs[i-1], rs[j]
	switch {
	case isASCIIDigit(left) && (isASCIIDigit(right) || isSeparator(right)):
		return true
	case isASCIIDigit(right) && isSeparator(left):
		return i >= 2 && isASCIIDigit(rs[i-2])
	case isSeparator(left) && isSeparator(right):
		return i >= 2 && isASCIIDigit(rs[i-2]) && j+1 < len(rs) && isASCIIDigit(rs[j+1])
	}
	return false
}

func lookalikeDigit(r rune) rune {
	switch r {
	case 'O', 'o':
		return '0'
	case 'l', 'I':
		return '1'
	}
	return 0
}

func isSeparator(r rune) bool { return r == '.' || r == ',' }

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }
