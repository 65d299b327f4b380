package ocr

import (
	"regexp"
	"strings"
)

// qualityKeywords are phrases expected on a readable W-2.
var qualityKeywords = []string{
	"wage and tax statement",
	"w-2",
	"wages tips other compensation",
	"federal income tax withheld",
	"social security",
	"medicare",
	"employer identification",
	"employee",
	"box 1",
	"box 2",
}

var (
	reQualityBox = regexp.MustCompile(`\b(?:box\s*)?([1-9]|1[0-7])\b`)
	reQualitySSN = regexp.MustCompile(`\d{3}-?\d{2}-?\d{4}`)
	reQualityEIN = regexp.MustCompile(`\d{2}-?\d{7}`)
)

// QualityScore rates how much of a W-2 is legible in text, in [0, 1]. It is
// used to choose between OCR passes.
func QualityScore(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	lower := strings.ToLower(text)

	found := 0
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			found++
		}
	}
	score := float64(found) / float64(len(qualityKeywords)) * 0.4

	boxes := map[string]struct{}{}
	for _, m := range reQualityBox.FindAllStringSubmatch(lower, -1) {
		boxes[m[1]] = struct{}{}
	}
	score += min(float64(len(boxes))/10, 0.3)

	if reQualitySSN.MatchString(text) {
		score += 0.15
	}
	if reQualityEIN.MatchString(text) {
		score += 0.15
	}
	return min(score, 1)
}

// NeedsOCR reports whether directly extracted PDF text is too short or too
// garbled to use, so the page should be rendered and OCR'd instead.
func NeedsOCR(text string, minLen int) bool {
	text = strings.TrimSpace(text)
	if len(text) < minLen {
		return true
	}
	if hasGarbledWords(text) {
		return true
	}
	return replacementRatio(text) > 0.05
}

// hasGarbledWords detects text where many of the first 50 words are single
// characters other than digits or punctuation, a sign of broken glyph mapping.
func hasGarbledWords(text string) bool {
	words := strings.Fields(text)
	if len(words) < 20 {
		return false
	}
	sample := min(50, len(words))
	single := 0
	for _, w := range words[:sample] {
		if len(w) != 1 {
			continue
		}
		switch c := w[0]; {
		case c >= '0' && c <= '9':
		case c == '.', c == '-', c == 'X', c == 'x', c == ':', c == '$':
		default:
			single++
		}
	}
	return float64(single)/float64(sample) > 0.4
}

func replacementRatio(text string) float64 {
	total, bad := 0, 0
	for _, r := range text {
		total++
		if r == '\uFFFD' {
			bad++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(bad) / float64(total)
}
