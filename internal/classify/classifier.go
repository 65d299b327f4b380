// Package classify decides whether a text is a W-2 by scoring signature
// phrases, box labels and identifier shapes.
package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/w2-extractor/constants"
)

// DefaultThreshold is the minimum score for a W-2 classification.
const DefaultThreshold = 3

// TitlePhrase is the form title; it weighs StrongWeight.
const (
	TitlePhrase  = "wage and tax statement"
	StrongWeight = 2
)

// Keywords each add one point when present.
var Keywords = []string{
	"w-2",
	"form w-2",
	"wages, tips, other compensation",
	"wages tips other compensation",
	"federal income tax withheld",
	"social security wages",
	"medicare wages and tips",
	"employer identification number",
	"employee's social security number",
}

var (
	reBox      = regexp.MustCompile(`\bbox\s*(\d{1,2})\b`)
	reSSNShape = regexp.MustCompile(`\d{3}-?\d{2}-?\d{4}`)
	reEINShape = regexp.MustCompile(`\d{2}-?\d{7}`)
)

type Config struct {
	Threshold int // default 3
}

// Classification is the classifier verdict with the signals behind it.
type Classification struct {
	Type       constants.DocumentType
	Score      int
	ByFilename bool
	Confidence float64
	Reasons    []string
}

func (c Classification) Known() bool { return c.Type != constants.DocumentTypeUnknown }

type Classifier struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Classify labels text. A filename hint such as "w2_scan.pdf" short-circuits
// to W-2 with full confidence.
func (c *Classifier) Classify(text, filenameHint string) Classification {
	if constants.HasW2FilenameHint(filenameHint) {
		return Classification{
			Type:       constants.DocumentTypeW2,
			ByFilename: true,
			Confidence: 1,
			Reasons:    []string{fmt.Sprintf("filename %q carries a W-2 hint", filenameHint)},
		}
	}

	lower := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	if lower == "" {
		return Classification{Type: constants.DocumentTypeUnknown, Reasons: []string{"no text"}}
	}

	score, reasons := Score(lower)
	out := Classification{
		Type:       constants.DocumentTypeUnknown,
		Score:      score,
		Confidence: min(float64(score)/float64(2*c.cfg.Threshold), 1),
		Reasons:    reasons,
	}
	if score >= c.cfg.Threshold {
		out.Type = constants.DocumentTypeW2
	}
	c.logger.Debug("classify.done", "type", out.Type, "score", score, "threshold", c.cfg.Threshold)
	return out
}

// Score computes the signature score of lowercased, space-collapsed text.
func Score(lower string) (int, []string) {
	var (
		score   int
		reasons []string
	)
	if strings.Contains(lower, TitlePhrase) {
		score += StrongWeight
		reasons = append(reasons, "title: "+TitlePhrase)
	}
	for _, kw := range Keywords {
		if strings.Contains(lower, kw) {
			score++
			reasons = append(reasons, "keyword: "+kw)
		}
	}

	boxes := map[int]struct{}{}
	for _, m := range reBox.FindAllStringSubmatch(lower, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 17 {
			continue
		}
		boxes[n] = struct{}{}
	}
	if len(boxes) > 0 {
		score += len(boxes)
		reasons = append(reasons, fmt.Sprintf("box labels: %d distinct", len(boxes)))
	}

	if n := len(reSSNShape.FindAllString(lower, -1)); n > 0 {
		score += n
		reasons = append(reasons, fmt.Sprintf("ssn-shaped numbers: %d", n))
	}
	if n := len(reEINShape.FindAllString(lower, -1)); n > 0 {
		score += n
		reasons = append(reasons, fmt.Sprintf("ein-shaped numbers: %d", n))
	}
	return score, reasons
}
