// Package extract runs the field table against document text and keeps the
// highest-confidence normalized candidate per field.
package extract

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/normalize"
	"github.com/joseph-ayodele/w2-extractor/internal/score"
)

// DefaultFieldCutoff is the confidence a winning candidate must exceed to be kept.
const DefaultFieldCutoff = 0.4

type Config struct {
	FieldCutoff float64 // default 0.4
}

// Field is one accepted extraction. Immutable once built.
type Field struct {
	Name       string
	Value      normalize.Value
	Confidence float64
	Rule       string
}

// Extraction is the outcome of running a table over one text.
type Extraction struct {
	Fields      map[string]Field
	Diagnostics []string
	// Total is the number of fields the table defines.
	Total int
}

// Accepted is the number of fields that survived.
func (e Extraction) Accepted() int { return len(e.Fields) }

// Confidence is the aggregate completeness ratio.
func (e Extraction) Confidence() float64 { return score.Aggregate(e.Accepted(), e.Total) }

// Values returns the accepted values keyed by field name.
func (e Extraction) Values() map[string]normalize.Value {
	out := make(map[string]normalize.Value, len(e.Fields))
	for name, f := range e.Fields {
		out[name] = f.Value
	}
	return out
}

type Extractor struct {
	cfg    Config
	scorer *score.Scorer
	logger *slog.Logger
}

func NewExtractor(cfg Config, scorer *score.Scorer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FieldCutoff <= 0 {
		cfg.FieldCutoff = DefaultFieldCutoff
	}
	if scorer == nil {
		scorer = score.New(score.Weights{})
	}
	return &Extractor{cfg: cfg, scorer: scorer, logger: logger}
}

// Extract cleans text and runs every field of table against it. It never fails:
// rejected candidates and misbehaving rules become diagnostics.
func (x *Extractor) Extract(text string, table fieldspec.Table) Extraction {
	clean := Clean(text)
	out := Extraction{Fields: map[string]Field{}, Total: len(table)}

	exempt := map[string]bool{}
	fields, diags := x.composite(clean, table)
	out.Diagnostics = append(out.Diagnostics, diags...)
	for _, f := range fields {
		out.Fields[f.Name] = f
		exempt[f.Name] = true
		out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("%s: %s (confidence %.2f, rule %s)", f.Name, f.Value, f.Confidence, f.Rule))
	}

	for _, spec := range table {
		if exempt[spec.Name] {
			continue
		}
		best, found, diags := x.bestCandidate(spec, clean)
		out.Diagnostics = append(out.Diagnostics, diags...)
		switch {
		case !found:
			out.Diagnostics = append(out.Diagnostics, spec.Name+": no reliable extraction")
		case best.Confidence <= x.cfg.FieldCutoff:
			out.Diagnostics = append(out.Diagnostics,
				fmt.Sprintf("%s: best candidate %s below cutoff (confidence %.2f)", spec.Name, best.Value, best.Confidence))
		default:
			out.Fields[spec.Name] = best
			out.Diagnostics = append(out.Diagnostics,
				fmt.Sprintf("%s: %s (confidence %.2f, rule %s)", spec.Name, best.Value, best.Confidence, best.Rule))
		}
	}

	x.logger.Debug("extract.fields.done",
		"accepted", out.Accepted(),
		"total", out.Total,
		"confidence", out.Confidence(),
	)
	return out
}

// bestCandidate tries every rule of spec. The strictly highest score wins, so
// ties keep the first candidate found.
func (x *Extractor) bestCandidate(spec fieldspec.FieldSpec, clean string) (Field, bool, []string) {
	var (
		best  Field
		found bool
		diags []string
	)
	for _, rule := range spec.Rules {
		caps, cut, err := safeCaptures(rule, clean)
		if err != nil {
			x.logger.Warn("extract.rule.failed", "field", spec.Name, "rule", rule.Name, "error", err)
			diags = append(diags, fmt.Sprintf("%s: rule %s failed: %v", spec.Name, rule.Name, err))
			continue
		}
		for _, raw := range cut {
			x.logger.Debug("extract.field.cut_short", "field", spec.Name, "rule", rule.Name, "raw", raw)
			diags = append(diags, fmt.Sprintf("%s: rule %s capture %q is part of a longer number", spec.Name, rule.Name, raw))
		}
		for _, raw := range caps {
			v, err := normalize.Normalize(raw, spec)
			if err != nil {
				if errors.Is(err, normalize.ErrRejected) {
					x.logger.Debug("extract.field.rejected", "field", spec.Name, "rule", rule.Name, "raw", raw, "reason", err)
				}
				diags = append(diags, err.Error())
				continue
			}
			conf := x.scorer.Score(spec, v, clean)
			if !found || conf > best.Confidence {
				best = Field{Name: spec.Name, Value: v, Confidence: conf, Rule: rule.Name}
				found = true
			}
		}
	}
	return best, found, diags
}

func safeCaptures(rule fieldspec.PatternRule, text string) (caps, cut []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if rule.Expr == nil {
		return nil, nil, errors.New("rule has no expression")
	}
	caps, cut = rule.Candidates(text)
	return caps, cut, nil
}
