// Package score computes per-field and aggregate extraction confidence.
package score

import (
	"regexp"
	"strings"

	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/normalize"
)

var (
	reCanonicalSSN    = regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)
	reCanonicalEIN    = regexp.MustCompile(`^\d{2}-\d{7}$`)
	reCanonicalAltEIN = regexp.MustCompile(`^[A-Z]{4}\d{7}$`)
)

// Weights are the tunable numbers behind the predicates.
type Weights struct {
	Base float64 // default 0.5

	TypicalWages    float64 // wages in TypicalWagesRange, default 0.3
	PlausibleWages  float64 // wages in PlausibleWagesRange only, default 0.2
	TypicalWithhold float64 // withholding in (0, MaxTypicalWithhold], default 0.3
	TypicalWageBase float64 // ss/medicare wages in TypicalWagesRange, default 0.3
	TypicalPayroll  float64 // ss/medicare tax in (0, MaxTypicalPayroll], default 0.3
	CanonicalID     float64 // SSN/EIN in canonical shape, default 0.4
	ContextKeyword  float64 // per keyword found in the text, default 0.1

	TypicalWagesRange   fieldspec.Bounds
	PlausibleWagesRange fieldspec.Bounds
	MaxTypicalWithhold  float64
	MaxTypicalPayroll   float64
}

// DefaultWeights returns the stock tuning.
func DefaultWeights() Weights {
	return Weights{
		Base:                0.5,
		TypicalWages:        0.3,
		PlausibleWages:      0.2,
		TypicalWithhold:     0.3,
		TypicalWageBase:     0.3,
		TypicalPayroll:      0.3,
		CanonicalID:         0.4,
		ContextKeyword:      0.1,
		TypicalWagesRange:   fieldspec.Bounds{Min: 10000, Max: 200000},
		PlausibleWagesRange: fieldspec.Bounds{Min: 1000, Max: 500000},
		MaxTypicalWithhold:  50000,
		MaxTypicalPayroll:   15000,
	}
}

// Input is what a predicate looks at.
type Input struct {
	Spec  fieldspec.FieldSpec
	Value normalize.Value
	// LowerText is the full document text, lowercased.
	LowerText string
}

// Predicate adds Weight when Test holds.
type Predicate struct {
	Name   string
	Weight float64
	Test   func(Input) bool
}

// Fold sums base and the weights of every predicate that holds, clamped to [0, 1].
func Fold(base float64, preds []Predicate, in Input) float64 {
	s := base
	for _, p := range preds {
		if p.Test(in) {
			s += p.Weight
		}
	}
	return clamp(s)
}

// Scorer scores normalized candidates. It is safe for concurrent use.
type Scorer struct {
	w     Weights
	preds []Predicate
}

// New builds a Scorer; a zero Weights uses DefaultWeights.
func New(w Weights) *Scorer {
	if w == (Weights{}) {
		w = DefaultWeights()
	}
	return &Scorer{w: w, preds: predicates(w)}
}

// Weights returns the tuning in use.
func (s *Scorer) Weights() Weights { return s.w }

// Score returns the confidence for v as a value of spec, given the full text.
func (s *Scorer) Score(spec fieldspec.FieldSpec, v normalize.Value, fullText string) float64 {
	in := Input{Spec: spec, Value: v, LowerText: strings.ToLower(fullText)}
	preds := s.preds
	for _, kw := range spec.ContextKeywords {
		preds = append(preds[:len(preds):len(preds)], contextPredicate(kw, s.w.ContextKeyword))
	}
	return Fold(s.w.Base, preds, in)
}

// Aggregate is the completeness ratio accepted/total, 0 when total is 0.
func Aggregate(accepted, total int) float64 {
	if total <= 0 || accepted <= 0 {
		return 0
	}
	if accepted > total {
		accepted = total
	}
	return float64(accepted) / float64(total)
}

func predicates(w Weights) []Predicate {
	return []Predicate{
		{
			Name:   "typical_wages",
			Weight: w.TypicalWages,
			Test: func(in Input) bool {
				return in.Spec.Name == fieldspec.Wages && w.TypicalWagesRange.Contains(in.Value.Amount)
			},
		},
		{
			Name:   "plausible_wages",
			Weight: w.PlausibleWages,
			Test: func(in Input) bool {
				return in.Spec.Name == fieldspec.Wages &&
					!w.TypicalWagesRange.Contains(in.Value.Amount) &&
					w.PlausibleWagesRange.Contains(in.Value.Amount)
			},
		},
		{
			Name:   "typical_withholding",
			Weight: w.TypicalWithhold,
			Test: func(in Input) bool {
				return isField(in, fieldspec.FederalWithholding, fieldspec.StateWithholding) &&
					in.Value.Amount > 0 && in.Value.Amount <= w.MaxTypicalWithhold
			},
		},
		{
			Name:   "typical_wage_base",
			Weight: w.TypicalWageBase,
			Test: func(in Input) bool {
				return isField(in, fieldspec.SocialSecurityWages, fieldspec.MedicareWages) &&
					w.TypicalWagesRange.Contains(in.Value.Amount)
			},
		},
		{
			Name:   "typical_payroll_tax",
			Weight: w.TypicalPayroll,
			Test: func(in Input) bool {
				return isField(in, fieldspec.SocialSecurityTax, fieldspec.MedicareTax) &&
					in.Value.Amount > 0 && in.Value.Amount <= w.MaxTypicalPayroll
			},
		},
		{
			Name:   "canonical_ssn",
			Weight: w.CanonicalID,
			Test: func(in Input) bool {
				return in.Spec.Kind == fieldspec.KindSSN && reCanonicalSSN.MatchString(in.Value.Text)
			},
		},
		{
			Name:   "canonical_ein",
			Weight: w.CanonicalID,
			Test: func(in Input) bool {
				return in.Spec.Kind == fieldspec.KindEIN &&
					(reCanonicalEIN.MatchString(in.Value.Text) || reCanonicalAltEIN.MatchString(in.Value.Text))
			},
		},
	}
}

func contextPredicate(keyword string, weight float64) Predicate {
	kw := strings.ToLower(keyword)
	return Predicate{
		Name:   "context:" + kw,
		Weight: weight,
		Test:   func(in Input) bool { return strings.Contains(in.LowerText, kw) },
	}
}

func isField(in Input, names ...string) bool {
	for _, n := range names {
		if in.Spec.Name == n {
			return true
		}
	}
	return false
}

func clamp(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
