// Package fieldspec holds the static table of extractable W-2 fields: the
// pattern rules tried for each field, its value kind and its plausibility bounds.
package fieldspec

import (
	"fmt"
	"regexp"
)

// ValueKind selects the normalizer applied to a raw capture.
type ValueKind string

const (
	KindCurrency ValueKind = "currency-amount"
	KindSSN      ValueKind = "ssn"
	KindEIN      ValueKind = "ein"
	KindName     ValueKind = "free-text-name"
)

// Bounds is an inclusive range an amount must fall into to be accepted.
type Bounds struct {
	Min float64
	Max float64
}

func (b Bounds) Contains(v float64) bool { return v >= b.Min && v <= b.Max }

func (b Bounds) String() string { return fmt.Sprintf("[%g, %g]", b.Min, b.Max) }

// PatternRule is one regular expression tried against cleaned text. Every
// non-empty capture of every match is a candidate.
type PatternRule struct {
	Name string
	Expr *regexp.Regexp
	// Amount marks rules whose capture is a printed amount. Such a capture is
	// dropped when the text right after it shows the number went on.
	Amount bool
}

// Captures returns the candidate substrings of text in match order. When a
// match has several groups the last non-empty one is used.
func (r PatternRule) Captures(text string) []string {
	kept, _ := r.Candidates(text)
	return kept
}

// Candidates is Captures that also returns the amount captures dropped by
// CutShort.
func (r PatternRule) Candidates(text string) (kept, cut []string) {
	for _, m := range r.Expr.FindAllStringSubmatchIndex(text, -1) {
		for g := len(m)/2 - 1; g >= 1; g-- {
			start, end := m[2*g], m[2*g+1]
			if start < 0 || start == end {
				continue
			}
			c := text[start:end]
			if r.Amount && CutShort(c, text[end:]) {
				cut = append(cut, c)
			} else {
				kept = append(kept, c)
			}
			break
		}
	}
	return kept, cut
}

var (
	reRunsOn         = regexp.MustCompile(`^(?:[.,]\d|[.,]?[OolI])`)
	reShortAmount    = regexp.MustCompile(`^\d{1,3}$`)
	reSpacedThousand = regexp.MustCompile(`^ \d{3}(?:[.,]\d|\s|$)`)
)

// CutShort reports whether capture stops inside a longer printed number, given
// the text that follows it: "6" before ",2OO.00" or before " 200.00".
func CutShort(capture, rest string) bool {
	if reRunsOn.MatchString(rest) {
		return true
	}
	return reShortAmount.MatchString(capture) && reSpacedThousand.MatchString(rest)
}

// FieldSpec describes one extractable field.
type FieldSpec struct {
	Name string
	Box  string
	Kind ValueKind
	// Bounds is nil for non-currency kinds.
	Bounds *Bounds
	Rules  []PatternRule
	// ContextKeywords corroborate a candidate when found anywhere in the text.
	ContextKeywords []string
}

// Table is an ordered, read-only set of field specs.
type Table []FieldSpec

// Lookup returns the spec called name.
func (t Table) Lookup(name string) (FieldSpec, bool) {
	for _, fs := range t {
		if fs.Name == name {
			return fs, true
		}
	}
	return FieldSpec{}, false
}

// Names lists field names in table order.
func (t Table) Names() []string {
	out := make([]string, 0, len(t))
	for _, fs := range t {
		out = append(out, fs.Name)
	}
	return out
}

// WithBounds returns a copy of t where the named fields use the given bounds.
// Unknown names are ignored.
func (t Table) WithBounds(overrides map[string]Bounds) Table {
	out := make(Table, len(t))
	copy(out, t)
	for i := range out {
		if b, ok := overrides[out[i].Name]; ok && out[i].Kind == KindCurrency {
			bb := b
			out[i].Bounds = &bb
		}
	}
	return out
}

// rule compiles expr as a case-insensitive, multi-line pattern.
func rule(name, expr string) PatternRule {
	return PatternRule{Name: name, Expr: regexp.MustCompile(`(?im)` + expr)}
}

func amountRule(name, expr string) PatternRule {
	r := rule(name, expr)
	r.Amount = true
	return r
}
