// Package normalize turns raw pattern captures into typed, range-checked values.
package normalize

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
)

// ErrRejected marks a candidate that is unusable. It is not a processing failure.
var ErrRejected = errors.New("candidate rejected")

// Name length limits after trimming.
const (
	MinNameLen = 2
	MaxNameLen = 100
)

var (
	reNonAmount   = regexp.MustCompile(`[^\d.]`)
	reNonDigit    = regexp.MustCompile(`\D`)
	reAltEIN      = regexp.MustCompile(`^[A-Z]{4}\d{7}$`)
	reNumericEIN  = regexp.MustCompile(`^\d{2}-?\d{7}`)
	reInnerSpaces = regexp.MustCompile(`\s+`)
)

// Value is a normalized field value.
type Value struct {
	Kind   fieldspec.ValueKind
	Amount float64 // currency only
	Text   string  // ssn, ein, name
}

// String returns the canonical text form. Normalizing it again yields the same Value.
func (v Value) String() string {
	if v.Kind == fieldspec.KindCurrency {
		return strconv.FormatFloat(v.Amount, 'f', -1, 64)
	}
	return v.Text
}

// Any returns the JSON-friendly form: float64 for amounts, string otherwise.
func (v Value) Any() any {
	if v.Kind == fieldspec.KindCurrency {
		return v.Amount
	}
	return v.Text
}

// Normalize converts raw into a Value of spec.Kind, or returns an error wrapping
// ErrRejected.
func Normalize(raw string, spec fieldspec.FieldSpec) (Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Value{}, reject(spec, raw, "empty capture")
	}
	switch spec.Kind {
	case fieldspec.KindCurrency:
		return normalizeAmount(raw, spec)
	case fieldspec.KindSSN:
		return normalizeSSN(raw, spec)
	case fieldspec.KindEIN:
		return normalizeEIN(raw, spec)
	case fieldspec.KindName:
		return normalizeName(raw, spec)
	default:
		return Value{}, reject(spec, raw, fmt.Sprintf("unknown kind %q", spec.Kind))
	}
}

// CleanAmount strips everything but digits and dots. When several dots remain,
// the first is kept as the decimal separator.
func CleanAmount(raw string) string {
	cleaned := reNonAmount.ReplaceAllString(raw, "")
	if strings.Count(cleaned, ".") > 1 {
		parts := strings.Split(cleaned, ".")
		cleaned = parts[0] + "." + strings.Join(parts[1:], "")
	}
	return cleaned
}

func normalizeAmount(raw string, spec fieldspec.FieldSpec) (Value, error) {
	cleaned := CleanAmount(raw)
	if cleaned == "" || cleaned == "." {
		return Value{}, reject(spec, raw, "no digits")
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return Value{}, reject(spec, raw, "not a number")
	}
	f = math.Round(f*100) / 100
	if spec.Bounds != nil && !spec.Bounds.Contains(f) {
		return Value{}, reject(spec, raw, fmt.Sprintf("%s outside %s", strconv.FormatFloat(f, 'f', -1, 64), spec.Bounds))
	}
	return Value{Kind: fieldspec.KindCurrency, Amount: f}, nil
}

func normalizeSSN(raw string, spec fieldspec.FieldSpec) (Value, error) {
	digits := reNonDigit.ReplaceAllString(raw, "")
	if len(digits) != 9 {
		return Value{}, reject(spec, raw, fmt.Sprintf("want 9 digits, got %d", len(digits)))
	}
	return Value{Kind: fieldspec.KindSSN, Text: digits[:3] + "-" + digits[3:5] + "-" + digits[5:]}, nil
}

func normalizeEIN(raw string, spec fieldspec.FieldSpec) (Value, error) {
	s := strings.ToUpper(raw)
	if reAltEIN.MatchString(s) {
		return Value{Kind: fieldspec.KindEIN, Text: s}, nil
	}
	if reNumericEIN.MatchString(s) {
		if digits := reNonDigit.ReplaceAllString(s, ""); len(digits) == 9 {
			return Value{Kind: fieldspec.KindEIN, Text: digits[:2] + "-" + digits[2:]}, nil
		}
	}
	if len(s) < 9 {
		return Value{}, reject(spec, raw, "too short for an employer id")
	}
	return Value{Kind: fieldspec.KindEIN, Text: s}, nil
}

func normalizeName(raw string, spec fieldspec.FieldSpec) (Value, error) {
	s := strings.TrimRight(strings.TrimSpace(reInnerSpaces.ReplaceAllString(raw, " ")), " ,-")
	if n := len([]rune(s)); n < MinNameLen || n > MaxNameLen {
		return Value{}, reject(spec, raw, fmt.Sprintf("name length %d outside [%d, %d]", n, MinNameLen, MaxNameLen))
	}
	return Value{Kind: fieldspec.KindName, Text: s}, nil
}

func reject(spec fieldspec.FieldSpec, raw, why string) error {
	return fmt.Errorf("%w: %s %q: %s", ErrRejected, spec.Name, raw, why)
}
