package extract

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/score"
)

const minimalW2 = "employee's social security number 123-45-6789 ... " +
	"employer identification number 12-3456789 ... " +
	"1 wages, tips, other compensation 55000 ... " +
	"2 federal income tax withheld 6200"

const fullW2 = `Form W-2 Wage and Tax Statement 2023
employee's social security number 123-45-6789
employer identification number 12-3456789
employer's name Acme Widgets Inc
1 wages, tips, other compensation 55000
2 federal income tax withheld 6200
3 social security wages 55000
4 social security tax withheld 3410
5 medicare wages and tips 55000
6 medicare tax withheld 797.50`

func newExtractor() *Extractor {
	return NewExtractor(Config{}, nil, nil)
}

func amountOf(t *testing.T, ex Extraction, name string) float64 {
	t.Helper()
	f, ok := ex.Fields[name]
	require.True(t, ok, "field %s missing; diagnostics: %v", name, ex.Diagnostics)
	return f.Value.Amount
}

func textOf(t *testing.T, ex Extraction, name string) string {
	t.Helper()
	f, ok := ex.Fields[name]
	require.True(t, ok, "field %s missing; diagnostics: %v", name, ex.Diagnostics)
	return f.Value.Text
}

func TestExtractMinimalW2(t *testing.T) {
	ex := newExtractor().Extract(minimalW2, fieldspec.W2())

	assert.Equal(t, "123-45-6789", textOf(t, ex, fieldspec.EmployeeSSN))
	assert.Equal(t, "12-3456789", textOf(t, ex, fieldspec.EmployerEIN))
	assert.Equal(t, 55000.0, amountOf(t, ex, fieldspec.Wages))
	assert.Equal(t, 6200.0, amountOf(t, ex, fieldspec.FederalWithholding))

	assert.Equal(t, 4, ex.Accepted())
	assert.Equal(t, 11, ex.Total)
	assert.InDelta(t, 4.0/11.0, ex.Confidence(), 1e-12)
	assert.Contains(t, ex.Diagnostics, "employee_name: no reliable extraction")
}

func TestExtractFullW2(t *testing.T) {
	ex := newExtractor().Extract(fullW2, fieldspec.W2())

	assert.Equal(t, "123-45-6789", textOf(t, ex, fieldspec.EmployeeSSN))
	assert.Equal(t, "12-3456789", textOf(t, ex, fieldspec.EmployerEIN))
	assert.Equal(t, "Acme Widgets Inc", textOf(t, ex, fieldspec.EmployerName))
	assert.Equal(t, 55000.0, amountOf(t, ex, fieldspec.Wages))
	assert.Equal(t, 6200.0, amountOf(t, ex, fieldspec.FederalWithholding))
	assert.Equal(t, 55000.0, amountOf(t, ex, fieldspec.SocialSecurityWages))
	assert.Equal(t, 3410.0, amountOf(t, ex, fieldspec.SocialSecurityTax))
	assert.Equal(t, 55000.0, amountOf(t, ex, fieldspec.MedicareWages))
	assert.Equal(t, 797.5, amountOf(t, ex, fieldspec.MedicareTax))

	assert.NotContains(t, ex.Fields, fieldspec.EmployeeName)
	assert.NotContains(t, ex.Fields, fieldspec.StateWithholding)
	assert.InDelta(t, 9.0/11.0, ex.Confidence(), 1e-12)

	for _, f := range ex.Fields {
		assert.Greater(t, f.Confidence, DefaultFieldCutoff, f.Name)
		assert.LessOrEqual(t, f.Confidence, 1.0, f.Name)
	}
}

func TestExtractRejectsMergedWages(t *testing.T) {
	ex := newExtractor().Extract("1 wages, tips, other compensation 3000000", fieldspec.W2())

	assert.NotContains(t, ex.Fields, fieldspec.Wages)
	joined := strings.Join(ex.Diagnostics, "\n")
	assert.Contains(t, joined, `wages "3000000"`)
	assert.Contains(t, joined, "outside")
}

func TestExtractAmountsBrokenByOCRNoise(t *testing.T) {
	ex := newExtractor().Extract("2 federal income tax withheld 6,2OO.00", fieldspec.W2())
	assert.Equal(t, 6200.0, amountOf(t, ex, fieldspec.FederalWithholding))

	// A spaced thousands group is not guessed at; "6" alone would be wrong.
	ex = newExtractor().Extract("2 federal income tax withheld 6 200.00", fieldspec.W2())
	assert.NotContains(t, ex.Fields, fieldspec.FederalWithholding)
	assert.Contains(t, strings.Join(ex.Diagnostics, "\n"),
		`federal_withholding: rule box2_label capture "6" is part of a longer number`)

	ex = newExtractor().Extract("17 state income tax 1,8OO.00", fieldspec.W2())
	assert.Equal(t, 1800.0, amountOf(t, ex, fieldspec.StateWithholding))
}

func TestExtractComposite(t *testing.T) {
	text := "employer identification number FGHU7896901 55000.00 6200.00 " +
		"employee's social security number 123-45-6789"
	ex := newExtractor().Extract(text, fieldspec.W2())

	assert.Equal(t, "FGHU7896901", textOf(t, ex, fieldspec.EmployerEIN))
	assert.Equal(t, 55000.0, amountOf(t, ex, fieldspec.Wages))
	assert.Equal(t, 6200.0, amountOf(t, ex, fieldspec.FederalWithholding))
	for _, name := range compositeTargets {
		assert.Equal(t, CompositeRule, ex.Fields[name].Rule, name)
	}
	assert.Equal(t, "123-45-6789", textOf(t, ex, fieldspec.EmployeeSSN))
}

func TestExtractCompositeIsAtomic(t *testing.T) {
	ex := newExtractor().Extract("ABCD1234567 3000000 6200.00", fieldspec.W2())

	// The merged wage figure spoils the whole composite match.
	assert.Contains(t, strings.Join(ex.Diagnostics, "\n"), "composite")
	assert.NotContains(t, ex.Fields, fieldspec.Wages)
	assert.NotContains(t, ex.Fields, fieldspec.FederalWithholding)

	// The employer id is still found on its own.
	require.Contains(t, ex.Fields, fieldspec.EmployerEIN)
	assert.Equal(t, "ABCD1234567", ex.Fields[fieldspec.EmployerEIN].Value.Text)
	assert.Equal(t, "ein_alpha", ex.Fields[fieldspec.EmployerEIN].Rule)
}

func TestExtractCompositeSkipsCutShortAmount(t *testing.T) {
	ex := newExtractor().Extract("ABCD1234567 55000.00 6,2OO.OO", fieldspec.W2())

	assert.Contains(t, strings.Join(ex.Diagnostics, "\n"), `skipped: 6,200 is part of a longer number`)
	for name, f := range ex.Fields {
		assert.NotEqual(t, CompositeRule, f.Rule, name)
	}
}

func wagesTable(rules ...fieldspec.PatternRule) fieldspec.Table {
	b := fieldspec.WagesBounds
	return fieldspec.Table{{
		Name:   fieldspec.Wages,
		Kind:   fieldspec.KindCurrency,
		Bounds: &b,
		Rules:  rules,
	}}
}

func TestExtractTieKeepsFirstFound(t *testing.T) {
	table := wagesTable(
		fieldspec.PatternRule{Name: "a", Expr: regexp.MustCompile(`a (\d+)`)},
		fieldspec.PatternRule{Name: "b", Expr: regexp.MustCompile(`b (\d+)`)},
	)
	ex := newExtractor().Extract("b 60000 a 55000", table)

	require.Contains(t, ex.Fields, fieldspec.Wages)
	assert.Equal(t, 55000.0, ex.Fields[fieldspec.Wages].Value.Amount)
	assert.Equal(t, "a", ex.Fields[fieldspec.Wages].Rule)
}

func TestExtractHighestScoreWins(t *testing.T) {
	table := wagesTable(
		fieldspec.PatternRule{Name: "a", Expr: regexp.MustCompile(`a (\d+)`)},
		fieldspec.PatternRule{Name: "b", Expr: regexp.MustCompile(`b (\d+)`)},
	)
	// 5000 is plausible (0.7), 60000 is typical (0.8).
	ex := newExtractor().Extract("a 5000 b 60000", table)

	assert.Equal(t, 60000.0, ex.Fields[fieldspec.Wages].Value.Amount)
	assert.Equal(t, "b", ex.Fields[fieldspec.Wages].Rule)
}

func TestExtractCutoffOmitsField(t *testing.T) {
	x := NewExtractor(Config{FieldCutoff: 0.95}, score.New(score.Weights{}), nil)
	ex := x.Extract("1 wages, tips, other compensation 55000", fieldspec.W2())

	assert.NotContains(t, ex.Fields, fieldspec.Wages)
	assert.Contains(t, strings.Join(ex.Diagnostics, "\n"), "wages: best candidate 55000 below cutoff")
}

func TestExtractSurvivesBrokenRule(t *testing.T) {
	table := wagesTable(
		fieldspec.PatternRule{Name: "broken"},
		fieldspec.PatternRule{Name: "ok", Expr: regexp.MustCompile(`a (\d+)`)},
	)
	ex := newExtractor().Extract("a 55000", table)

	assert.Equal(t, 55000.0, ex.Fields[fieldspec.Wages].Value.Amount)
	assert.Contains(t, strings.Join(ex.Diagnostics, "\n"), "rule broken failed")
}

func TestExtractEmptyText(t *testing.T) {
	ex := newExtractor().Extract("", fieldspec.W2())
	assert.Empty(t, ex.Fields)
	assert.Equal(t, 0.0, ex.Confidence())
}

func TestAggregateIsCompletenessRatio(t *testing.T) {
	texts := []string{"", minimalW2, fullW2, "random words 12345", "box 1 55000 box 2 6200 box 17 900"}
	for _, text := range texts {
		ex := newExtractor().Extract(text, fieldspec.W2())
		want := float64(len(ex.Fields)) / float64(len(fieldspec.W2()))
		assert.InDelta(t, want, ex.Confidence(), 1e-12, text)
		assert.GreaterOrEqual(t, ex.Confidence(), 0.0)
		assert.LessOrEqual(t, ex.Confidence(), 1.0)
	}
}
