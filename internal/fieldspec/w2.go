package fieldspec

import "sync"

// W-2 field names, also used as result keys.
const (
	EmployeeSSN         = "employee_ssn"
	EmployerEIN         = "employer_ein"
	EmployerName        = "employer_name"
	EmployeeName        = "employee_name"
	Wages               = "wages"
	FederalWithholding  = "federal_withholding"
	SocialSecurityWages = "social_security_wages"
	SocialSecurityTax   = "social_security_tax"
	MedicareWages       = "medicare_wages"
	MedicareTax         = "medicare_tax"
	StateWithholding    = "state_withholding"
)

// Default amount bounds. OCR often merges adjacent printed numbers, so anything
// outside these is rejected rather than reported.
var (
	WagesBounds       = Bounds{Min: 1000, Max: 300000}
	WithholdingBounds = Bounds{Min: 0, Max: 25000}
	WageBaseBounds    = Bounds{Min: 1000, Max: 200000}
	PayrollTaxBounds  = Bounds{Min: 0, Max: 15000}
)

// AmountPattern captures one printed amount such as "6,200.00", "55000" or "797.50".
// It never ends between two word characters; PatternRule.Amount catches the
// remaining cut-offs at a separator or a space.
const AmountPattern = `(\d{1,3}(?:,\d{3})+(?:\.\d{2})?|\d+(?:\.\d{2})?)(?:\b|$)`

const amount = AmountPattern

// W2 returns the process-wide W-2 field table. It is built once and must be
// treated as read-only.
var W2 = sync.OnceValue(buildW2)

func bounds(b Bounds) *Bounds { return &b }

func buildW2() Table {
	return Table{
		{
			Name: EmployeeSSN, Box: "a", Kind: KindSSN,
			Rules: []PatternRule{
				rule("ssn_label_full", `employee'?s social security number\s*(\d{3}-?\d{2}-?\d{4})`),
				rule("ssn_label", `social security number\s*(\d{3}-?\d{2}-?\d{4})`),
				rule("ssn_abbrev", `\bssn\s*:?\s*(\d{3}-?\d{2}-?\d{4})`),
				rule("ssn_dashed", `\b(\d{3}-\d{2}-\d{4})\b`),
				rule("ssn_bare", `\b(\d{9})\b`),
			},
			ContextKeywords: []string{"social security number"},
		},
		{
			Name: EmployerEIN, Box: "b", Kind: KindEIN,
			Rules: []PatternRule{
				rule("ein_label", `employer identification number\s*([a-z0-9\-]{9,12})`),
				rule("ein_abbrev", `\bein\s*:?\s*([a-z0-9\-]{9,12})`),
				rule("ein_dashed", `\b(\d{2}-\d{7})\b`),
				rule("ein_alpha", `\b([a-z]{2,4}\d{7,9})\b`),
			},
			ContextKeywords: []string{"employer identification"},
		},
		{
			Name: EmployerName, Box: "c", Kind: KindName,
			Rules: []PatternRule{
				rule("employer_name_label", `employer'?s name(?:,? address,? and zip code)?\s*([a-z][a-z\s&.,\-]{1,99})`),
				rule("company_label", `\bcompany\s*:\s*([a-z][a-z\s&.,\-]{1,99})`),
				rule("company_suffix", `((?-i:[A-Z][A-Za-z\s&]{3,50}(?:Inc|LLC|Corp|Company|Co\.|Ltd)\.?))`),
			},
		},
		{
			Name: EmployeeName, Box: "e", Kind: KindName,
			Rules: []PatternRule{
				rule("employee_name_label", `employee'?s name\s*([a-z][a-z\s]{1,49})`),
				rule("first_last_label", `first name and initial\s+last name\s*([a-z][a-z\s]{1,49})`),
				rule("employee_colon", `\bemployee\s*:\s*((?-i:[A-Z][a-z]+\s+[A-Z][a-z]+))`),
			},
		},
		{
			Name: Wages, Box: "1", Kind: KindCurrency, Bounds: bounds(WagesBounds),
			Rules: []PatternRule{
				amountRule("box1_label", `\b1\s+wages,?\s*tips,?\s*other compensation\s*\$?\s*`+amount),
				amountRule("box1", `\bbox\s*1\b[:\s]*\$?\s*`+amount),
				amountRule("wages_compensation", `wages[^0-9]{0,40}?compensation[:\s]*\$?\s*`+amount),
				amountRule("wages_before_withholding", `\b(\d{1,3}(?:,?\d{3})+\.\d{2})\s+(?:2\s+)?\d{1,3}(?:,?\d{3})*\.\d{2}\b`),
			},
			ContextKeywords: []string{"compensation"},
		},
		{
			Name: FederalWithholding, Box: "2", Kind: KindCurrency, Bounds: bounds(WithholdingBounds),
			Rules: []PatternRule{
				amountRule("box2_label", `\b2\s+federal income tax withheld\s*\$?\s*`+amount),
				amountRule("box2", `\bbox\s*2\b[:\s]*\$?\s*`+amount),
				amountRule("federal_withheld", `federal[^0-9]{0,40}?withheld[:\s]*\$?\s*`+amount),
				amountRule("withholding_after_wages", `\b\d{1,3}(?:,?\d{3})+\.\d{2}\s+(?:2\s+)?(\d{1,3}(?:,?\d{3})*\.\d{2})\b`),
			},
			ContextKeywords: []string{"federal", "withh"},
		},
		{
			Name: SocialSecurityWages, Box: "3", Kind: KindCurrency, Bounds: bounds(WageBaseBounds),
			Rules: []PatternRule{
				amountRule("box3_label", `\b3\s+social security wages\s*\$?\s*`+amount),
				amountRule("ss_wages", `social security wages[:\s]*\$?\s*`+amount),
				amountRule("box3", `\bbox\s*3\b[:\s]*\$?\s*`+amount),
			},
			ContextKeywords: []string{"social security"},
		},
		{
			Name: SocialSecurityTax, Box: "4", Kind: KindCurrency, Bounds: bounds(PayrollTaxBounds),
			Rules: []PatternRule{
				amountRule("box4_label", `\b4\s+social security tax withheld\s*\$?\s*`+amount),
				amountRule("ss_tax", `social security tax(?: withheld)?[:\s]*\$?\s*`+amount),
				amountRule("box4", `\bbox\s*4\b[:\s]*\$?\s*`+amount),
			},
			ContextKeywords: []string{"social security"},
		},
		{
			Name: MedicareWages, Box: "5", Kind: KindCurrency, Bounds: bounds(WageBaseBounds),
			Rules: []PatternRule{
				amountRule("box5_label", `\b5\s+medicare wages and tips\s*\$?\s*`+amount),
				amountRule("medicare_wages", `medicare wages(?: and tips)?[:\s]*\$?\s*`+amount),
				amountRule("box5", `\bbox\s*5\b[:\s]*\$?\s*`+amount),
			},
			ContextKeywords: []string{"medicare"},
		},
		{
			Name: MedicareTax, Box: "6", Kind: KindCurrency, Bounds: bounds(PayrollTaxBounds),
			Rules: []PatternRule{
				amountRule("box6_label", `\b6\s+medicare tax withheld\s*\$?\s*`+amount),
				amountRule("medicare_tax", `medicare tax(?: withheld)?[:\s]*\$?\s*`+amount),
				amountRule("box6", `\bbox\s*6\b[:\s]*\$?\s*`+amount),
			},
			ContextKeywords: []string{"medicare"},
		},
		{
			Name: StateWithholding, Box: "17", Kind: KindCurrency, Bounds: bounds(WithholdingBounds),
			Rules: []PatternRule{
				amountRule("box17_label", `\b17\s+state income tax\s*\$?\s*`+amount),
				amountRule("state_tax", `\bstate (?:income )?tax(?: withheld)?[:\s]*\$?\s*`+amount),
				amountRule("box17", `\bbox\s*17\b[:\s]*\$?\s*`+amount),
			},
			ContextKeywords: []string{"state"},
		},
	}
}
