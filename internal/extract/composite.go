package extract

import (
	"fmt"
	"regexp"

	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/normalize"
)

// CompositeRule is the name recorded on fields filled by the composite match.
const CompositeRule = "ein_wages_withholding"

// reComposite finds an alternate employer id printed directly before box 1
// and box 2 on the same line: "FGHU7896901 55000.00 6200.00".
var reComposite = regexp.MustCompile(`(?im)\b([A-Z]{4}\d{7})\s+` + fieldspec.AmountPattern + `\s+` + fieldspec.AmountPattern)

var compositeTargets = [3]string{fieldspec.EmployerEIN, fieldspec.Wages, fieldspec.FederalWithholding}

// composite fills employer id, wages and federal withholding together from the
// first match whose three parts all normalize and clear the cutoff. It returns
// no fields when the table lacks any target or nothing qualifies; skipped
// matches are reported as diagnostics either way.
func (x *Extractor) composite(clean string, table fieldspec.Table) ([]Field, []string) {
	var specs [3]fieldspec.FieldSpec
	for i, name := range compositeTargets {
		fs, ok := table.Lookup(name)
		if !ok {
			return nil, nil
		}
		specs[i] = fs
	}

	var diags []string
	for _, idx := range reComposite.FindAllStringSubmatchIndex(clean, -1) {
		m := make([]string, 4)
		for g := range m {
			m[g] = clean[idx[2*g]:idx[2*g+1]]
		}
		if fieldspec.CutShort(m[3], clean[idx[1]:]) {
			diags = append(diags, fmt.Sprintf("composite %q skipped: %s is part of a longer number", m[0], m[3]))
			continue
		}
		fields := make([]Field, 0, 3)
		for i, spec := range specs {
			raw := m[i+1]
			v, err := normalize.Normalize(raw, spec)
			if err != nil {
				diags = append(diags, fmt.Sprintf("composite %q skipped: %v", m[0], err))
				break
			}
			conf := x.scorer.Score(spec, v, clean)
			if conf <= x.cfg.FieldCutoff {
				diags = append(diags, fmt.Sprintf("composite %q skipped: %s confidence %.2f", m[0], spec.Name, conf))
				break
			}
			fields = append(fields, Field{Name: spec.Name, Value: v, Confidence: conf, Rule: CompositeRule})
		}
		if len(fields) == len(specs) {
			x.logger.Debug("extract.composite.matched", "match", m[0])
			return fields, diags
		}
	}
	return nil, diags
}
