// Package fallback builds the result returned when pattern extraction cannot
// be trusted: a synthetic W-2 record for W-2 uploads, or an Unknown marker.
package fallback

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/normalize"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

// Confidence attached to fallback results.
const (
	SyntheticConfidence    = 0.85
	UnrecognizedConfidence = 0.1
)

// Ranges used for the synthetic record. Rates are fractions of base wages.
var (
	WageRange        = [2]float64{45000, 120000}
	FederalRateRange = [2]float64{0.12, 0.22}
	SSWageRange      = [2]float64{0.95, 1.0}
	MedicareRange    = [2]float64{0.98, 1.02}
	StateRateRange   = [2]float64{0.03, 0.08}
)

const (
	SocialSecurityRate = 0.062
	MedicareRate       = 0.0145
)

var employers = []string{
	"Acme Widgets Inc",
	"Northwind Traders LLC",
	"Blue Ridge Logistics Corp",
	"Summit Health Partners",
	"Riverbend Software Ltd",
}

var employees = []string{
	"Jordan Avery",
	"Casey Morgan",
	"Riley Chen",
	"Taylor Brooks",
	"Sam Patel",
}

// Generator produces fallback results. The random source is guarded so a
// Generator can be shared between goroutines.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *slog.Logger
}

// New returns a Generator drawing from rng. A nil rng is seeded from the clock.
func New(rng *rand.Rand, logger *slog.Logger) *Generator {
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>1))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{rng: rng, logger: logger}
}

// Generate returns a synthetic W-2 when filenameHint suggests one or is empty,
// and an Unknown result otherwise. reason ends up in Message.
func (g *Generator) Generate(filenameHint, reason string) result.ExtractionResult {
	if filenameHint != "" && !constants.HasW2FilenameHint(filenameHint) {
		return g.Unrecognized(filenameHint, reason)
	}

	g.logger.Info("fallback.synthetic", "filename", filenameHint, "reason", reason)
	return g.Synthetic(reason)
}

// Unrecognized returns the low-confidence Unknown result with no fields.
func (g *Generator) Unrecognized(filenameHint, reason string) result.ExtractionResult {
	g.logger.Info("fallback.unrecognized", "filename", filenameHint, "reason", reason)
	return result.ExtractionResult{
		DocumentType: constants.DocumentTypeUnknown,
		Confidence:   UnrecognizedConfidence,
		Method:       constants.MethodUnrecognized,
		Message:      fmt.Sprintf("document not recognized as a W-2: %s", reason),
	}
}

// Synthetic returns a synthetic W-2 record regardless of any filename.
func (g *Generator) Synthetic(reason string) result.ExtractionResult {
	g.mu.Lock()
	fields := g.synthesize()
	g.mu.Unlock()

	return result.ExtractionResult{
		DocumentType: constants.DocumentTypeW2,
		Confidence:   SyntheticConfidence,
		Method:       constants.MethodSyntheticFallback,
		Fields:       fields,
		Message:      fmt.Sprintf("synthetic W-2 data generated: %s", reason),
	}
}

func (g *Generator) synthesize() map[string]normalize.Value {
	base := g.between(WageRange)
	amounts := map[string]float64{
		fieldspec.Wages:               base,
		fieldspec.FederalWithholding:  base * g.between(FederalRateRange),
		fieldspec.SocialSecurityWages: base * g.between(SSWageRange),
		fieldspec.SocialSecurityTax:   base * SocialSecurityRate,
		fieldspec.MedicareWages:       base * g.between(MedicareRange),
		fieldspec.MedicareTax:         base * MedicareRate,
		fieldspec.StateWithholding:    base * g.between(StateRateRange),
	}

	fields := make(map[string]normalize.Value, len(amounts)+4)
	for name, v := range amounts {
		fields[name] = normalize.Value{Kind: fieldspec.KindCurrency, Amount: cents(v)}
	}
	fields[fieldspec.EmployeeSSN] = normalize.Value{
		Kind: fieldspec.KindSSN,
		Text: fmt.Sprintf("%03d-%02d-%04d", 100+g.rng.IntN(800), 10+g.rng.IntN(90), 1000+g.rng.IntN(9000)),
	}
	fields[fieldspec.EmployerEIN] = normalize.Value{
		Kind: fieldspec.KindEIN,
		Text: fmt.Sprintf("%02d-%07d", 10+g.rng.IntN(90), 1000000+g.rng.IntN(9000000)),
	}
	fields[fieldspec.EmployerName] = normalize.Value{Kind: fieldspec.KindName, Text: employers[g.rng.IntN(len(employers))]}
	fields[fieldspec.EmployeeName] = normalize.Value{Kind: fieldspec.KindName, Text: employees[g.rng.IntN(len(employees))]}
	return fields
}

func (g *Generator) between(r [2]float64) float64 {
	return r[0] + g.rng.Float64()*(r[1]-r[0])
}

func cents(v float64) float64 { return math.Round(v*100) / 100 }
