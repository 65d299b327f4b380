package ocr

import (
	"context"
	"strings"
)

// ToolStatus is the probe result of one external binary.
type ToolStatus struct {
	Name    string `json:"name"`
	Binary  string `json:"binary"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (t ToolStatus) OK() bool { return t.Error == "" }

// Diagnostics is the acquisition self-test report.
type Diagnostics struct {
	Tools        []ToolStatus `json:"tools"`
	Languages    []string     `json:"languages"`
	Language     string       `json:"language"`
	LanguageOK   bool         `json:"language_ok"`
	PSMVariants  []int        `json:"psm_variants"`
	DirectPDFLib string       `json:"direct_pdf_lib"`
}

// Ready reports whether image OCR can run with the configured language.
func (d Diagnostics) Ready() bool {
	for _, t := range d.Tools {
		if t.Name == "tesseract" && !t.OK() {
			return false
		}
	}
	return d.LanguageOK
}

// Diagnose probes the external OCR toolchain.
func (e *Extractor) Diagnose(ctx context.Context) Diagnostics {
	d := Diagnostics{
		Language:     e.cfg.TesseractLang,
		PSMVariants:  e.cfg.PSMVariants,
		DirectPDFLib: "github.com/ledongthuc/pdf",
	}
	d.Tools = []ToolStatus{
		e.probe(ctx, "tesseract", e.cfg.Tesseract, "--version"),
		e.probe(ctx, "pdftotext", e.cfg.Pdftotext, "-v"),
		e.probe(ctx, "pdftoppm", e.cfg.Pdftoppm, "-v"),
	}

	if out, _, err := e.runner.Run(ctx, e.cfg.Tesseract, "--list-langs"); err == nil {
		d.Languages = parseLangs(string(out))
	}
	for _, l := range d.Languages {
		if l == e.cfg.TesseractLang {
			d.LanguageOK = true
		}
	}
	e.logger.Info("ocr.diagnose.done", "ready", d.Ready(), "languages", len(d.Languages))
	return d
}

func (e *Extractor) probe(ctx context.Context, name, bin string, args ...string) ToolStatus {
	st := ToolStatus{Name: name, Binary: bin}
	out, errb, err := e.runner.Run(ctx, bin, args...)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	// poppler prints its version on stderr, tesseract on stdout
	st.Version = firstLine(string(out))
	if st.Version == "" {
		st.Version = firstLine(string(errb))
	}
	return st
}

// parseLangs reads `tesseract --list-langs`, whose first line is a header.
func parseLangs(out string) []string {
	var langs []string
	for _, ln := range strings.Split(out, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(strings.ToLower(ln), "list of available") {
			continue
		}
		langs = append(langs, ln)
	}
	return langs
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
