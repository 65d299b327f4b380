package server

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/w2-extractor/internal/ocr"
	"github.com/joseph-ayodele/w2-extractor/internal/pipeline"
)

const w2Text = `Form W-2 Wage and Tax Statement
Employee's social security number 123-45-6789
Employer identification number 12-3456789
Box 1 Wages, tips, other compensation 55000.00
Box 2 Federal income tax withheld 6200.00
Box 3 Social security wages 55000.00
Box 4 Social security tax withheld 3410.00
Box 5 Medicare wages and tips 55000.00
Box 6 Medicare tax withheld 797.50`

// stubSource returns w2Text for every path and records what it was asked for.
type stubSource struct {
	mu    sync.Mutex
	exts  []string
	types []string
}

func (s *stubSource) GetText(_ context.Context, path, mediaType string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exts = append(s.exts, filepath.Ext(path))
	s.types = append(s.types, mediaType)
	return w2Text
}

type stubDiag struct{}

func (stubDiag) Diagnose(context.Context) ocr.Diagnostics {
	return ocr.Diagnostics{
		Tools: []ocr.ToolStatus{
			{Name: "tesseract", Binary: "tesseract", Version: "tesseract 5.3.0"},
			{Name: "pdftotext", Binary: "pdftotext", Error: "executable file not found"},
		},
		Languages:   []string{"eng", "osd"},
		Language:    "eng",
		LanguageOK:  true,
		PSMVariants: []int{6, 4, 3},
	}
}

func newTestProcessor() (*pipeline.Processor, *stubSource) {
	src := &stubSource{}
	return pipeline.NewProcessor(pipeline.Config{OCREnabled: true}, src, nil, nil, nil, nil), src
}
