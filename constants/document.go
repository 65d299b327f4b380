package constants

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DocumentType is the classifier's label for a document.
type DocumentType string

const (
	DocumentTypeW2      DocumentType = "W-2"
	DocumentTypeUnknown DocumentType = "Unknown"
)

// Provenance tags written to ExtractionResult.extraction_method.
const (
	MethodPatternMatched    = "pattern-matched"
	MethodSyntheticFallback = "synthetic-fallback"
	MethodUnrecognized      = "unrecognized"
)

// Acquisition methods reported by the OCR adapter.
const (
	AcquirePDFText   = "pdf-text"
	AcquirePDFLayout = "pdf-layout"
	AcquirePDFOCR    = "pdf-ocr"
	AcquireImageOCR  = "image-ocr"
	AcquirePlainText = "plain-text"
)

// reW2Filename matches a standalone "w2" or "w-2" token, so "w2_scan.pdf" and
// "2023 W-2.png" count but "new2019.jpg" and "w22.pdf" do not.
var reW2Filename = regexp.MustCompile(`(^|[^a-z0-9])w-?2([^0-9]|$)`)

// HasW2FilenameHint reports whether the base name of name carries a W-2 hint token.
func HasW2FilenameHint(name string) bool {
	if name == "" {
		return false
	}
	return reW2Filename.MatchString(strings.ToLower(filepath.Base(name)))
}
