package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/w2-extractor/constants"
)

const (
	DefaultAcquireTimeout = 60 * time.Second
	DefaultMinTextLen     = 50
)

// DefaultPSMVariants are the tesseract page segmentation modes tried on images:
// uniform block, single column, fully automatic.
var DefaultPSMVariants = []int{6, 4, 3}

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI for scanned PDFs, default 300
	MaxPages      int    // 0 = no limit

	TessdataDir string
	PSMVariants []int // default 6, 4, 3
	OEM         int   // 1 = LSTM; leave 0 to use default

	// MinTextLen is the shortest direct PDF text accepted without OCR.
	MinTextLen     int
	AcquireTimeout time.Duration
}

// Result is the detailed outcome of one acquisition.
type Result struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE | constants.TEXT
	Method     string // constants.Acquire*
	Language   string
	Duration   time.Duration
	Warnings   []string
	// Quality is the W-2 text quality score of the chosen output, in [0, 1].
	Quality float64
}

type Extractor struct {
	cfg     Config
	runner  Runner
	pdfText func(path string, maxPages int) (string, int, error)
	logger  *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if len(cfg.PSMVariants) == 0 {
		cfg.PSMVariants = DefaultPSMVariants
	}
	if cfg.MinTextLen <= 0 {
		cfg.MinTextLen = DefaultMinTextLen
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = DefaultAcquireTimeout
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, pdfText: directPDFText, logger: logger}
}

// WithRunner replaces the command runner. Used to stub external binaries.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

func (e *Extractor) Config() Config { return e.cfg }

// GetText acquires text for path and never fails: any error, including the
// acquisition timeout, yields "". mediaType wins over the file extension when
// it names a supported format.
func (e *Extractor) GetText(ctx context.Context, path, mediaType string) string {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.AcquireTimeout)
	defer cancel()

	res, err := e.extract(ctx, path, e.formatOf(path, mediaType))
	if err != nil {
		e.logger.Warn("ocr.gettext.failed", "path", path, "media_type", mediaType, "error", err)
		return ""
	}
	e.logger.Info("ocr.gettext.ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"quality", res.Quality,
		"warnings", len(res.Warnings),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res.Text
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	return e.extract(ctx, path, e.formatOf(path, ""))
}

func (e *Extractor) formatOf(path, mediaType string) string {
	if f := constants.MapMediaTypeToFormat(mediaType); f != "" {
		return f
	}
	return constants.MapExtToFormat(constants.NormalizeExt(filepath.Ext(path)))
}

func (e *Extractor) extract(ctx context.Context, path, format string) (Result, error) {
	start := time.Now()
	e.logger.Debug("ocr.extract.start", "path", path, "format", format)

	var (
		res Result
		err error
	)
	switch format {
	case constants.PDF:
		res, err = e.extractPDF(ctx, path)
	case constants.IMAGE:
		res, err = e.extractImage(ctx, path)
	case constants.TEXT:
		res, err = e.extractPlain(path)
	default:
		e.logger.Error("ocr.extract.unsupported", "path", path, "format", format)
		return Result{}, fmt.Errorf("unsupported format for %q", filepath.Base(path))
	}
	res.Duration = time.Since(start)
	return res, err
}

func (e *Extractor) extractPlain(path string) (Result, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{SourceType: constants.TEXT}, fmt.Errorf("read text: %w", err)
	}
	txt := Normalize(strings.ToValidUTF8(string(b), ""))
	return Result{
		Text:       txt,
		Pages:      1,
		SourceType: constants.TEXT,
		Method:     constants.AcquirePlainText,
		Quality:    QualityScore(txt),
	}, nil
}
