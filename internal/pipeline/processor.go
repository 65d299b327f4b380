// Package pipeline wires acquisition, classification, field extraction and
// fallback into the single processing entry point.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/joseph-ayodele/w2-extractor/constants"
	"github.com/joseph-ayodele/w2-extractor/internal/classify"
	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/extract"
	"github.com/joseph-ayodele/w2-extractor/internal/fallback"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
	"github.com/joseph-ayodele/w2-extractor/internal/score"
)

const (
	DefaultMinTextLength     = 10
	DefaultFallbackThreshold = 0.3
)

// TextSource acquires raw text for a file. It must not fail: unusable input
// yields "". *ocr.Extractor satisfies it.
type TextSource interface {
	GetText(ctx context.Context, path, mediaType string) string
}

// Config holds thresholds and behavior flags for processing. OCREnabled has no
// default: a zero Config disables acquisition.
type Config struct {
	OCREnabled        bool
	MinTextLength     int     // default 10
	FallbackThreshold float64 // default 0.3
	Table             fieldspec.Table
}

// Input describes one document. Text, when set, skips acquisition. Otherwise
// Data is spooled to a temp file, or Path is read directly.
type Input struct {
	Path         string
	Data         []byte
	MediaType    string
	FilenameHint string
	Text         string
}

// Filename is the hint used for classification and fallback decisions.
func (in Input) Filename() string {
	if in.FilenameHint != "" {
		return in.FilenameHint
	}
	if in.Path != "" {
		return filepath.Base(in.Path)
	}
	return ""
}

// Processor runs the pipeline. It holds no per-call state and is safe for
// concurrent use.
type Processor struct {
	cfg        Config
	source     TextSource
	classifier *classify.Classifier
	extractor  *extract.Extractor
	fallback   *fallback.Generator
	logger     *slog.Logger
}

func NewProcessor(
	cfg Config,
	source TextSource,
	classifier *classify.Classifier,
	extractor *extract.Extractor,
	fb *fallback.Generator,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = DefaultFallbackThreshold
	}
	if cfg.Table == nil {
		cfg.Table = fieldspec.W2()
	}
	if classifier == nil {
		classifier = classify.New(classify.Config{}, logger)
	}
	if extractor == nil {
		extractor = extract.NewExtractor(extract.Config{}, score.New(score.Weights{}), logger)
	}
	if fb == nil {
		fb = fallback.New(nil, logger)
	}
	return &Processor{
		cfg:        cfg,
		source:     source,
		classifier: classifier,
		extractor:  extractor,
		fallback:   fb,
		logger:     logger,
	}
}

func (p *Processor) Config() Config { return p.cfg }

// ProcessText runs the pipeline on already acquired text.
func (p *Processor) ProcessText(ctx context.Context, text, filenameHint string) result.ExtractionResult {
	return p.Process(ctx, Input{Text: text, FilenameHint: filenameHint})
}

// Process turns one document into an ExtractionResult. It never fails: every
// problem, including a panic, routes to the fallback generator.
func (p *Processor) Process(ctx context.Context, in Input) (out result.ExtractionResult) {
	start := time.Now()
	ctx, reqID := common.EnsureRequestID(ctx)
	logger := p.logger.With("request_id", reqID)
	hint := in.Filename()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline.process.panic", "panic", r, "stack", string(debug.Stack()))
			out = p.fallback.Generate(hint, "internal error")
			out.Diagnostics = append(out.Diagnostics, fmt.Sprintf("recovered panic: %v", r))
		}
		out.RequestID = reqID
		out.ProcessedAt = start.UTC()
		out.Duration = time.Since(start)
		logger.Info("pipeline.process.ok",
			"filename", hint,
			"document_type", out.DocumentType,
			"method", out.Method,
			"confidence", out.Confidence,
			"fields", len(out.Fields),
			"duration_ms", out.Duration.Milliseconds(),
		)
	}()

	text, ok := p.acquire(ctx, in, logger)
	if !ok {
		return p.fallback.Generate(hint, "text acquisition is disabled")
	}
	return p.analyze(text, hint, logger)
}

// analyze classifies and extracts text that has already been acquired.
func (p *Processor) analyze(text, hint string, logger *slog.Logger) result.ExtractionResult {
	if len(strings.TrimSpace(text)) < p.cfg.MinTextLength {
		logger.Info("pipeline.fallback", "trigger", "no_text", "chars", len(strings.TrimSpace(text)))
		return p.fallback.Generate(hint, "no usable text was acquired")
	}

	cls := p.classifier.Classify(text, hint)
	if !cls.Known() {
		logger.Info("pipeline.fallback", "trigger", "unknown_type", "score", cls.Score)
		// Unknown text stays Unknown, with or without a filename.
		out := p.fallback.Unrecognized(hint, "document type not recognized")
		out.TextSample = result.Sample(text)
		out.Diagnostics = append(out.Diagnostics, cls.Reasons...)
		return out
	}

	ex := p.extractor.Extract(text, p.cfg.Table)
	agg := ex.Confidence()
	if agg < p.cfg.FallbackThreshold {
		logger.Info("pipeline.fallback", "trigger", "low_confidence", "aggregate", agg, "accepted", ex.Accepted())
		out := p.fallback.Synthetic(fmt.Sprintf("aggregate confidence %.2f below %.2f", agg, p.cfg.FallbackThreshold))
		out.Diagnostics = append(out.Diagnostics, ex.Diagnostics...)
		return out
	}

	fields := ex.Values()
	return result.ExtractionResult{
		DocumentType: constants.DocumentTypeW2,
		Confidence:   agg,
		Method:       constants.MethodPatternMatched,
		Fields:       fields,
		Diagnostics:  ex.Diagnostics,
	}
}
