// Package app assembles the extraction components from a common.Config.
package app

import (
	"log/slog"

	"github.com/joseph-ayodele/w2-extractor/internal/async"
	"github.com/joseph-ayodele/w2-extractor/internal/classify"
	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/export"
	"github.com/joseph-ayodele/w2-extractor/internal/extract"
	"github.com/joseph-ayodele/w2-extractor/internal/fallback"
	"github.com/joseph-ayodele/w2-extractor/internal/fieldspec"
	"github.com/joseph-ayodele/w2-extractor/internal/ocr"
	"github.com/joseph-ayodele/w2-extractor/internal/pipeline"
	"github.com/joseph-ayodele/w2-extractor/internal/score"
)

type App struct {
	Config    *common.Config
	OCR       *ocr.Extractor
	Processor *pipeline.Processor
	Exporter  *export.Service
	Logger    *slog.Logger
}

func New(cfg *common.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = common.DefaultConfig()
	}

	ocrx := ocr.NewExtractor(OCRConfig(cfg.OCR), logger)
	table := Table(cfg.Extraction)

	proc := pipeline.NewProcessor(
		pipeline.Config{
			OCREnabled:        cfg.OCR.Enabled,
			MinTextLength:     cfg.Extraction.MinTextLength,
			FallbackThreshold: cfg.Extraction.FallbackThreshold,
			Table:             table,
		},
		ocrx,
		classify.New(classify.Config{Threshold: cfg.Extraction.ClassifyThreshold}, logger),
		extract.NewExtractor(extract.Config{FieldCutoff: cfg.Extraction.FieldCutoff}, score.New(score.Weights{}), logger),
		fallback.New(nil, logger),
		logger,
	)

	return &App{
		Config:    cfg,
		OCR:       ocrx,
		Processor: proc,
		Exporter:  export.NewService(table, logger),
		Logger:    logger,
	}
}

// Table returns the W-2 field table with any configured bound overrides.
func Table(c common.ExtractionConfig) fieldspec.Table {
	if len(c.Bounds) == 0 {
		return fieldspec.W2()
	}
	overrides := make(map[string]fieldspec.Bounds, len(c.Bounds))
	for name, b := range c.Bounds {
		overrides[name] = fieldspec.Bounds{Min: b.Min, Max: b.Max}
	}
	return fieldspec.W2().WithBounds(overrides)
}

// OCRConfig maps the OCR config section onto the acquisition adapter.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Pdftotext:      c.Pdftotext,
		Pdftoppm:       c.Pdftoppm,
		Tesseract:      c.Tesseract,
		TesseractLang:  c.Lang,
		DPI:            c.DPI,
		MaxPages:       c.MaxPages,
		TessdataDir:    c.TessdataDir,
		PSMVariants:    c.PSMVariants,
		OEM:            c.OEM,
		AcquireTimeout: c.Timeout,
	}
}

// NewQueue starts a batch queue over the processor using the Batch section.
func (a *App) NewQueue(handler func(async.Outcome)) *async.ProcessorQueue {
	return async.NewProcessorQueue(a.Processor, a.Logger,
		async.WithWorkers(a.Config.Batch.Workers),
		async.WithQueueSize(a.Config.Batch.QueueSize),
		async.WithProcessTimeout(a.Config.Batch.JobTimeout),
		async.WithResultHandler(handler),
	)
}
