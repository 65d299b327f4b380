package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/w2-extractor/internal/app"
	"github.com/joseph-ayodele/w2-extractor/internal/classify"
	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/pipeline"
)

func main() {
	fs := common.NewFlagSet("runocr")
	diagnose := fs.Bool("diagnose", false, "print the OCR toolchain self-test and exit")
	cfg, err := common.LoadConfig(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "runocr: %v\n", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stderr, cfg.LogLevel, false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OCR.Timeout*2)
	defer cancel()

	a := app.New(cfg, logger)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *diagnose {
		d := a.OCR.Diagnose(ctx)
		_ = enc.Encode(struct {
			Ready bool `json:"ready"`
			Data  any  `json:"diagnostics"`
		}{d.Ready(), d})
		if !d.Ready() {
			os.Exit(1)
		}
		return
	}

	if fs.NArg() != 1 {
		logger.Error("usage", "cmd", "runocr [--diagnose] <file>")
		os.Exit(2)
	}
	path := fs.Arg(0)

	res, err := a.OCR.Extract(ctx, path)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "error", err)
		os.Exit(1)
	}
	logger.Info("text extraction OK",
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"quality", res.Quality,
		"duration_ms", res.Duration.Milliseconds(),
	)

	cls := classify.New(classify.Config{Threshold: cfg.Extraction.ClassifyThreshold}, logger).
		Classify(res.Text, filepath.Base(path))
	out := a.Processor.Process(ctx, pipeline.Input{Text: res.Text, FilenameHint: filepath.Base(path)})

	fmt.Println("----- text -----")
	fmt.Println(res.Text)
	fmt.Println("----- classification -----")
	_ = enc.Encode(cls)
	fmt.Println("----- result -----")
	_ = enc.Encode(out)
}
