package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joseph-ayodele/w2-extractor/internal/app"
	"github.com/joseph-ayodele/w2-extractor/internal/batch"
	"github.com/joseph-ayodele/w2-extractor/internal/common"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	fs := common.NewFlagSet("w2-batch")
	var (
		dir        = fs.String("dir", "", "directory to process W-2 documents from (required)")
		out        = fs.String("out", "", "output XLSX file path (defaults to w2-results.xlsx next to --dir)")
		jsonl      = fs.String("jsonl", "", "optional JSON lines output path")
		watch      = fs.Bool("watch", false, "keep watching --dir for new files until interrupted")
		skipHidden = fs.Bool("skip-hidden", true, "skip hidden files and directories")
		debounce   = fs.Duration("debounce", 500*time.Millisecond, "watch mode: coalesce rapid writes")
	)
	cfg, err := common.LoadConfig(fs, os.Args[1:])
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}
	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(2)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "w2-results.xlsx")
	}

	logger := common.NewLogger(os.Stdout, cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := batch.NewRunner(app.New(cfg, logger), nil)
	opts := batch.Options{
		Root:       *dir,
		SkipHidden: *skipHidden,
		XLSXPath:   *out,
		JSONLPath:  *jsonl,
		Debounce:   *debounce,
	}

	var sum batch.Summary
	if *watch {
		logger.Info("watching", "dir", *dir)
		sum, err = runner.Watch(ctx, opts)
	} else {
		sum, err = runner.Run(ctx, opts)
	}
	if err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Files scanned: %d\n", sum.Stats.Scanned)
	fmt.Printf("- Duplicates skipped: %d\n", sum.Stats.Deduplicated)
	fmt.Printf("- Documents processed: %d\n", sum.Processed)
	for method, n := range sum.ByMethod {
		fmt.Printf("  - %s: %d\n", method, n)
	}
	fmt.Printf("- Output: %s\n", *out)
	if *jsonl != "" {
		fmt.Printf("- JSON lines: %s\n", *jsonl)
	}
}
