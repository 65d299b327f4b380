// Package batch runs directories of W-2 documents through the pipeline and
// writes the results as XLSX and JSON lines.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/w2-extractor/internal/app"
	"github.com/joseph-ayodele/w2-extractor/internal/async"
	"github.com/joseph-ayodele/w2-extractor/internal/export"
	"github.com/joseph-ayodele/w2-extractor/internal/ingest"
)

// DrainTimeout bounds how long a run waits for queued jobs once it stops.
const DrainTimeout = 5 * time.Minute

type Options struct {
	Root       string
	SkipHidden bool
	XLSXPath   string // empty skips the workbook
	JSONLPath  string // empty skips the JSON lines file
	Debounce   time.Duration
}

// Summary reports one run.
type Summary struct {
	Stats     ingest.DirStats
	Processed int
	ByMethod  map[string]int
	Rows      []export.Row
}

type Runner struct {
	app      *app.App
	ingestor ingest.Ingestor
	logger   *slog.Logger
}

func NewRunner(a *app.App, ingestor ingest.Ingestor) *Runner {
	if ingestor == nil {
		ingestor = ingest.NewFSIngestor(a.Logger)
	}
	return &Runner{app: a, ingestor: ingestor, logger: a.Logger}
}

// collector gathers queue outcomes as export rows.
type collector struct {
	mu   sync.Mutex
	rows []export.Row
}

func (c *collector) add(o async.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows = append(c.rows, export.Row{
		Path:   o.Job.Input.Path,
		Hash:   o.Job.ContentHash,
		Status: string(o.Status),
		Result: o.Result,
	})
}

func (c *collector) sorted() []export.Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := append([]export.Row(nil), c.rows...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Run processes every new document under opts.Root once.
func (r *Runner) Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Root == "" {
		return Summary{}, errors.New("root is required")
	}
	results, stats, err := r.ingestor.IngestDirectory(ctx, opts.Root, opts.SkipHidden)
	if err != nil {
		return Summary{Stats: stats}, err
	}

	col := &collector{}
	q := r.app.NewQueue(col.add)
	for _, res := range results {
		if res.Err != "" || res.Deduplicated {
			continue
		}
		if err := q.Enqueue(ctx, async.NewJob(res.SourcePath, "", res.HashHex)); err != nil {
			r.logger.Error("batch.enqueue.failed", "path", res.SourcePath, "error", err)
			break
		}
	}
	drain(ctx, q)

	sum := summarize(stats, col.sorted())
	if err := r.write(ctx, opts, sum.Rows); err != nil {
		return sum, err
	}
	r.logger.Info("batch.run.done",
		"root", opts.Root,
		"scanned", stats.Scanned,
		"deduplicated", stats.Deduplicated,
		"processed", sum.Processed,
	)
	return sum, nil
}

// Watch processes existing and newly arriving documents under opts.Root until
// ctx is done, then writes the outputs.
func (r *Runner) Watch(ctx context.Context, opts Options) (Summary, error) {
	paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       []string{opts.Root},
		InitialScan: true,
		SkipHidden:  opts.SkipHidden,
		Debounce:    opts.Debounce,
		Logger:      r.logger,
	})
	if err != nil {
		return Summary{}, err
	}

	col := &collector{}
	q := r.app.NewQueue(col.add)
	var stats ingest.DirStats

loop:
	for {
		select {
		case p, ok := <-paths:
			if !ok {
				break loop
			}
			stats.Scanned++
			res, err := r.ingestor.IngestPath(ctx, p)
			if err != nil {
				stats.Failed++
				continue
			}
			stats.Matched++
			if res.Deduplicated {
				stats.Deduplicated++
				continue
			}
			if err := q.Enqueue(ctx, async.NewJob(res.SourcePath, "", res.HashHex)); err != nil {
				stats.Failed++
				continue
			}
			stats.Succeeded++
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			r.logger.Warn("batch.watch.error", "error", err)
		case <-ctx.Done():
			break loop
		}
	}
	drain(context.WithoutCancel(ctx), q)

	sum := summarize(stats, col.sorted())
	if err := r.write(context.WithoutCancel(ctx), opts, sum.Rows); err != nil {
		return sum, err
	}
	r.logger.Info("batch.watch.done", "processed", sum.Processed)
	return sum, nil
}

func drain(ctx context.Context, q *async.ProcessorQueue) {
	ctx, cancel := context.WithTimeout(ctx, DrainTimeout)
	defer cancel()
	q.Shutdown(ctx)
}

func summarize(stats ingest.DirStats, rows []export.Row) Summary {
	by := map[string]int{}
	for _, row := range rows {
		by[row.Result.Method]++
	}
	return Summary{Stats: stats, Processed: len(rows), ByMethod: by, Rows: rows}
}

func (r *Runner) write(ctx context.Context, opts Options, rows []export.Row) error {
	if opts.XLSXPath != "" {
		if err := r.app.Exporter.WriteXLSX(ctx, opts.XLSXPath, rows); err != nil {
			return err
		}
	}
	if opts.JSONLPath != "" {
		f, err := os.Create(opts.JSONLPath)
		if err != nil {
			return err
		}
		if err := r.app.Exporter.WriteJSONL(f, rows); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}
