package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Runner runs one external acquisition tool (tesseract, pdftotext, pdftoppm).
// Tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// Limits for StderrSummary.
const (
	maxStderrLines   = 3
	maxStderrLineLen = 200
)

// stderrNoise are lowercase prefixes of progress lines tesseract and poppler
// print on every run, successful or not.
var stderrNoise = []string{
	"tesseract open source ocr engine",
	"estimating resolution as",
	"warning: invalid resolution",
	"detected ",
	"warning: invalid user defined dpi",
}

// ToolError is returned by the exec runner when a tool fails to start, exits
// non-zero or outlives its context.
type ToolError struct {
	Tool     string
	ExitCode int // -1 when the tool did not exit on its own
	Missing  bool
	TimedOut bool
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	switch {
	case e.Missing:
		return fmt.Sprintf("%s: not installed or not on PATH", e.Tool)
	case e.TimedOut:
		return fmt.Sprintf("%s: timed out", e.Tool)
	}
	msg := fmt.Sprintf("%s: exit %d", e.Tool, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

func newToolError(ctx context.Context, name string, stderr []byte, err error) *ToolError {
	te := &ToolError{Tool: filepath.Base(name), ExitCode: -1, Stderr: StderrSummary(stderr), Err: err}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound):
		te.Missing = true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		te.TimedOut = true
	case errors.As(err, &exitErr):
		te.ExitCode = exitErr.ExitCode()
	}
	return te
}

// StderrSummary keeps the first few meaningful lines of a tool's stderr,
// dropping per-run progress chatter, each line cut to a readable length.
func StderrSummary(stderr []byte) string {
	var keep []string
	for _, ln := range strings.Split(string(stderr), "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || isStderrNoise(ln) {
			continue
		}
		if r := []rune(ln); len(r) > maxStderrLineLen {
			ln = string(r[:maxStderrLineLen]) + "…"
		}
		keep = append(keep, ln)
		if len(keep) == maxStderrLines {
			break
		}
	}
	return strings.Join(keep, "; ")
}

func isStderrNoise(line string) bool {
	l := strings.ToLower(line)
	for _, p := range stderrNoise {
		if strings.HasPrefix(l, p) {
			return true
		}
	}
	return false
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		te := newToolError(ctx, name, errb.Bytes(), err)
		r.logger.Error("ocr.exec.failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"duration_ms", dur.Milliseconds(),
			"exit_code", te.ExitCode,
			"missing", te.Missing,
			"timed_out", te.TimedOut,
			"stderr", te.Stderr,
			"error", err,
		)
		return out.Bytes(), errb.Bytes(), te
	}

	r.logger.Debug("ocr.exec.ok",
		"cmd", name,
		"args", strings.Join(args, " "),
		"duration_ms", dur.Milliseconds(),
		"stdout_bytes", out.Len(),
		"stderr_bytes", errb.Len(),
	)
	return out.Bytes(), errb.Bytes(), nil
}
