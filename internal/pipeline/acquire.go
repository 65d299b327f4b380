package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// acquire returns the document text. ok is false when text had to be
// acquired but acquisition is disabled.
func (p *Processor) acquire(ctx context.Context, in Input, logger *slog.Logger) (string, bool) {
	if in.Text != "" {
		return in.Text, true
	}
	if in.Path == "" && len(in.Data) == 0 {
		return "", true
	}
	if !p.cfg.OCREnabled || p.source == nil {
		logger.Info("pipeline.fallback", "trigger", "ocr_disabled")
		return "", false
	}

	path := in.Path
	if len(in.Data) > 0 {
		spooled, cleanup, err := spool(in.Data, filepath.Ext(in.Filename()))
		if err != nil {
			logger.Error("pipeline.spool.failed", "error", err)
			return "", true
		}
		defer cleanup()
		path = spooled
	}

	text := p.source.GetText(ctx, path, in.MediaType)
	logger.Debug("pipeline.acquire.done", "path", path, "chars", len(text))
	return text, true
}

func spool(data []byte, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", "w2x-upload-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("create temp: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close temp: %w", err)
	}
	return name, cleanup, nil
}
