package ocr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/joseph-ayodele/w2-extractor/constants"
)

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	txt, quality, warns, err := e.bestOCR(ctx, path)
	if err != nil {
		return Result{SourceType: constants.IMAGE, Warnings: warns}, err
	}
	return Result{
		Text:       txt,
		Pages:      1,
		SourceType: constants.IMAGE,
		Method:     constants.AcquireImageOCR,
		Language:   e.cfg.TesseractLang,
		Warnings:   warns,
		Quality:    quality,
	}, nil
}

// bestOCR runs tesseract once per configured PSM and keeps the output with the
// highest QualityScore. Ties keep the earlier mode.
func (e *Extractor) bestOCR(ctx context.Context, path string) (string, float64, []string, error) {
	var (
		best    string
		bestQ   = -1.0
		warns   []string
		lastErr error
	)
	for _, psm := range e.cfg.PSMVariants {
		if err := ctx.Err(); err != nil {
			return "", 0, warns, err
		}
		txt, w, err := e.tesseractOCR(ctx, path, psm)
		warns = append(warns, w...)
		if err != nil {
			lastErr = err
			continue
		}
		txt = Normalize(txt)
		q := QualityScore(txt)
		e.logger.Debug("ocr.tesseract.pass", "path", path, "psm", psm, "chars", len(txt), "quality", q)
		if q > bestQ {
			best, bestQ = txt, q
		}
	}
	if bestQ < 0 {
		return "", 0, warns, fmt.Errorf("tesseract: every pass failed: %w", lastErr)
	}
	return best, bestQ, warns, nil
}

func (e *Extractor) tesseractOCR(ctx context.Context, path string, psm int) (string, []string, error) {
	// tesseract <file> stdout -l <lang> --psm N [--oem M] [--tessdata-dir D]
	args := []string{path, "stdout", "-l", e.cfg.TesseractLang}
	if psm > 0 {
		args = append(args, "--psm", strconv.Itoa(psm))
	}
	if e.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(e.cfg.OEM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}

	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", nonEmpty(StderrSummary(errb)), fmt.Errorf("tesseract psm %d: %w", psm, err)
	}
	return string(out), nil, nil
}
