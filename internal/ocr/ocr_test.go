package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/w2-extractor/constants"
)

const w2Text = `Form W-2 Wage and Tax Statement 2023
Employee's social security number 123-45-6789
Employer identification number 12-3456789
box 1 Wages tips other compensation 55000.00
box 2 Federal income tax withheld 6200.00
Medicare wages and tips 55000.00`

type call struct {
	name string
	args []string
}

type stubRunner struct {
	mu    sync.Mutex
	calls []call
	fn    map[string]func(ctx context.Context, args []string) ([]byte, []byte, error)
}

func newStub() *stubRunner {
	return &stubRunner{fn: map[string]func(context.Context, []string) ([]byte, []byte, error){}}
}

func (s *stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{name: name, args: args})
	f, ok := s.fn[name]
	s.mu.Unlock()
	if !ok {
		return nil, []byte(name + ": not found"), errors.New("exec: not found")
	}
	return f(ctx, args)
}

func (s *stubRunner) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

func psmOf(args []string) string {
	i := slices.Index(args, "--psm")
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func newTestExtractor(cfg Config, r Runner) *Extractor {
	return NewExtractor(cfg, nil).WithRunner(r)
}

func TestNewExtractorDefaults(t *testing.T) {
	cfg := NewExtractor(Config{}, nil).Config()
	assert.Equal(t, "tesseract", cfg.Tesseract)
	assert.Equal(t, "pdftotext", cfg.Pdftotext)
	assert.Equal(t, "pdftoppm", cfg.Pdftoppm)
	assert.Equal(t, "eng", cfg.TesseractLang)
	assert.Equal(t, 300, cfg.DPI)
	assert.Equal(t, []int{6, 4, 3}, cfg.PSMVariants)
	assert.Equal(t, DefaultAcquireTimeout, cfg.AcquireTimeout)
}

func TestImageKeepsBestPSM(t *testing.T) {
	stub := newStub()
	stub.fn["tesseract"] = func(_ context.Context, args []string) ([]byte, []byte, error) {
		switch psmOf(args) {
		case "6":
			return []byte("~~ ## lorem"), nil, nil
		case "4":
			return []byte(w2Text), nil, nil
		default:
			return []byte("Form W-2 box 1"), nil, nil
		}
	}
	e := newTestExtractor(Config{}, stub)

	res, err := e.Extract(context.Background(), writeFile(t, "w2_form.png", "png"))
	require.NoError(t, err)
	assert.Equal(t, constants.AcquireImageOCR, res.Method)
	assert.Equal(t, constants.IMAGE, res.SourceType)
	assert.Contains(t, res.Text, "Wage and Tax Statement")
	assert.Greater(t, res.Quality, 0.8)
	assert.Equal(t, 3, stub.count("tesseract"))
}

func TestImageSurvivesFailedPasses(t *testing.T) {
	stub := newStub()
	stub.fn["tesseract"] = func(_ context.Context, args []string) ([]byte, []byte, error) {
		if psmOf(args) == "3" {
			return []byte(w2Text), nil, nil
		}
		return nil, []byte("Error in pixReadStream"), errors.New("exit status 1")
	}
	e := newTestExtractor(Config{}, stub)

	res, err := e.Extract(context.Background(), writeFile(t, "scan.jpg", "jpg"))
	require.NoError(t, err)
	assert.Contains(t, res.Text, "123-45-6789")
	assert.Contains(t, res.Warnings, "Error in pixReadStream")
}

func TestImageAllPassesFail(t *testing.T) {
	e := newTestExtractor(Config{}, newStub())
	path := writeFile(t, "scan.png", "png")

	_, err := e.Extract(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, "", e.GetText(context.Background(), path, "image/png"))
}

func TestPDFDirectText(t *testing.T) {
	stub := newStub()
	e := newTestExtractor(Config{}, stub)
	e.pdfText = func(string, int) (string, int, error) { return w2Text, 1, nil }

	res, err := e.Extract(context.Background(), writeFile(t, "w2.pdf", "%PDF-1.4 not really"))
	require.NoError(t, err)
	assert.Equal(t, constants.AcquirePDFText, res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.Empty(t, stub.calls)
	assert.NotEmpty(t, res.Warnings, "preflight of a broken file is reported")
}

func TestPDFFallsBackToLayoutText(t *testing.T) {
	stub := newStub()
	stub.fn["pdftotext"] = func(_ context.Context, args []string) ([]byte, []byte, error) {
		assert.Contains(t, args, "-layout")
		assert.Equal(t, "-", args[len(args)-1])
		return []byte(w2Text + "\f"), nil, nil
	}
	e := newTestExtractor(Config{}, stub)
	e.pdfText = func(string, int) (string, int, error) { return "  ", 1, nil }

	res, err := e.Extract(context.Background(), writeFile(t, "w2.pdf", "junk"))
	require.NoError(t, err)
	assert.Equal(t, constants.AcquirePDFLayout, res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.Zero(t, stub.count("tesseract"))
}

func TestPDFFallsBackToOCR(t *testing.T) {
	stub := newStub()
	stub.fn["pdftotext"] = func(context.Context, []string) ([]byte, []byte, error) {
		return []byte("\f"), nil, nil
	}
	stub.fn["pdftoppm"] = func(_ context.Context, args []string) ([]byte, []byte, error) {
		prefix := args[len(args)-1]
		for _, n := range []string{"-1.png", "-2.png", "-3.png"} {
			if err := os.WriteFile(prefix+n, []byte("png"), 0o644); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	}
	stub.fn["tesseract"] = func(_ context.Context, args []string) ([]byte, []byte, error) {
		if strings.HasSuffix(args[0], "-1.png") {
			return []byte(w2Text), nil, nil
		}
		return []byte("Copy B To Be Filed With Employee's FEDERAL Tax Return"), nil, nil
	}
	e := newTestExtractor(Config{MaxPages: 2, PSMVariants: []int{6}}, stub)
	e.pdfText = func(string, int) (string, int, error) { return "", 0, errors.New("malformed xref") }

	res, err := e.Extract(context.Background(), writeFile(t, "scan.pdf", "junk"))
	require.NoError(t, err)
	assert.Equal(t, constants.AcquirePDFOCR, res.Method)
	assert.Equal(t, 2, res.Pages)
	assert.Contains(t, res.Text, "55000.00")
	assert.Contains(t, res.Text, "Copy B")
	assert.Equal(t, 2, stub.count("tesseract"))
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "malformed xref")
}

func TestPDFOCRRendersNothing(t *testing.T) {
	stub := newStub()
	stub.fn["pdftotext"] = func(context.Context, []string) ([]byte, []byte, error) { return nil, nil, nil }
	stub.fn["pdftoppm"] = func(context.Context, []string) ([]byte, []byte, error) { return nil, nil, nil }
	e := newTestExtractor(Config{}, stub)
	e.pdfText = func(string, int) (string, int, error) { return "", 0, nil }

	_, err := e.Extract(context.Background(), writeFile(t, "empty.pdf", "junk"))
	assert.ErrorContains(t, err, "no pages rendered")
}

func TestPlainText(t *testing.T) {
	e := newTestExtractor(Config{}, newStub())
	res, err := e.Extract(context.Background(), writeFile(t, "w2.txt", "Wages\t\t55000\r\n\r\n\r\n\r\nbox 2 6200"))
	require.NoError(t, err)
	assert.Equal(t, constants.AcquirePlainText, res.Method)
	assert.Equal(t, "Wages 55000\n\nbox 2 6200", res.Text)
}

func TestUnsupportedExtension(t *testing.T) {
	e := newTestExtractor(Config{}, newStub())
	path := writeFile(t, "notes.docx", "x")

	_, err := e.Extract(context.Background(), path)
	assert.ErrorContains(t, err, "unsupported")
	assert.Equal(t, "", e.GetText(context.Background(), path, ""))
}

func TestGetTextMediaTypeWinsOverExtension(t *testing.T) {
	stub := newStub()
	stub.fn["tesseract"] = func(context.Context, []string) ([]byte, []byte, error) {
		return []byte(w2Text), nil, nil
	}
	e := newTestExtractor(Config{PSMVariants: []int{6}}, stub)

	got := e.GetText(context.Background(), writeFile(t, "upload.bin", "x"), "image/png")
	assert.Contains(t, got, "Wage and Tax Statement")
}

func TestGetTextTimeout(t *testing.T) {
	stub := newStub()
	stub.fn["tesseract"] = func(ctx context.Context, _ []string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	e := newTestExtractor(Config{AcquireTimeout: 50 * time.Millisecond}, stub)

	start := time.Now()
	got := e.GetText(context.Background(), writeFile(t, "w2.png", "x"), "")
	assert.Equal(t, "", got)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, stub.count("tesseract"))
}

func TestDiagnose(t *testing.T) {
	stub := newStub()
	stub.fn["tesseract"] = func(_ context.Context, args []string) ([]byte, []byte, error) {
		if args[0] == "--list-langs" {
			return []byte("List of available languages in \"/usr/share/tessdata/\" (2):\neng\nosd\n"), nil, nil
		}
		return []byte("tesseract 5.3.4\n leptonica-1.84.1\n"), nil, nil
	}
	stub.fn["pdftotext"] = func(context.Context, []string) ([]byte, []byte, error) {
		return nil, []byte("pdftotext version 24.02.0\nCopyright 2005-2024 The Poppler Developers"), nil
	}
	e := newTestExtractor(Config{}, stub)

	d := e.Diagnose(context.Background())
	require.Len(t, d.Tools, 3)
	assert.Equal(t, "tesseract 5.3.4", d.Tools[0].Version)
	assert.Equal(t, "pdftotext version 24.02.0", d.Tools[1].Version)
	assert.False(t, d.Tools[2].OK())
	assert.Equal(t, []string{"eng", "osd"}, d.Languages)
	assert.True(t, d.LanguageOK)
	assert.True(t, d.Ready())

	missing := newTestExtractor(Config{TesseractLang: "deu"}, stub).Diagnose(context.Background())
	assert.False(t, missing.LanguageOK)
	assert.False(t, missing.Ready())
}
