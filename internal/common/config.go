package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. W2X_OCR_DPI.
const EnvPrefix = "W2X"

const (
	DefaultGRPCAddr       = ":8080"
	DefaultHTTPAddr       = ":8081"
	DefaultMaxUploadBytes = 10 << 20
	DefaultLogLevel       = "info"
)

// Config holds all application configuration
type Config struct {
	OCR        OCRConfig
	Extraction ExtractionConfig
	Server     ServerConfig
	Batch      BatchConfig
	LogLevel   string
}

// OCRConfig holds text acquisition settings.
type OCRConfig struct {
	Enabled     bool
	Tesseract   string
	Pdftotext   string
	Pdftoppm    string
	Lang        string
	DPI         int
	MaxPages    int
	PSMVariants []int
	OEM         int
	TessdataDir string
	Timeout     time.Duration
}

// ExtractionConfig holds the analysis thresholds.
type ExtractionConfig struct {
	FieldCutoff       float64
	FallbackThreshold float64
	MinTextLength     int
	ClassifyThreshold int
	// Bounds overrides the accepted range of currency fields, keyed by field
	// name. Config file only.
	Bounds map[string]AmountBounds
}

// AmountBounds is an inclusive currency range.
type AmountBounds struct {
	Min float64 `mapstructure:"min"`
	Max float64 `mapstructure:"max"`
}

// ServerConfig holds daemon settings.
type ServerConfig struct {
	GRPCAddr       string
	HTTPAddr       string
	MaxUploadBytes int64
	RateLimit      float64 // requests per second, 0 disables
	RateBurst      int
	CORSOrigins    []string
}

// BatchConfig holds queue settings for batch runs.
type BatchConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			Enabled:     true,
			Tesseract:   "tesseract",
			Pdftotext:   "pdftotext",
			Pdftoppm:    "pdftoppm",
			Lang:        "eng",
			DPI:         300,
			MaxPages:    5,
			PSMVariants: []int{6, 4, 3},
			Timeout:     60 * time.Second,
		},
		Extraction: ExtractionConfig{
			FieldCutoff:       0.4,
			FallbackThreshold: 0.3,
			MinTextLength:     10,
			ClassifyThreshold: 3,
		},
		Server: ServerConfig{
			GRPCAddr:       DefaultGRPCAddr,
			HTTPAddr:       DefaultHTTPAddr,
			MaxUploadBytes: DefaultMaxUploadBytes,
			RateLimit:      10,
			RateBurst:      20,
			CORSOrigins:    []string{"*"},
		},
		Batch: BatchConfig{
			Workers:    4,
			QueueSize:  256,
			JobTimeout: 3 * time.Minute,
		},
		LogLevel: DefaultLogLevel,
	}
}

// flag name -> viper key
var flagKeys = map[string]string{
	"log-level":          "log_level",
	"ocr-enabled":        "ocr.enabled",
	"tesseract":          "ocr.tesseract",
	"pdftotext":          "ocr.pdftotext",
	"pdftoppm":           "ocr.pdftoppm",
	"lang":               "ocr.lang",
	"dpi":                "ocr.dpi",
	"max-pages":          "ocr.max_pages",
	"psm":                "ocr.psm",
	"oem":                "ocr.oem",
	"tessdata-dir":       "ocr.tessdata_dir",
	"ocr-timeout":        "ocr.timeout",
	"field-cutoff":       "extraction.field_cutoff",
	"fallback-threshold": "extraction.fallback_threshold",
	"min-text-length":    "extraction.min_text_length",
	"classify-threshold": "extraction.classify_threshold",
	"grpc-addr":          "server.grpc_addr",
	"http-addr":          "server.http_addr",
	"max-upload-bytes":   "server.max_upload_bytes",
	"rate-limit":         "server.rate_limit",
	"rate-burst":         "server.rate_burst",
	"cors-origins":       "server.cors_origins",
	"workers":            "batch.workers",
	"queue-size":         "batch.queue_size",
	"job-timeout":        "batch.job_timeout",
}

// NewFlagSet defines the shared flags. Binaries add their own before calling
// LoadConfig.
func NewFlagSet(name string) *pflag.FlagSet {
	d := DefaultConfig()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)

	fs.String("config", "", "YAML config file")
	fs.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")

	fs.Bool("ocr-enabled", d.OCR.Enabled, "Acquire text from files with pdftotext/tesseract")
	fs.String("tesseract", d.OCR.Tesseract, "tesseract binary")
	fs.String("pdftotext", d.OCR.Pdftotext, "pdftotext binary")
	fs.String("pdftoppm", d.OCR.Pdftoppm, "pdftoppm binary")
	fs.String("lang", d.OCR.Lang, "tesseract language")
	fs.Int("dpi", d.OCR.DPI, "Rasterization DPI for scanned PDFs")
	fs.Int("max-pages", d.OCR.MaxPages, "Maximum PDF pages to read (0 = all)")
	fs.String("psm", joinInts(d.OCR.PSMVariants), "Comma-separated tesseract page segmentation modes")
	fs.Int("oem", d.OCR.OEM, "tesseract OCR engine mode (0 = default)")
	fs.String("tessdata-dir", d.OCR.TessdataDir, "tesseract tessdata directory")
	fs.Duration("ocr-timeout", d.OCR.Timeout, "Per-document acquisition timeout")

	fs.Float64("field-cutoff", d.Extraction.FieldCutoff, "Minimum confidence for an extracted field")
	fs.Float64("fallback-threshold", d.Extraction.FallbackThreshold, "Aggregate confidence below which synthetic data is returned")
	fs.Int("min-text-length", d.Extraction.MinTextLength, "Minimum acquired text length")
	fs.Int("classify-threshold", d.Extraction.ClassifyThreshold, "Minimum W-2 classification score")

	fs.String("grpc-addr", d.Server.GRPCAddr, "gRPC listen address")
	fs.String("http-addr", d.Server.HTTPAddr, "HTTP listen address")
	fs.Int64("max-upload-bytes", d.Server.MaxUploadBytes, "Maximum upload size in bytes")
	fs.Float64("rate-limit", d.Server.RateLimit, "HTTP requests per second (0 disables)")
	fs.Int("rate-burst", d.Server.RateBurst, "HTTP rate limiter burst")
	fs.String("cors-origins", strings.Join(d.Server.CORSOrigins, ","), "Comma-separated allowed CORS origins")

	fs.Int("workers", d.Batch.Workers, "Batch worker count")
	fs.Int("queue-size", d.Batch.QueueSize, "Batch queue buffer size")
	fs.Duration("job-timeout", d.Batch.JobTimeout, "Per-document batch timeout")
	return fs
}

// LoadConfig parses args into fs (NewFlagSet when nil) and resolves the
// configuration: flags over W2X_* environment over the --config file over
// defaults.
func LoadConfig(fs *pflag.FlagSet, args []string) (*Config, error) {
	if fs == nil {
		fs = NewFlagSet("w2x")
	}
	if err := fs.Parse(args); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "parse flags", errors.Join(ErrInvalidInput, err))
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		v.SetDefault(key, f.DefValue)
		if err := v.BindPFlag(key, f); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "bind flag "+name, err)
		}
	}

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, NewAppError("CONFIG_ERROR", "read "+path, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	psm, err := parseInts(v.GetString("ocr.psm"))
	if err != nil {
		return nil, NewAppError("CONFIG_ERROR", "ocr.psm", errors.Join(ErrInvalidInput, err))
	}
	var bounds map[string]AmountBounds
	if err := v.UnmarshalKey("extraction.bounds", &bounds); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "extraction.bounds", errors.Join(ErrInvalidInput, err))
	}
	return &Config{
		OCR: OCRConfig{
			Enabled:     v.GetBool("ocr.enabled"),
			Tesseract:   v.GetString("ocr.tesseract"),
			Pdftotext:   v.GetString("ocr.pdftotext"),
			Pdftoppm:    v.GetString("ocr.pdftoppm"),
			Lang:        v.GetString("ocr.lang"),
			DPI:         v.GetInt("ocr.dpi"),
			MaxPages:    v.GetInt("ocr.max_pages"),
			PSMVariants: psm,
			OEM:         v.GetInt("ocr.oem"),
			TessdataDir: v.GetString("ocr.tessdata_dir"),
			Timeout:     v.GetDuration("ocr.timeout"),
		},
		Extraction: ExtractionConfig{
			FieldCutoff:       v.GetFloat64("extraction.field_cutoff"),
			FallbackThreshold: v.GetFloat64("extraction.fallback_threshold"),
			MinTextLength:     v.GetInt("extraction.min_text_length"),
			ClassifyThreshold: v.GetInt("extraction.classify_threshold"),
			Bounds:            bounds,
		},
		Server: ServerConfig{
			GRPCAddr:       v.GetString("server.grpc_addr"),
			HTTPAddr:       v.GetString("server.http_addr"),
			MaxUploadBytes: v.GetInt64("server.max_upload_bytes"),
			RateLimit:      v.GetFloat64("server.rate_limit"),
			RateBurst:      v.GetInt("server.rate_burst"),
			CORSOrigins:    splitList(v.GetString("server.cors_origins")),
		},
		Batch: BatchConfig{
			Workers:    v.GetInt("batch.workers"),
			QueueSize:  v.GetInt("batch.queue_size"),
			JobTimeout: v.GetDuration("batch.job_timeout"),
		},
		LogLevel: strings.ToLower(v.GetString("log_level")),
	}, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	v := NewValidator()
	v.Field("log_level", c.LogLevel, OneOf("debug", "info", "warn", "error"))
	v.Field("ocr.dpi", c.OCR.DPI, Positive)
	v.Field("ocr.timeout", int64(c.OCR.Timeout), Positive)
	// The extractor and pipeline read 0 as unset, so 0 is rejected here.
	v.Field("extraction.field_cutoff", c.Extraction.FieldCutoff, Positive, Fraction)
	v.Field("extraction.fallback_threshold", c.Extraction.FallbackThreshold, Positive, Fraction)
	v.Field("extraction.min_text_length", c.Extraction.MinTextLength, Positive)
	v.Field("extraction.classify_threshold", c.Extraction.ClassifyThreshold, Positive)
	v.Field("server.max_upload_bytes", c.Server.MaxUploadBytes, Positive)
	v.Field("batch.workers", c.Batch.Workers, Positive)
	v.Field("batch.queue_size", c.Batch.QueueSize, Positive)
	v.Field("batch.job_timeout", int64(c.Batch.JobTimeout), Positive)
	if c.OCR.Enabled {
		v.Field("ocr.tesseract", c.OCR.Tesseract, Required)
		v.Field("ocr.lang", c.OCR.Lang, Required)
		if len(c.OCR.PSMVariants) == 0 {
			v.Field("ocr.psm", "", Required)
		}
	}
	for name, b := range c.Extraction.Bounds {
		if b.Min < 0 || b.Max < b.Min {
			v.Field("extraction.bounds."+name, fmt.Sprintf("[%g, %g]", b.Min, b.Max), func(field string, value any) *ValidationError {
				return &ValidationError{Field: field, Value: value, Message: "must satisfy 0 <= min <= max"}
			})
		}
	}
	if c.Server.RateLimit < 0 {
		v.Field("server.rate_limit", c.Server.RateLimit, Positive)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrValidation)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{OCR: %t/%s, GRPC: %s, HTTP: %s, Workers: %d, LogLevel: %s}",
		c.OCR.Enabled, c.OCR.Lang, c.Server.GRPCAddr, c.Server.HTTPAddr, c.Batch.Workers, c.LogLevel)
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitList(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
