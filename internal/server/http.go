package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/w2-extractor/internal/common"
	"github.com/joseph-ayodele/w2-extractor/internal/result"
)

// HTTPConfig holds the HTTP middleware settings.
type HTTPConfig struct {
	MaxUploadBytes int64
	RateLimit      float64 // requests per second; 0 disables limiting
	RateBurst      int
	CORSOrigins    []string
}

type Handler struct {
	proc    Processor
	diag    Diagnoser
	cfg     HTTPConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewHandler(proc Processor, diag Diagnoser, cfg HTTPConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = common.DefaultMaxUploadBytes
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}
	h := &Handler{proc: proc, diag: diag, cfg: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return h
}

func (h *Handler) Attach(r chi.Router) {
	r.Get("/healthz", h.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(h.limit)
		r.Use(h.maxBytes)

		r.Post("/v1/extract", h.handleExtract)
		r.Post("/v1/extract/text", h.handleExtractText)
		r.Post("/v1/reprocess", h.handleReprocess)
		r.Get("/v1/diagnostics", h.handleDiagnostics)
	})
}

// Router returns a chi router with CORS, request IDs and panic recovery.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	h.Attach(r)
	return r
}

func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()
		if id := r.Header.Get(RequestIDHeader); id != "" {
			ctx = common.WithRequestID(ctx, id)
		}
		ctx, id := common.EnsureRequestID(ctx)
		w.Header().Set(RequestIDHeader, id)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		h.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", id,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) maxBytes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > h.cfg.MaxUploadBytes {
			writeError(w, http.StatusRequestEntityTooLarge, tooLarge(h.cfg.MaxUploadBytes))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJson(w, map[string]string{"status": "ok"})
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	req, err := h.readUpload(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJson(w, h.proc.Process(r.Context(), req.input()))
}

type textRequest struct {
	Text     string `json:"text"`
	Filename string `json:"filename"`
}

func (h *Handler) handleExtractText(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req := extractRequest{Text: body.Text, Filename: body.Filename}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJson(w, h.proc.Process(r.Context(), req.input()))
}

type reprocessResponse struct {
	Previous        result.ExtractionResult `json:"previous"`
	Current         result.ExtractionResult `json:"current"`
	Changed         bool                    `json:"changed"`
	ConfidenceDelta float64                 `json:"confidence_delta"`
}

func (h *Handler) handleReprocess(w http.ResponseWriter, r *http.Request) {
	req, err := h.readUpload(r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	raw := r.FormValue("previous")
	if raw == "" {
		writeError(w, http.StatusBadRequest, common.NewAppError("INVALID_REQUEST", "previous is required", common.ErrInvalidInput))
		return
	}
	var prev result.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		writeError(w, http.StatusBadRequest, common.NewAppError("INVALID_REQUEST", "previous", errors.Join(common.ErrInvalidInput, err)))
		return
	}

	rep := h.proc.Reprocess(r.Context(), req.input(), prev)
	writeJson(w, reprocessResponse{
		Previous:        rep.Previous,
		Current:         rep.Current,
		Changed:         rep.Changed,
		ConfidenceDelta: rep.ConfidenceDelta(),
	})
}

func (h *Handler) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if h.diag == nil {
		writeError(w, http.StatusNotImplemented, common.NewAppError("UNSUPPORTED", "acquisition is disabled", common.ErrUnsupported))
		return
	}
	d := h.diag.Diagnose(r.Context())
	writeJson(w, diagnosticsView{Diagnostics: d, Ready: d.Ready()})
}

// readUpload reads the multipart "file" part.
func (h *Handler) readUpload(r *http.Request) (extractRequest, error) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		return extractRequest{}, err
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return extractRequest{}, common.NewAppError("INVALID_REQUEST", "multipart field \"file\" is required", errors.Join(common.ErrInvalidInput, err))
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return extractRequest{}, err
	}
	req := extractRequest{
		Data:      data,
		Filename:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
	}
	if err := req.validate(); err != nil {
		return extractRequest{}, err
	}
	return req, nil
}

func tooLarge(limit int64) error {
	return common.NewAppError("TOO_LARGE", fmt.Sprintf("request body exceeds %d bytes", limit), common.ErrTooLarge)
}

func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &mbe), errors.Is(err, common.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, common.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, common.ErrInternal):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	detail := errorDetail{Code: http.StatusText(code), Message: err.Error()}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		detail.Code = appErr.Code
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(errorBody{Error: detail})
}
