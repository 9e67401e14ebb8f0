package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/spellquest/vocab-api/internal/platform/httpx"
	"github.com/spellquest/vocab-api/internal/platform/observability"
	"github.com/spellquest/vocab-api/internal/platform/ocr"
	"github.com/spellquest/vocab-api/internal/services"
)

const (
	defaultMaxUploadBytes = 10 << 20
	uploadFieldName       = "file"
)

// OCRHandlers exposes the sheet upload endpoint.
type OCRHandlers struct {
	scan     services.ScanService
	maxBytes int64
	limiter  rateLimiter
	clock    func() time.Time
}

// OCROption customises OCRHandlers.
type OCROption func(*OCRHandlers)

// WithOCRMaxUploadBytes caps the request body size.
func WithOCRMaxUploadBytes(limit int64) OCROption {
	return func(h *OCRHandlers) {
		if limit > 0 {
			h.maxBytes = limit
		}
	}
}

// WithOCRRateLimit allows perMinute uploads per client address. Zero disables throttling.
func WithOCRRateLimit(perMinute int) OCROption {
	return func(h *OCRHandlers) {
		h.limiter = newSimpleRateLimiter(perMinute, time.Minute, func() time.Time { return h.clock() })
	}
}

// WithOCRClock overrides the clock used by the rate limiter.
func WithOCRClock(clock func() time.Time) OCROption {
	return func(h *OCRHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewOCRHandlers constructs the upload handlers.
func NewOCRHandlers(scan services.ScanService, opts ...OCROption) *OCRHandlers {
	h := &OCRHandlers{
		scan:     scan,
		maxBytes: defaultMaxUploadBytes,
		clock:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the upload endpoint on r.
func (h *OCRHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/ocr", h.scanUpload)
}

type scanResponse struct {
	Success    bool              `json:"success"`
	Vocabulary []json.RawMessage `json:"vocabulary"`
	Saved      savedPayload      `json:"saved"`
}

type savedPayload struct {
	Created []any            `json:"created"`
	Skipped []skippedPayload `json:"skipped"`
	Errors  []failedPayload  `json:"errors"`
}

type skippedPayload struct {
	English string `json:"english"`
	Reason  string `json:"reason"`
}

type failedPayload struct {
	English string `json:"english"`
	Error   string `json:"error"`
}

type wordPayload struct {
	ID        string `json:"id,omitempty"`
	English   string `json:"english"`
	Chinese   string `json:"chinese"`
	Pinyin    string `json:"pinyin"`
	Category  string `json:"category"`
	Grade     string `json:"grade"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (h *OCRHandlers) scanUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.scan == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "ingestion is not configured", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(clientAddress(r)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many uploads, try again later", http.StatusTooManyRequests))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	upload, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "upload exceeds size limit", http.StatusRequestEntityTooLarge))
		case errors.Is(err, services.ErrUploadMalformed):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_upload", "No file uploaded", http.StatusBadRequest))
		case errors.Is(err, services.ErrNoFileField):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_upload", "No file field found", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_upload", "unable to read multipart body", http.StatusBadRequest))
		}
		return
	}

	result, err := h.scan.Scan(ctx, upload)
	if result.RunID != "" {
		w.Header().Set(observability.RunIDHeader, result.RunID)
	}
	if err != nil {
		writeScanError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, scanResponse{
		Success:    true,
		Vocabulary: result.Vocabulary,
		Saved:      newSavedPayload(result.Saved),
	})
}

func writeScanError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var upstream *ocr.UpstreamError
	switch {
	case errors.As(err, &upstream):
		status := upstream.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		httpx.WriteError(ctx, w, httpx.NewError("ocr_error", "", status).WithRawMessage(upstream.Error()))
	case errors.Is(err, ocr.ErrUnavailable):
		observability.FromContext(ctx).Warn("ocr service unreachable", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("ocr_unavailable", "OCR service unavailable", http.StatusBadGateway))
	default:
		observability.FromContext(ctx).Error("scan failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", err.Error(), http.StatusInternalServerError))
	}
}

// readUpload streams the multipart body and keeps the first part named
// "file". Filename and content type may be empty; the OCR client fills in
// defaults.
func readUpload(r *http.Request) (ocr.Upload, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.EqualFold(mediaType, "multipart/form-data") {
		return ocr.Upload{}, services.ErrUploadMalformed
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return ocr.Upload{}, services.ErrUploadMalformed
	}

	parts := 0
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if parts == 0 && !errors.As(err, &tooLarge) {
				return ocr.Upload{}, services.ErrUploadMalformed
			}
			return ocr.Upload{}, err
		}
		parts++
		if part.FormName() != uploadFieldName {
			_, _ = io.Copy(io.Discard, part)
			continue
		}
		data, err := io.ReadAll(part)
		if err != nil {
			return ocr.Upload{}, err
		}
		return ocr.Upload{
			Filename:    observability.SanitizeFilename(part.FileName()),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}
	if parts == 0 {
		return ocr.Upload{}, services.ErrUploadMalformed
	}
	return ocr.Upload{}, services.ErrNoFileField
}

func newSavedPayload(result services.BatchResult) savedPayload {
	payload := savedPayload{
		Created: make([]any, 0, len(result.Created)),
		Skipped: make([]skippedPayload, 0, len(result.Skipped)),
		Errors:  make([]failedPayload, 0, len(result.Errors)),
	}
	for _, record := range result.Created {
		if len(record.Raw) > 0 && json.Valid(record.Raw) {
			payload.Created = append(payload.Created, record.Raw)
			continue
		}
		word := wordPayload{
			ID:       record.ID,
			English:  record.English,
			Chinese:  record.Chinese,
			Pinyin:   record.Pinyin,
			Category: record.Category,
			Grade:    record.Grade,
		}
		if record.CreatedAt != nil {
			word.CreatedAt = record.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		payload.Created = append(payload.Created, word)
	}
	for _, skipped := range result.Skipped {
		payload.Skipped = append(payload.Skipped, skippedPayload{English: skipped.English, Reason: skipped.Reason})
	}
	for _, failed := range result.Errors {
		payload.Errors = append(payload.Errors, failedPayload{English: failed.English, Error: failed.Error})
	}
	return payload
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
