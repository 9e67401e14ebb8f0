// Package ocr calls the vocabulary extraction service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	extractPath        = "ocr/extract-vocab"
	fileField          = "file"
	DefaultFilename    = "image.jpg"
	DefaultContentType = "image/jpeg"
	maxErrorBody       = 1 << 16
)

var tracer = otel.Tracer("github.com/spellquest/vocab-api/internal/platform/ocr")

// ErrUnavailable marks transport failures reaching the OCR service.
var ErrUnavailable = errors.New("ocr: service unavailable")

// UpstreamError carries a non-success status and the body text returned by
// the OCR service.
type UpstreamError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return "OCR API error: " + e.Body
}

// HTTPClient matches the subset of http.Client used by Client.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Upload is the image forwarded to the OCR service.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Result is the decoded extraction reply. Vocabulary entries are kept raw so
// they can be echoed to callers unchanged.
type Result struct {
	Vocabulary []json.RawMessage
	RawText    string
}

// Client posts images to `{base}/ocr/extract-vocab`.
type Client struct {
	baseURL string
	http    HTTPClient
}

// NewClient constructs a client rooted at baseURL.
func NewClient(baseURL string, client HTTPClient) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ocr: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ocr: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("ocr: base URL %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: client}, nil
}

// ExtractVocabulary uploads the image as multipart field "file" and decodes
// the vocabulary list. Non-2xx replies become *UpstreamError.
func (c *Client) ExtractVocabulary(ctx context.Context, upload Upload) (result Result, err error) {
	filename := strings.TrimSpace(upload.Filename)
	if filename == "" {
		filename = DefaultFilename
	}
	contentType := strings.TrimSpace(upload.ContentType)
	if contentType == "" {
		contentType = DefaultContentType
	}

	ctx, span := tracer.Start(ctx, "ocr.extract_vocab", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ocr.content_type", contentType),
			attribute.Int("ocr.upload_bytes", len(upload.Data)),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	body, formContentType, err := encodeUpload(filename, contentType, upload.Data)
	if err != nil {
		return Result{}, err
	}

	endpoint, err := url.JoinPath(c.baseURL, extractPath)
	if err != nil {
		return Result{}, fmt.Errorf("ocr: build endpoint: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return Result{}, fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &UpstreamError{Status: resp.StatusCode, Body: drainError(resp.Body)}
	}

	var payload struct {
		Vocabulary []json.RawMessage `json:"vocabulary"`
		RawText    string            `json:"raw_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("ocr: decode response: %w", err)
	}
	if payload.Vocabulary == nil {
		payload.Vocabulary = []json.RawMessage{}
	}
	span.SetAttributes(attribute.Int("ocr.candidates", len(payload.Vocabulary)))
	return Result{Vocabulary: payload.Vocabulary, RawText: payload.RawText}, nil
}

// Ping calls the service root, which answers {"status":"ok"} when healthy.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Status: resp.StatusCode, Body: drainError(resp.Body)}
	}
	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&status); err == nil && status.Status != "" && status.Status != "ok" {
		return fmt.Errorf("ocr: service reports status %q", status.Status)
	}
	return nil
}

func encodeUpload(filename, contentType string, data []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("ocr: create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("ocr: write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("ocr: close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func drainError(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	return string(data)
}
