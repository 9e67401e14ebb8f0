// Package postgrest implements the word store over a PostgREST-style HTTP API.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/platform/textutil"
	"github.com/spellquest/vocab-api/internal/repositories"
)

const (
	wordsResource = "words"
	maxErrorBody  = 1 << 16
)

var tracer = otel.Tracer("github.com/spellquest/vocab-api/internal/repositories/postgrest")

// HTTPClient matches the subset of http.Client used by WordRepository.
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Option customises the repository.
type Option func(*WordRepository)

// WithHeaders adds static headers (api keys, bearer tokens) to every request.
func WithHeaders(headers map[string]string) Option {
	return func(r *WordRepository) {
		r.headers = textutil.NormalizeStringMap(headers)
	}
}

// WordRepository talks to `{base}/words`.
type WordRepository struct {
	base    *url.URL
	client  HTTPClient
	headers map[string]string
}

var _ repositories.WordRepository = (*WordRepository)(nil)

// NewWordRepository constructs a repository rooted at baseURL.
func NewWordRepository(baseURL string, client HTTPClient, opts ...Option) (*WordRepository, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("postgrest: base URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("postgrest: parse base URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("postgrest: base URL %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	repo := &WordRepository{base: parsed, client: client}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Exists issues `GET /words?english=ilike.<key>` and reports whether any row matched.
func (r *WordRepository) Exists(ctx context.Context, english string) (found bool, err error) {
	ctx, span := tracer.Start(ctx, "words.exists", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("word.english", english)))
	defer func() { endSpan(span, err) }()

	req, err := r.newRequest(ctx, http.MethodGet, "english=ilike."+queryEscape(escapeLikePattern(english)), nil)
	if err != nil {
		return false, err
	}
	resp, err := r.do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, errorFromResponse("check existing word", resp)
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return false, fmt.Errorf("check existing word: %w: %v", repositories.ErrMalformedResponse, err)
	}
	span.SetAttributes(attribute.Int("word.matches", len(rows)))
	return len(rows) > 0, nil
}

// Create posts the new word with `Prefer: return=representation` and returns
// the first row the store echoes back.
func (r *WordRepository) Create(ctx context.Context, word domain.NewWord) (record domain.WordRecord, err error) {
	ctx, span := tracer.Start(ctx, "words.create", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("word.english", word.English)))
	defer func() { endSpan(span, err) }()

	payload := wordPayload{
		English:  word.English,
		Chinese:  word.Chinese,
		Pinyin:   word.Pinyin,
		Category: word.Category,
		Grade:    word.Grade,
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return domain.WordRecord{}, fmt.Errorf("insert word: encode payload: %w", err)
	}

	req, err := r.newRequest(ctx, http.MethodPost, "", &buf)
	if err != nil {
		return domain.WordRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := r.do(req)
	if err != nil {
		return domain.WordRecord{}, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.WordRecord{}, errorFromResponse("insert word", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.WordRecord{}, fmt.Errorf("insert word: read response: %w", err)
	}
	raw, err := firstRow(body)
	if err != nil {
		return domain.WordRecord{}, fmt.Errorf("insert word: %w: %v", repositories.ErrMalformedResponse, err)
	}
	if raw == nil {
		// Store acknowledged without a representation.
		return payload.record(), nil
	}
	return decodeRecord(raw)
}

// Ping reads at most one row to confirm the store answers.
func (r *WordRepository) Ping(ctx context.Context) error {
	req, err := r.newRequest(ctx, http.MethodGet, "select=english&limit=1", nil)
	if err != nil {
		return err
	}
	resp, err := r.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse("ping word store", resp)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return nil
}

// Close is a no-op; the HTTP client is owned by the caller.
func (r *WordRepository) Close() error { return nil }

func (r *WordRepository) newRequest(ctx context.Context, method, rawQuery string, body io.Reader) (*http.Request, error) {
	endpoint := r.base.JoinPath(wordsResource)
	endpoint.RawQuery = rawQuery
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("postgrest: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for name, value := range r.headers {
		req.Header.Set(name, value)
	}
	return req, nil
}

func (r *WordRepository) do(req *http.Request) (*http.Response, error) {
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("word store request failed: %w", err)
	}
	return resp, nil
}

func errorFromResponse(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &repositories.StoreError{
		Op:     op,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// queryEscape percent-encodes like encodeURIComponent, so spaces become %20.
func queryEscape(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// escapeLikePattern keeps ilike a case-insensitive comparison by escaping
// the pattern metacharacters. PostgREST rewrites every "*" to "%" before the
// query runs, so "*" cannot be escaped and is sent as the single-character
// wildcard "_" instead.
func escapeLikePattern(value string) string {
	return likeEscaper.Replace(value)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `_`)
