package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.OCR.BaseURL != "http://localhost:3002" {
		t.Errorf("unexpected default ocr base url: %s", cfg.OCR.BaseURL)
	}
	if cfg.Store.BaseURL != "http://localhost:3001" {
		t.Errorf("unexpected default store base url: %s", cfg.Store.BaseURL)
	}
	if cfg.Store.Driver != StoreDriverREST {
		t.Errorf("expected rest store driver, got %s", cfg.Store.Driver)
	}
	if len(cfg.Store.Headers) != 0 {
		t.Errorf("expected no store headers, got %v", cfg.Store.Headers)
	}
	if cfg.Upload.MaxBytes != 10<<20 {
		t.Errorf("unexpected upload limit: %d", cfg.Upload.MaxBytes)
	}
	if cfg.RateLimits.UploadPerMinute != 30 {
		t.Errorf("unexpected upload rate limit: %d", cfg.RateLimits.UploadPerMinute)
	}
	if cfg.Build.Environment != "local" {
		t.Errorf("expected default environment local, got %s", cfg.Build.Environment)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":              "9090",
		"API_SERVER_IDLE_TIMEOUT":      "2m",
		"API_ENVIRONMENT":              "PROD",
		"API_VERSION":                  "1.4.0",
		"API_COMMIT_SHA":               "abc123",
		"API_OCR_BASE_URL":             "https://ocr.example.com/",
		"API_OCR_TIMEOUT":              "90s",
		"API_STORE_BASE_URL":           "https://db.example.com/rest/v1",
		"API_STORE_TIMEOUT":            "5s",
		"API_STORE_HEADERS":            "apikey=anon-key, Authorization=Bearer token,broken",
		"API_UPLOAD_MAX_BYTES":         "2048",
		"API_RATELIMIT_UPLOAD_PER_MIN": "0",
		"API_IDEMPOTENCY_HEADER":       "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":          "48h",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Build.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Build.Environment)
	}
	if cfg.Build.Version != "1.4.0" || cfg.Build.CommitSHA != "abc123" {
		t.Errorf("unexpected build info: %+v", cfg.Build)
	}
	if cfg.OCR.BaseURL != "https://ocr.example.com" {
		t.Errorf("expected trailing slash trimmed, got %s", cfg.OCR.BaseURL)
	}
	if cfg.OCR.Timeout != 90*time.Second {
		t.Errorf("unexpected ocr timeout %s", cfg.OCR.Timeout)
	}
	if cfg.Store.BaseURL != "https://db.example.com/rest/v1" {
		t.Errorf("unexpected store base url %s", cfg.Store.BaseURL)
	}
	if len(cfg.Store.Headers) != 2 {
		t.Fatalf("expected 2 store headers, got %v", cfg.Store.Headers)
	}
	if cfg.Store.Headers["apikey"] != "anon-key" {
		t.Errorf("unexpected apikey header %q", cfg.Store.Headers["apikey"])
	}
	if cfg.Store.Headers["Authorization"] != "Bearer token" {
		t.Errorf("unexpected authorization header %q", cfg.Store.Headers["Authorization"])
	}
	if cfg.Upload.MaxBytes != 2048 {
		t.Errorf("unexpected upload limit %d", cfg.Upload.MaxBytes)
	}
	if cfg.RateLimits.UploadPerMinute != 0 {
		t.Errorf("expected disabled rate limit, got %d", cfg.RateLimits.UploadPerMinute)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
}

func TestLoadSQLiteDriver(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":      "SQLite",
		"API_STORE_SQLITE_PATH": "/tmp/words.db",
		"API_STORE_BASE_URL":    "not a url",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.Driver != StoreDriverSQLite {
		t.Errorf("expected sqlite driver, got %s", cfg.Store.Driver)
	}
	if cfg.Store.SQLitePath != "/tmp/words.db" {
		t.Errorf("unexpected sqlite path %s", cfg.Store.SQLitePath)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nAPI_SERVER_PORT=7070\nexport API_OCR_BASE_URL=\"http://ocr.internal:9000\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win over dotenv, got %s", cfg.Server.Port)
	}
	if cfg.OCR.BaseURL != "http://ocr.internal:9000" {
		t.Errorf("expected ocr base url from dotenv, got %s", cfg.OCR.BaseURL)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_OCR_BASE_URL":     "ftp://ocr",
		"API_STORE_DRIVER":     "mongo",
		"API_UPLOAD_MAX_BYTES": "-1",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	fields := validationErr.Fields()
	expected := []string{"OCR.BaseURL", "Store.Driver", "Upload.MaxBytes"}
	if len(fields) != len(expected) {
		t.Fatalf("expected fields %v, got %v", expected, fields)
	}
	for i, field := range expected {
		if fields[i] != field {
			t.Errorf("expected field %s at %d, got %s", field, i, fields[i])
		}
	}
}
