package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spellquest/vocab-api/internal/platform/textutil"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 60 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultVersion              = "dev"
	defaultOCRBaseURL           = "http://localhost:3002"
	defaultOCRTimeout           = 60 * time.Second
	defaultStoreDriver          = StoreDriverREST
	defaultStoreBaseURL         = "http://localhost:3001"
	defaultStoreTimeout         = 10 * time.Second
	defaultStoreSQLitePath      = "vocab.db"
	defaultUploadMaxBytes       = 10 << 20
	defaultRateLimitUpload      = 30
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Store drivers understood by the word repository factory.
const (
	StoreDriverREST   = "rest"
	StoreDriverSQLite = "sqlite"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Build       BuildConfig
	OCR         OCRConfig
	Store       StoreConfig
	Upload      UploadConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// BuildConfig is reported by /healthz.
type BuildConfig struct {
	Environment string
	Version     string
	CommitSHA   string
}

// OCRConfig points at the vocabulary extraction service.
type OCRConfig struct {
	BaseURL string
	Timeout time.Duration
}

// StoreConfig selects and configures the word store.
type StoreConfig struct {
	Driver     string
	BaseURL    string
	Timeout    time.Duration
	Headers    map[string]string
	SQLitePath string
}

// UploadConfig bounds incoming image uploads.
type UploadConfig struct {
	MaxBytes int64
}

// RateLimitConfig controls request throttling. Zero disables the limiter.
type RateLimitConfig struct {
	UploadPerMinute int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides
// and environment variables. Precedence is dotenv < OS env < explicit env map.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Build: BuildConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
			Version:     stringWithDefault(lookup, "API_VERSION", defaultVersion),
			CommitSHA:   stringWithDefault(lookup, "API_COMMIT_SHA", ""),
		},
		OCR: OCRConfig{
			BaseURL: strings.TrimRight(stringWithDefault(lookup, "API_OCR_BASE_URL", defaultOCRBaseURL), "/"),
			Timeout: durationWithDefault(lookup, "API_OCR_TIMEOUT", defaultOCRTimeout),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(stringWithDefault(lookup, "API_STORE_DRIVER", defaultStoreDriver)),
			BaseURL:    strings.TrimRight(stringWithDefault(lookup, "API_STORE_BASE_URL", defaultStoreBaseURL), "/"),
			Timeout:    durationWithDefault(lookup, "API_STORE_TIMEOUT", defaultStoreTimeout),
			Headers:    mapWithDefault(lookup, "API_STORE_HEADERS"),
			SQLitePath: stringWithDefault(lookup, "API_STORE_SQLITE_PATH", defaultStoreSQLitePath),
		},
		Upload: UploadConfig{
			MaxBytes: int64(intWithDefault(lookup, "API_UPLOAD_MAX_BYTES", defaultUploadMaxBytes)),
		},
		RateLimits: RateLimitConfig{
			UploadPerMinute: intWithDefault(lookup, "API_RATELIMIT_UPLOAD_PER_MIN", defaultRateLimitUpload),
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if !validBaseURL(cfg.OCR.BaseURL) {
		missing = append(missing, "OCR.BaseURL")
	}
	if cfg.OCR.Timeout <= 0 {
		missing = append(missing, "OCR.Timeout")
	}
	switch cfg.Store.Driver {
	case StoreDriverREST:
		if !validBaseURL(cfg.Store.BaseURL) {
			missing = append(missing, "Store.BaseURL")
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(cfg.Store.SQLitePath) == "" {
			missing = append(missing, "Store.SQLitePath")
		}
	default:
		missing = append(missing, "Store.Driver")
	}
	if cfg.Store.Timeout <= 0 {
		missing = append(missing, "Store.Timeout")
	}
	if cfg.Upload.MaxBytes <= 0 {
		missing = append(missing, "Upload.MaxBytes")
	}
	if cfg.RateLimits.UploadPerMinute < 0 {
		missing = append(missing, "RateLimits.UploadPerMinute")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func validBaseURL(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

// mapWithDefault parses "name=value,name=value" pairs. Names are kept as written
// since they become HTTP header names.
func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	raw, ok := lookup(key)
	if !ok {
		return map[string]string{}
	}
	return textutil.ParsePairs(raw)
}
