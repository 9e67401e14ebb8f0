package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spellquest/vocab-api/internal/platform/config"
	"github.com/spellquest/vocab-api/internal/platform/idempotency"
	"github.com/spellquest/vocab-api/internal/platform/ocr"
	"github.com/spellquest/vocab-api/internal/repositories"
	"github.com/spellquest/vocab-api/internal/repositories/postgrest"
	"github.com/spellquest/vocab-api/internal/repositories/sqlite"
	"github.com/spellquest/vocab-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Ingestion services.IngestionService
	Scan      services.ScanService
	System    services.SystemService
}

// Container wires clients, repositories and services for one process.
type Container struct {
	Config      config.Config
	Words       repositories.WordRepository
	OCR         *ocr.Client
	Idempotency *idempotency.MemoryStore
	Services    Services
}

type containerOptions struct {
	logger     *zap.Logger
	words      repositories.WordRepository
	httpClient *http.Client
	startedAt  time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithLogger sets the logger handed to services.
func WithLogger(logger *zap.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithWordRepository replaces the configured word store.
func WithWordRepository(repo repositories.WordRepository) Option {
	return func(o *containerOptions) {
		o.words = repo
	}
}

// WithHTTPClient overrides the client used for the OCR service and the REST word store.
func WithHTTPClient(client *http.Client) Option {
	return func(o *containerOptions) {
		o.httpClient = client
	}
}

// WithStartedAt sets the process start time reported by health endpoints.
func WithStartedAt(t time.Time) Option {
	return func(o *containerOptions) {
		o.startedAt = t
	}
}

// NewContainer constructs the runtime dependencies.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	options := containerOptions{logger: zap.NewNop(), startedAt: time.Now()}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	ocrClient, err := ocr.NewClient(cfg.OCR.BaseURL, clientWithTimeout(options.httpClient, cfg.OCR.Timeout))
	if err != nil {
		return nil, fmt.Errorf("build ocr client: %w", err)
	}

	words := options.words
	if words == nil {
		words, err = openWordRepository(ctx, cfg.Store, options.httpClient)
		if err != nil {
			return nil, err
		}
	}

	svc, err := buildServices(cfg, options, ocrClient, words)
	if err != nil {
		_ = words.Close()
		return nil, err
	}

	return &Container{
		Config:      cfg,
		Words:       words,
		OCR:         ocrClient,
		Idempotency: idempotency.NewMemoryStore(),
		Services:    svc,
	}, nil
}

// Close releases the word store.
func (c *Container) Close(context.Context) error {
	if c == nil || c.Words == nil {
		return nil
	}
	return c.Words.Close()
}

func openWordRepository(ctx context.Context, cfg config.StoreConfig, base *http.Client) (repositories.WordRepository, error) {
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		repo, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite word store: %w", err)
		}
		return repo, nil
	case config.StoreDriverREST, "":
		repo, err := postgrest.NewWordRepository(cfg.BaseURL, clientWithTimeout(base, cfg.Timeout), postgrest.WithHeaders(cfg.Headers))
		if err != nil {
			return nil, fmt.Errorf("build rest word store: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported word store driver %q", cfg.Driver)
	}
}

func buildServices(cfg config.Config, options containerOptions, ocrClient *ocr.Client, words repositories.WordRepository) (Services, error) {
	if words == nil {
		return Services{}, errors.New("word repository is required")
	}

	ingestion, err := services.NewIngestionService(services.IngestionServiceDeps{
		Prober: words,
		Writer: words,
		Logger: options.logger.Named("ingestion"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build ingestion service: %w", err)
	}

	scan, err := services.NewScanService(services.ScanServiceDeps{
		Extractor: ocrClient,
		Ingestion: ingestion,
		Logger:    options.logger.Named("scan"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build scan service: %w", err)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "ocr", Check: ocrClient.Ping},
		{Name: "word_store", Check: words.Ping},
	})
	if err != nil {
		return Services{}, fmt.Errorf("build health repository: %w", err)
	}

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Build: services.BuildInfo{
			Version:     cfg.Build.Version,
			CommitSHA:   cfg.Build.CommitSHA,
			Environment: cfg.Build.Environment,
			StartedAt:   options.startedAt,
		},
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{Ingestion: ingestion, Scan: scan, System: system}, nil
}

func clientWithTimeout(base *http.Client, timeout time.Duration) *http.Client {
	client := &http.Client{}
	if base != nil {
		copied := *base
		client = &copied
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}
