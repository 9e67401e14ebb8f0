package services

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/platform/requestctx"
	"github.com/spellquest/vocab-api/internal/repositories"
)

const ingestionInstrumentation = "github.com/spellquest/vocab-api/internal/services/ingestion"

const (
	outcomeCreated = "created"
	outcomeSkipped = "skipped"
	outcomeError   = "error"
)

var (
	errIngestionProberRequired = errors.New("ingestion service: word prober is required")
	errIngestionWriterRequired = errors.New("ingestion service: word writer is required")
)

// IngestionServiceDeps bundles collaborators required to construct an ingestion service.
type IngestionServiceDeps struct {
	Prober      repositories.WordProber
	Writer      repositories.WordWriter
	Logger      *zap.Logger
	Meter       metric.Meter
	Clock       func() time.Time
	IDGenerator func() string
}

type ingestionService struct {
	prober   repositories.WordProber
	writer   repositories.WordWriter
	logger   *zap.Logger
	now      func() time.Time
	newRunID func() string
	tracer   trace.Tracer
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

var _ IngestionService = (*ingestionService)(nil)

// NewIngestionService wires the batch orchestrator.
func NewIngestionService(deps IngestionServiceDeps) (IngestionService, error) {
	if deps.Prober == nil {
		return nil, errIngestionProberRequired
	}
	if deps.Writer == nil {
		return nil, errIngestionWriterRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(ingestionInstrumentation)
	}

	svc := &ingestionService{
		prober:   deps.Prober,
		writer:   deps.Writer,
		logger:   logger,
		now:      func() time.Time { return clock().UTC() },
		newRunID: idGen,
		tracer:   otel.Tracer(ingestionInstrumentation),
	}

	outcomes, err := meter.Int64Counter(
		"vocab.ingest.candidates",
		metric.WithDescription("Candidates processed by ingestion runs, by outcome"),
	)
	if err != nil {
		logger.Warn("ingestion: unable to register outcome metric", zap.Error(err))
	} else {
		svc.outcomes = outcomes
	}
	duration, err := meter.Float64Histogram(
		"vocab.ingest.run.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Wall time of one ingestion run in milliseconds"),
	)
	if err != nil {
		logger.Warn("ingestion: unable to register duration metric", zap.Error(err))
	} else {
		svc.duration = duration
	}

	return svc, nil
}

func (s *ingestionService) Ingest(ctx context.Context, candidates []Candidate) (BatchResult, error) {
	if ctx == nil {
		return BatchResult{}, errors.New("ingestion service: context is required")
	}

	result := domain.NewBatchResult()
	if len(candidates) == 0 {
		return result, nil
	}

	runID := requestctx.RunID(ctx)
	if runID == "" {
		runID = s.newRunID()
		ctx = requestctx.WithRunID(ctx, runID)
	}
	// A disconnecting caller must not leave a half-reported batch.
	ctx = context.WithoutCancel(ctx)

	logger := requestctx.Logger(ctx)
	if logger == requestctx.NoopLogger() {
		logger = s.logger
	}
	logger = logger.With(zap.String("run_id", runID))

	ctx, span := s.tracer.Start(ctx, "ingestion.run", trace.WithAttributes(
		attribute.String("ingestion.run_id", runID),
		attribute.Int("ingestion.candidates", len(candidates)),
	))
	defer span.End()

	start := s.now()
	dropped := 0
	for index, candidate := range candidates {
		key, ok := NormalizeKey(candidate)
		if !ok {
			dropped++
			logger.Debug("candidate dropped", zap.Int("index", index))
			continue
		}

		found, err := s.prober.Exists(ctx, key)
		if err != nil {
			result.Errors = append(result.Errors, FailedCandidate{English: key, Error: err.Error()})
			s.record(ctx, outcomeError)
			logger.Warn("candidate probe failed", zap.Int("index", index), zap.String("english", key), zap.Error(err))
			continue
		}
		if found {
			result.Skipped = append(result.Skipped, SkippedCandidate{English: key, Reason: domain.SkipReasonExists})
			s.record(ctx, outcomeSkipped)
			logger.Debug("candidate skipped", zap.Int("index", index), zap.String("english", key))
			continue
		}

		record, err := s.writer.Create(ctx, NewWord{
			English:  key,
			Chinese:  candidate.Chinese,
			Pinyin:   "",
			Category: domain.WordCategoryOCR,
			Grade:    domain.WordGradeDefault,
		})
		if err != nil {
			result.Errors = append(result.Errors, FailedCandidate{English: key, Error: err.Error()})
			s.record(ctx, outcomeError)
			logger.Warn("candidate write failed", zap.Int("index", index), zap.String("english", key), zap.Error(err))
			continue
		}
		result.Created = append(result.Created, record)
		s.record(ctx, outcomeCreated)
		logger.Debug("candidate created", zap.Int("index", index), zap.String("english", key), zap.String("id", record.ID))
	}

	elapsed := s.now().Sub(start)
	if s.duration != nil {
		s.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond))
	}
	span.SetAttributes(
		attribute.Int("ingestion.created", len(result.Created)),
		attribute.Int("ingestion.skipped", len(result.Skipped)),
		attribute.Int("ingestion.errors", len(result.Errors)),
	)
	logger.Info("ingestion run completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("dropped", dropped),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("elapsed", elapsed),
	)

	return result, nil
}

func (s *ingestionService) record(ctx context.Context, outcome string) {
	if s.outcomes == nil {
		return
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
