package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/platform/ocr"
	"github.com/spellquest/vocab-api/internal/platform/requestctx"
)

var (
	// ErrUploadMalformed reports a request that is not a form or carries no parts.
	ErrUploadMalformed = errors.New("scan: no file uploaded")
	// ErrNoFileField reports a form without a part named "file".
	ErrNoFileField = errors.New("scan: no file field found")
)

// ScanResult is what one uploaded sheet produced: the OCR vocabulary as
// received and the outcome of ingesting it.
type ScanResult struct {
	RunID      string
	Vocabulary []json.RawMessage
	Saved      BatchResult
}

// ScanServiceDeps bundles collaborators required to construct a scan service.
type ScanServiceDeps struct {
	Extractor   VocabularyExtractor
	Ingestion   IngestionService
	Logger      *zap.Logger
	IDGenerator func() string
}

type scanService struct {
	extractor VocabularyExtractor
	ingestion IngestionService
	logger    *zap.Logger
	newRunID  func() string
}

var _ ScanService = (*scanService)(nil)

// NewScanService wires extraction in front of the ingestion pipeline.
func NewScanService(deps ScanServiceDeps) (ScanService, error) {
	if deps.Extractor == nil {
		return nil, errors.New("scan service: extractor is required")
	}
	if deps.Ingestion == nil {
		return nil, errors.New("scan service: ingestion service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &scanService{
		extractor: deps.Extractor,
		ingestion: deps.Ingestion,
		logger:    logger,
		newRunID:  idGen,
	}, nil
}

// Scan forwards the upload to OCR and ingests whatever vocabulary comes back.
// Extraction failures are returned unchanged so callers can inspect
// *ocr.UpstreamError and ocr.ErrUnavailable.
func (s *scanService) Scan(ctx context.Context, upload ocr.Upload) (ScanResult, error) {
	if ctx == nil {
		return ScanResult{}, errors.New("scan service: context is required")
	}

	runID := requestctx.RunID(ctx)
	if runID == "" {
		runID = s.newRunID()
		ctx = requestctx.WithRunID(ctx, runID)
	}

	extracted, err := s.extractor.ExtractVocabulary(ctx, upload)
	if err != nil {
		return ScanResult{RunID: runID}, err
	}

	result := ScanResult{
		RunID:      runID,
		Vocabulary: extracted.Vocabulary,
		Saved:      domain.NewBatchResult(),
	}
	if result.Vocabulary == nil {
		result.Vocabulary = []json.RawMessage{}
	}
	if len(result.Vocabulary) == 0 {
		s.loggerFor(ctx).Info("ocr returned no vocabulary", zap.String("run_id", runID))
		return result, nil
	}

	saved, err := s.ingestion.Ingest(ctx, ParseCandidates(result.Vocabulary))
	if err != nil {
		return result, fmt.Errorf("scan service: ingest vocabulary: %w", err)
	}
	result.Saved = saved
	return result, nil
}

func (s *scanService) loggerFor(ctx context.Context) *zap.Logger {
	if logger := requestctx.Logger(ctx); logger != requestctx.NoopLogger() {
		return logger
	}
	return s.logger
}
