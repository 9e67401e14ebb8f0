package services

import (
	"context"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/platform/ocr"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Candidate          = domain.Candidate
	NewWord            = domain.NewWord
	WordRecord         = domain.WordRecord
	BatchResult        = domain.BatchResult
	SkippedCandidate   = domain.SkippedCandidate
	FailedCandidate    = domain.FailedCandidate
	SystemHealthReport = domain.SystemHealthReport
)

// IngestionService runs the normalize, probe and write pipeline over a candidate list.
type IngestionService interface {
	// Ingest processes candidates sequentially in input order. It never fails
	// as a whole; per-candidate failures land in BatchResult.Errors.
	Ingest(ctx context.Context, candidates []Candidate) (BatchResult, error)
}

// VocabularyExtractor turns an uploaded image into raw vocabulary entries.
type VocabularyExtractor interface {
	ExtractVocabulary(ctx context.Context, upload ocr.Upload) (ocr.Result, error)
}

// ScanService combines extraction and ingestion for one uploaded sheet.
type ScanService interface {
	Scan(ctx context.Context, upload ocr.Upload) (ScanResult, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	BuildInfo() BuildInfo
}
