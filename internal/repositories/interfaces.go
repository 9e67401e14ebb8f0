package repositories

import (
	"context"

	domain "github.com/spellquest/vocab-api/internal/domain"
)

// WordProber answers whether the store already holds a word with the given
// normalized english text. Matching is case-insensitive and exact.
type WordProber interface {
	Exists(ctx context.Context, english string) (bool, error)
}

// WordWriter persists a confirmed-new word and returns the stored record.
type WordWriter interface {
	Create(ctx context.Context, word domain.NewWord) (domain.WordRecord, error)
}

// WordRepository is the word store as seen by the ingestion pipeline.
type WordRepository interface {
	WordProber
	WordWriter
	// Ping performs a cheap read used by readiness checks.
	Ping(ctx context.Context) error
	Close() error
}

// HealthRepository collects dependency status for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
