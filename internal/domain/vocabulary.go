package domain

import (
	"encoding/json"
	"time"
)

const (
	// WordCategoryOCR tags every word created from a scanned sheet.
	WordCategoryOCR = "ocr"
	// WordGradeDefault is the grade assigned to scanned words.
	WordGradeDefault = "P1"
	// SkipReasonExists is reported when the store already holds the word.
	SkipReasonExists = "already exists"
)

// Candidate is one vocabulary entry proposed by the OCR service.
// Pinyin is accepted but never persisted.
type Candidate struct {
	English string
	Chinese string
	Pinyin  string
}

// NewWord is the payload written for a confirmed-new candidate.
type NewWord struct {
	English  string
	Chinese  string
	Pinyin   string
	Category string
	Grade    string
}

// WordRecord is a row as reported back by the word store. Raw keeps the
// store's own representation so fields this service does not model survive
// the round trip to the caller.
type WordRecord struct {
	ID        string
	English   string
	Chinese   string
	Pinyin    string
	Category  string
	Grade     string
	CreatedAt *time.Time
	Raw       json.RawMessage
}

// SkippedCandidate reports a candidate that matched an existing word.
type SkippedCandidate struct {
	English string
	Reason  string
}

// FailedCandidate reports a candidate whose probe or write failed.
type FailedCandidate struct {
	English string
	Error   string
}

// BatchResult partitions every accepted candidate of one ingestion run into
// exactly one bucket, each bucket in input order.
type BatchResult struct {
	Created []WordRecord
	Skipped []SkippedCandidate
	Errors  []FailedCandidate
}

// NewBatchResult returns a result with empty, non-nil buckets.
func NewBatchResult() BatchResult {
	return BatchResult{
		Created: []WordRecord{},
		Skipped: []SkippedCandidate{},
		Errors:  []FailedCandidate{},
	}
}

// Total counts the candidates accounted for across all buckets.
func (r BatchResult) Total() int {
	return len(r.Created) + len(r.Skipped) + len(r.Errors)
}
