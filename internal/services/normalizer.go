package services

import (
	"encoding/json"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey trims and lower-cases the english text of a candidate. The
// second result is false when nothing remains, in which case the candidate
// is dropped without an outcome.
func NormalizeKey(candidate Candidate) (string, bool) {
	trimmed := strings.TrimSpace(candidate.English)
	if trimmed == "" {
		return "", false
	}
	key := cases.Lower(language.Und).String(norm.NFC.String(trimmed))
	return key, key != ""
}

// ParseCandidate reads the fields the pipeline uses from one raw OCR entry.
// Entries that are not objects, or whose fields are not strings, yield empty
// values and are filtered by NormalizeKey.
func ParseCandidate(raw json.RawMessage) Candidate {
	var fields struct {
		English any `json:"english"`
		Chinese any `json:"chinese"`
		Pinyin  any `json:"pinyin"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Candidate{}
	}
	return Candidate{
		English: stringField(fields.English),
		Chinese: stringField(fields.Chinese),
		Pinyin:  stringField(fields.Pinyin),
	}
}

// ParseCandidates maps ParseCandidate over a vocabulary list, preserving order.
func ParseCandidates(vocabulary []json.RawMessage) []Candidate {
	out := make([]Candidate, 0, len(vocabulary))
	for _, raw := range vocabulary {
		out = append(out, ParseCandidate(raw))
	}
	return out
}

func stringField(value any) string {
	s, _ := value.(string)
	return s
}
