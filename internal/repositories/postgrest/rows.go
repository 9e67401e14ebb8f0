package postgrest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	domain "github.com/spellquest/vocab-api/internal/domain"
)

type wordPayload struct {
	English  string `json:"english"`
	Chinese  string `json:"chinese"`
	Pinyin   string `json:"pinyin"`
	Category string `json:"category"`
	Grade    string `json:"grade"`
}

func (p wordPayload) record() domain.WordRecord {
	return domain.WordRecord{
		English:  p.English,
		Chinese:  p.Chinese,
		Pinyin:   p.Pinyin,
		Category: p.Category,
		Grade:    p.Grade,
	}
}

type wordRow struct {
	ID        json.RawMessage `json:"id"`
	English   string          `json:"english"`
	Chinese   string          `json:"chinese"`
	Pinyin    string          `json:"pinyin"`
	Category  string          `json:"category"`
	Grade     string          `json:"grade"`
	CreatedAt string          `json:"created_at"`
}

// firstRow returns the first element of an array body or the object itself.
// A nil result means the body carried no representation.
func firstRow(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	switch trimmed[0] {
	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0], nil
	case '{':
		return json.RawMessage(trimmed), nil
	default:
		return nil, fmt.Errorf("unexpected body starting with %q", trimmed[0])
	}
}

func decodeRecord(raw json.RawMessage) (domain.WordRecord, error) {
	var row wordRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.WordRecord{}, fmt.Errorf("insert word: decode row: %w", err)
	}
	record := domain.WordRecord{
		ID:       rawID(row.ID),
		English:  row.English,
		Chinese:  row.Chinese,
		Pinyin:   row.Pinyin,
		Category: row.Category,
		Grade:    row.Grade,
		Raw:      append(json.RawMessage(nil), raw...),
	}
	if ts := parseTimestamp(row.CreatedAt); !ts.IsZero() {
		record.CreatedAt = &ts
	}
	return record, nil
}

func rawID(raw json.RawMessage) string {
	value := strings.TrimSpace(string(raw))
	if value == "" || value == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return value
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
