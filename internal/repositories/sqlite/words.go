// Package sqlite implements the word store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/repositories"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var tracer = otel.Tracer("github.com/spellquest/vocab-api/internal/repositories/sqlite")

// WordRepository stores words in a local SQLite file.
type WordRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repositories.WordRepository = (*WordRepository)(nil)

// Open connects to the database at path (":memory:" is accepted) and applies migrations.
func Open(ctx context.Context, path string) (*WordRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	repo := &WordRepository{db: db, now: time.Now}
	if err := repo.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database connection.
func (r *WordRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Exists reports whether a word matches english case-insensitively.
func (r *WordRepository) Exists(ctx context.Context, english string) (found bool, err error) {
	ctx, span := tracer.Start(ctx, "words.exists", trace.WithAttributes(attribute.String("db.system", "sqlite")))
	defer func() { endSpan(span, err) }()

	var one int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM words WHERE lower(english) = lower(?) LIMIT 1`, english,
	).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check existing word: %w", err)
	}
	return true, nil
}

// Create inserts the word and returns the stored row.
func (r *WordRepository) Create(ctx context.Context, word domain.NewWord) (record domain.WordRecord, err error) {
	ctx, span := tracer.Start(ctx, "words.create", trace.WithAttributes(attribute.String("db.system", "sqlite")))
	defer func() { endSpan(span, err) }()

	createdAt := r.now().UTC()
	var id int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO words (english, chinese, pinyin, category, grade, created_at)
         VALUES (?, ?, ?, ?, ?, ?) RETURNING id`,
		word.English, word.Chinese, word.Pinyin, word.Category, word.Grade,
		createdAt.Format(time.RFC3339Nano),
	).Scan(&id)
	if err != nil {
		return domain.WordRecord{}, fmt.Errorf("insert word: %w", err)
	}
	return domain.WordRecord{
		ID:        strconv.FormatInt(id, 10),
		English:   word.English,
		Chinese:   word.Chinese,
		Pinyin:    word.Pinyin,
		Category:  word.Category,
		Grade:     word.Grade,
		CreatedAt: &createdAt,
	}, nil
}

// List returns every stored word ordered by insertion.
func (r *WordRepository) List(ctx context.Context) ([]domain.WordRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, english, chinese, pinyin, category, grade, created_at FROM words ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	defer rows.Close()

	var out []domain.WordRecord
	for rows.Next() {
		var (
			id        int64
			record    domain.WordRecord
			createdAt string
		)
		if err := rows.Scan(&id, &record.English, &record.Chinese, &record.Pinyin, &record.Category, &record.Grade, &createdAt); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		record.ID = strconv.FormatInt(id, 10)
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			record.CreatedAt = &ts
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate words: %w", err)
	}
	return out, nil
}

// Ping confirms the database file is reachable.
func (r *WordRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

func (r *WordRepository) migrate(ctx context.Context) error {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	for _, name := range names {
		version := strings.TrimSuffix(name, ".sql")
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
