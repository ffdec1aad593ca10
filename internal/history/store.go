/*
Package history keeps a local journal of analyzed diary entries.

Entries live in a SQLite database (modernc.org/sqlite, CGo-free) and feed the
weekly report used for manager and individual advice.
*/
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"diaryrag/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// fixed-width so text order matches time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store is a SQLite-backed diary journal.
type Store struct {
	db *sql.DB
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one connection keeps ":memory:" databases coherent and serializes writers
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save inserts e, assigning an ID and timestamp when they are unset.
func (s *Store) Save(ctx context.Context, e domain.DiaryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	sentiment, err := json.Marshal(e.Emotion.Sentiment)
	if err != nil {
		return fmt.Errorf("encode sentiment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO diary_entries (id, user_id, created_at_utc, text, score, sentiment_json, short_summary, long_summary, short_advice)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.CreatedAt.UTC().Format(timeLayout), e.Text, e.Emotion.DistressScore,
		string(sentiment), e.ShortSummary, e.LongSummary, e.ShortAdvice,
	)
	if err != nil {
		return fmt.Errorf("insert diary entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for userID, newest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]domain.DiaryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.query(ctx, `
SELECT id, user_id, created_at_utc, text, score, sentiment_json, short_summary, long_summary, short_advice
FROM diary_entries WHERE user_id = ? ORDER BY created_at_utc DESC LIMIT ?`, userID, limit)
}

// Since returns entries for userID created at or after t, oldest first.
func (s *Store) Since(ctx context.Context, userID string, t time.Time) ([]domain.DiaryEntry, error) {
	return s.query(ctx, `
SELECT id, user_id, created_at_utc, text, score, sentiment_json, short_summary, long_summary, short_advice
FROM diary_entries WHERE user_id = ? AND created_at_utc >= ? ORDER BY created_at_utc ASC`,
		userID, t.UTC().Format(timeLayout))
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]domain.DiaryEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query diary entries: %w", err)
	}
	defer rows.Close()

	out := []domain.DiaryEntry{}
	for rows.Next() {
		var (
			e         domain.DiaryEntry
			createdAt string
			sentiment string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &createdAt, &e.Text, &e.Emotion.DistressScore,
			&sentiment, &e.ShortSummary, &e.LongSummary, &e.ShortAdvice); err != nil {
			return nil, fmt.Errorf("scan diary entry: %w", err)
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("entry %s timestamp: %w", e.ID, err)
		}
		if err := json.Unmarshal([]byte(sentiment), &e.Emotion.Sentiment); err != nil {
			return nil, fmt.Errorf("entry %s sentiment: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diary entries: %w", err)
	}
	return out, nil
}
