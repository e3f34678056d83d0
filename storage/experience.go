// Package storage persists accumulated writing experience in SQLite.
//
// After a successful run the workflow records what it learned (feedback
// patterns, applied patches) keyed by the problem statement; later runs on
// similar problems retrieve that experience to seed their first draft.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Metadata describes one experience entry.
type Metadata struct {
	Kind    string `json:"kind"`
	Problem string `json:"problem"`
	Date    string `json:"date"`
}

// Entry is one retrieved experience record.
type Entry struct {
	ID       string
	Text     string
	Metadata Metadata
}

// ExperienceStore is a SQLite-backed experience log.
type ExperienceStore struct {
	db *sql.DB
}

const experienceSchema = `
CREATE TABLE IF NOT EXISTS experiences (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	problem    TEXT NOT NULL,
	date       TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_experiences_problem ON experiences(problem);
`

// OpenExperience opens (creating if needed) an experience store at path.
func OpenExperience(path string) (*ExperienceStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating experience dir: %w", err)
		}
	}
	return openExperience(path)
}

// NewExperienceInMemory returns a store backed by an in-memory database.
func NewExperienceInMemory() (*ExperienceStore, error) {
	return openExperience(":memory:")
}

func openExperience(dsn string) (*ExperienceStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening experience db: %w", err)
	}
	if _, err := db.Exec(experienceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing experience schema: %w", err)
	}
	return &ExperienceStore{db: db}, nil
}

func (s *ExperienceStore) Close() error {
	return s.db.Close()
}

// Add stores texts with their metadata. IDs may be empty, in which case
// content-derived IDs are generated.
func (s *ExperienceStore) Add(ctx context.Context, texts []string, metadatas []Metadata, ids []string) error {
	if len(texts) != len(metadatas) {
		return fmt.Errorf("texts and metadatas length mismatch: %d vs %d", len(texts), len(metadatas))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning experience tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO experiences (id, text, kind, problem, date) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing experience insert: %w", err)
	}
	defer stmt.Close()

	for i, text := range texts {
		id := ""
		if i < len(ids) {
			id = ids[i]
		}
		if id == "" {
			id = GenerateID(text)
		}
		md := metadatas[i]
		if md.Date == "" {
			md.Date = time.Now().UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx, id, text, md.Kind, md.Problem, md.Date); err != nil {
			return fmt.Errorf("inserting experience %s: %w", id, err)
		}
	}

	return tx.Commit()
}

// Retrieve returns up to limit entries relevant to the problem: exact
// problem matches first, then the most recent entries overall.
func (s *ExperienceStore) Retrieve(ctx context.Context, problem string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, kind, problem, date
		FROM experiences
		ORDER BY (problem = ?) DESC, created_at DESC
		LIMIT ?`, problem, limit)
	if err != nil {
		return nil, fmt.Errorf("querying experiences: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Text, &e.Metadata.Kind, &e.Metadata.Problem, &e.Metadata.Date); err != nil {
			return nil, fmt.Errorf("scanning experience: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GenerateID derives a stable-prefix unique ID from content.
func GenerateID(text string) string {
	return fmt.Sprintf("%016x-%s", xxhash.Sum64String(text), uuid.NewString()[:8])
}
