// Package storage keeps a history of analysis runs in a SQLite database.
//
// Each run stores its headline statistic, the weighted decay curve and the
// per-cohort decay series it was computed from, so that successive dataset
// snapshots can be compared. The number of kept runs is bounded; RotateRuns
// drops the oldest ones.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/cohortdecay/internal/models"
)

// ErrRunNotFound is returned when a run ID is unknown
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	created_at       INTEGER NOT NULL,
	reference_cohort TEXT NOT NULL,
	cutoff_index     INTEGER NOT NULL,
	cutoff_decay     REAL NOT NULL,
	curve            TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS cohort_decay (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	cohort  TEXT NOT NULL,
	size    INTEGER NOT NULL,
	decay   TEXT NOT NULL,
	PRIMARY KEY (run_id, cohort)
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs(created_at);
`

// Storage persists runs to SQLite
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens (or creates) the database at path. ":memory:" is accepted for tests.
func New(maxRuns int, path string) (*Storage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writes
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db, maxRuns: maxRuns}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its cohort series in one transaction
func (s *Storage) SaveRun(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}

	curve, err := json.Marshal(run.Curve)
	if err != nil {
		return fmt.Errorf("failed to marshal curve: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO runs (id, created_at, reference_cohort, cutoff_index, cutoff_decay, curve) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixNano(), run.ReferenceCohort, run.CutoffIndex, run.CutoffDecay, string(curve),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, c := range run.Cohorts {
		decay, err := json.Marshal(c.Decay)
		if err != nil {
			return fmt.Errorf("failed to marshal decay for cohort %s: %w", c.Cohort, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO cohort_decay (run_id, cohort, size, decay) VALUES (?, ?, ?, ?)`,
			run.ID, c.Cohort, c.Size, string(decay),
		); err != nil {
			return fmt.Errorf("failed to insert cohort %s: %w", c.Cohort, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(id string) (*models.Run, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, reference_cohort, cutoff_index, cutoff_decay, curve FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT cohort, size, decay FROM cohort_decay WHERE run_id = ? ORDER BY cohort`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohorts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.CohortDecay
		var decay string
		if err := rows.Scan(&c.Cohort, &c.Size, &decay); err != nil {
			return nil, fmt.Errorf("failed to scan cohort: %w", err)
		}
		if err := json.Unmarshal([]byte(decay), &c.Decay); err != nil {
			return nil, fmt.Errorf("failed to unmarshal decay for cohort %s: %w", c.Cohort, err)
		}
		run.Cohorts = append(run.Cohorts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cohorts: %w", err)
	}

	return run, nil
}

// ListRuns returns up to limit runs, newest first, without their cohort series
func (s *Storage) ListRuns(limit int) ([]*models.Run, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, reference_cohort, cutoff_index, cutoff_decay, curve FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// RotateRuns removes the oldest runs exceeding the max limit
func (s *Storage) RotateRuns() error {
	_, err := s.db.Exec(
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY created_at DESC LIMIT ?)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate runs: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var createdAt int64
	var curve string
	if err := row.Scan(&run.ID, &createdAt, &run.ReferenceCohort, &run.CutoffIndex, &run.CutoffDecay, &curve); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.CreatedAt = time.Unix(0, createdAt)
	if err := json.Unmarshal([]byte(curve), &run.Curve); err != nil {
		return nil, fmt.Errorf("failed to unmarshal curve: %w", err)
	}
	return &run, nil
}
