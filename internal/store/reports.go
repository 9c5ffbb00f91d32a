// Package store persists pipeline report history in SQLite. The pipeline
// itself keeps no state across runs; this is server-side bookkeeping so
// callers can fetch past reports by ID.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mathcanvas/internal/logging"
	"mathcanvas/internal/pipeline"
)

// ErrNotFound is returned when a report ID is unknown.
var ErrNotFound = errors.New("report not found")

// ReportSummary is the listing view of a stored report.
type ReportSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	TotalFound     int       `json:"total_found"`
	TotalSucceeded int       `json:"total_succeeded"`
}

// ReportStore is a SQLite-backed history of pipeline reports.
type ReportStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_reports (
	id              TEXT PRIMARY KEY,
	created_at      TIMESTAMP NOT NULL,
	total_found     INTEGER NOT NULL,
	total_succeeded INTEGER NOT NULL,
	payload         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_reports_created
	ON pipeline_reports(created_at DESC);
`

// Open creates or opens the report database at path, creating parent
// directories as needed.
func Open(path string) (*ReportStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open report db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init report schema: %w", err)
	}
	logging.Store("report store opened at %s", path)
	return &ReportStore{db: db}, nil
}

// Close closes the underlying database.
func (s *ReportStore) Close() error {
	return s.db.Close()
}

// Save persists a report under the given ID.
func (s *ReportStore) Save(ctx context.Context, id string, report pipeline.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_reports (id, created_at, total_found, total_succeeded, payload)
		VALUES (?, ?, ?, ?, ?)`,
		id, time.Now().UTC(), report.TotalFound, report.TotalSucceeded, string(payload))
	if err != nil {
		return fmt.Errorf("insert report %s: %w", id, err)
	}
	return nil
}

// Get returns a stored report by ID.
func (s *ReportStore) Get(ctx context.Context, id string) (pipeline.Report, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM pipeline_reports WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return pipeline.Report{}, ErrNotFound
	}
	if err != nil {
		return pipeline.Report{}, fmt.Errorf("query report %s: %w", id, err)
	}
	var report pipeline.Report
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return pipeline.Report{}, fmt.Errorf("decode report %s: %w", id, err)
	}
	return report, nil
}

// List returns the most recent report summaries, newest first.
func (s *ReportStore) List(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, total_found, total_succeeded
		FROM pipeline_reports
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	summaries := make([]ReportSummary, 0, limit)
	for rows.Next() {
		var s ReportSummary
		if err := rows.Scan(&s.ID, &s.CreatedAt, &s.TotalFound, &s.TotalSucceeded); err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
