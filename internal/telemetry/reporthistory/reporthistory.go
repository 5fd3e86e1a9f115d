// Package reporthistory persists every generated telemetry report to a
// durable append-only SQLite store, adapting the WAL-mode Open()/migrate()
// pattern from the teacher's internal/graph/db.go. This is a supplemented
// feature beyond original_source: the Python script only ever wrote the
// latest report to disk, overwriting it each run.
package reporthistory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the SQLite connection holding the report history table.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the report-history database at path, running
// migrations as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("reporthistory: create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("reporthistory: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reporthistory: ping database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reporthistory: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id        TEXT NOT NULL UNIQUE,
			generated_at  TEXT NOT NULL,
			status        TEXT NOT NULL,
			anomaly_count INTEGER NOT NULL,
			report_json   TEXT NOT NULL,
			inserted_at   TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at);
	`)
	return err
}

// Record is one stored row of report history.
type Record struct {
	RunID        string
	GeneratedAt  string
	Status       string
	AnomalyCount int
	ReportJSON   string
	InsertedAt   string
}

// Insert stores a telemetry report (already JSON-encoded) under runID,
// tagged with the status and anomaly count recovered from its summary.
func (s *Store) Insert(runID, generatedAt, status string, anomalyCount int, reportJSON string) error {
	_, err := s.db.Exec(
		`INSERT INTO reports (run_id, generated_at, status, anomaly_count, report_json, inserted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, generatedAt, status, anomalyCount, reportJSON, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("reporthistory: insert: %w", err)
	}
	return nil
}

// Recent returns the most recent limit records, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT run_id, generated_at, status, anomaly_count, report_json, inserted_at
		 FROM reports ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reporthistory: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.RunID, &r.GeneratedAt, &r.Status, &r.AnomalyCount, &r.ReportJSON, &r.InsertedAt); err != nil {
			return nil, fmt.Errorf("reporthistory: scan recent: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AlertCountSince counts stored reports with status "alert" whose
// generated_at is >= since (RFC3339), used to decide whether a run
// represents a repeated, rather than one-off, anomaly.
func (s *Store) AlertCountSince(since string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM reports WHERE status = 'alert' AND generated_at >= ?`, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("reporthistory: count alerts: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// MarshalReportJSON is a small helper so callers don't need to import
// encoding/json directly just to persist a report.
func MarshalReportJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("reporthistory: marshal report: %w", err)
	}
	return string(data), nil
}
