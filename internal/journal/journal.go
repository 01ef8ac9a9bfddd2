// Package journal keeps an SQLite record of every finished recording.
package journal

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/audiolibrelab/homebooth/internal/recording"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// Entry is one journal row.
type Entry struct {
	ID         int64             `json:"id"`
	Path       string            `json:"path"`
	Outcome    recording.Outcome `json:"outcome"`
	Status     recording.Status  `json:"status"`
	Bytes      int64             `json:"bytes"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Detail     string            `json:"detail,omitempty"`
}

// Summary counts entries per outcome.
type Summary struct {
	Total     int                       `json:"total"`
	Saved     int                       `json:"saved"`
	ByOutcome map[recording.Outcome]int `json:"by_outcome"`
}

type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file and its directory if needed.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path not set")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// the kiosk loop and the API share one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal: %w", err)
	}

	slog.Debug("Journal opened", "path", path)
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends a stop report. A missing finish time is filled in.
func (j *Journal) Record(r recording.Report) error {
	finished := r.FinishedAt
	if finished.IsZero() {
		finished = j.now()
	}

	_, err := j.db.Exec(
		`INSERT INTO recordings (path, outcome, status, bytes, started_at, finished_at, detail) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Path, string(r.Outcome), string(r.Status), r.Bytes, r.StartedAt.UTC(), finished.UTC(), r.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry for %s: %w", r.Path, err)
	}
	slog.Debug("Journal entry written", "path", r.Path, "outcome", r.Outcome)
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	query := `SELECT id, path, outcome, status, bytes, started_at, finished_at, detail FROM recordings ORDER BY finished_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var outcome, status string
		if err := rows.Scan(&e.ID, &e.Path, &outcome, &status, &e.Bytes, &e.StartedAt, &e.FinishedAt, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.Outcome = recording.Outcome(outcome)
		e.Status = recording.Status(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal rows: %w", err)
	}
	return entries, nil
}

func (j *Journal) Summary() (Summary, error) {
	rows, err := j.db.Query(`SELECT outcome, COUNT(*) FROM recordings GROUP BY outcome`)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to query journal summary: %w", err)
	}
	defer rows.Close()

	s := Summary{ByOutcome: map[recording.Outcome]int{}}
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return Summary{}, fmt.Errorf("failed to scan journal summary: %w", err)
		}
		s.ByOutcome[recording.Outcome(outcome)] = n
		s.Total += n
	}
	s.Saved = s.ByOutcome[recording.OutcomeSaved]
	return s, rows.Err()
}
