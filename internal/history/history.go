// Package history persists one row per filter run in a local SQLite
// database. It is an optional audit trail: callers log and continue when
// the store is unavailable, a run never fails because its history row
// could not be written.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver; replace with your preferred driver if desired.
	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3
)

// Entry is a single completed (or failed) filter run.
type Entry struct {
	StartedAt      time.Time
	Duration       time.Duration
	Input          string
	Output         string
	MatchedSamples int
	TotalSamples   int
	LinesProcessed int64
	LinesWritten   int64
	Projected      int64
	PassedThrough  int64
	Status         string // "success" or "error"
	Error          string // empty on success
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at      TEXT    NOT NULL,
	duration_ms     INTEGER NOT NULL,
	input           TEXT    NOT NULL,
	output          TEXT    NOT NULL,
	matched_samples INTEGER NOT NULL,
	total_samples   INTEGER NOT NULL,
	lines_processed INTEGER NOT NULL,
	lines_written   INTEGER NOT NULL,
	projected       INTEGER NOT NULL,
	passed_through  INTEGER NOT NULL,
	status          TEXT    NOT NULL,
	error           TEXT    NOT NULL
);`

// Open opens (creating if necessary) the history database at path and
// ensures the runs table exists. It returns the Store plus a Close
// function for cleanup.
func Open(ctx context.Context, path string) (*Store, func(), error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, fmt.Errorf("history: path must not be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("history: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("history: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("history: create table: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Store{db: db}, closeFn, nil
}

// Record inserts one run row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	const insertSQL = `
INSERT INTO runs (
	started_at, duration_ms, input, output,
	matched_samples, total_samples,
	lines_processed, lines_written, projected, passed_through,
	status, error
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, insertSQL,
		e.StartedAt.UTC().Format(time.RFC3339),
		e.Duration.Milliseconds(),
		e.Input,
		e.Output,
		e.MatchedSamples,
		e.TotalSamples,
		e.LinesProcessed,
		e.LinesWritten,
		e.Projected,
		e.PassedThrough,
		e.Status,
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	const selectSQL = `
SELECT started_at, duration_ms, input, output,
	matched_samples, total_samples,
	lines_processed, lines_written, projected, passed_through,
	status, error
FROM runs ORDER BY id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, selectSQL, n)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(
			&startedAt, &durationMS, &e.Input, &e.Output,
			&e.MatchedSamples, &e.TotalSamples,
			&e.LinesProcessed, &e.LinesWritten, &e.Projected, &e.PassedThrough,
			&e.Status, &e.Error,
		); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			e.StartedAt = t
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}
