// Package history keeps a local SQLite ledger of completed runs.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jrepp/prism-subprocess/pkg/subprocess"
)

// Entry is one recorded run
type Entry struct {
	ID         string
	Name       string
	Args       []string
	ReturnCode int
	TimedOut   bool
	ErrorCode  string
	Duration   time.Duration
	StartedAt  time.Time
}

// Stats summarizes the ledger
type Stats struct {
	TotalRuns  int64
	FailedRuns int64
	TimedOut   int64
	Oldest     time.Time
	Newest     time.Time
}

// Store is a run ledger backed by a SQLite database file
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// Open opens or creates the ledger at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?" + strings.Join([]string{
		"_pragma=journal_mode(WAL)",   // Write-Ahead Logging
		"_pragma=synchronous(NORMAL)", // Balance safety and performance
		"_pragma=busy_timeout(5000)",  // 5s timeout for locks
	}, "&")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			args TEXT NOT NULL,
			return_code INTEGER NOT NULL,
			timed_out INTEGER NOT NULL,
			error_code TEXT,
			duration_ms INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)",
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Record stores e. A missing ID is filled with a new UUID and a zero
// StartedAt with the current time.
func (s *Store) Record(ctx context.Context, e Entry) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return "", fmt.Errorf("history store closed")
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}

	argsJSON, err := json.Marshal(e.Args)
	if err != nil {
		return "", fmt.Errorf("failed to marshal args: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, name, args, return_code, timed_out, error_code, duration_ms, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Name,
		string(argsJSON),
		e.ReturnCode,
		e.TimedOut,
		e.ErrorCode,
		e.Duration.Milliseconds(),
		e.StartedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return e.ID, nil
}

// Recent returns up to limit entries, newest first. A limit of zero or less
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("history store closed")
	}

	query := "SELECT id, name, args, return_code, timed_out, error_code, duration_ms, started_at FROM runs ORDER BY started_at DESC, rowid DESC"
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			argsJSON   string
			errorCode  sql.NullString
			durationMS int64
			startedMS  int64
		)
		if err := rows.Scan(&e.ID, &e.Name, &argsJSON, &e.ReturnCode, &e.TimedOut,
			&errorCode, &durationMS, &startedMS); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &e.Args); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
		e.ErrorCode = errorCode.String
		e.Duration = time.Duration(durationMS) * time.Millisecond
		e.StartedAt = time.UnixMilli(startedMS)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Prune deletes entries started before cutoff and returns how many went
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return 0, fmt.Errorf("history store closed")
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Stats returns ledger totals
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("history store closed")
	}

	var (
		stats          Stats
		failed, timed  sql.NullInt64
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			SUM(CASE WHEN return_code != 0 THEN 1 ELSE 0 END),
			SUM(timed_out),
			MIN(started_at),
			MAX(started_at)
		FROM runs
	`).Scan(&stats.TotalRuns, &failed, &timed, &oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("failed to get run stats: %w", err)
	}
	stats.FailedRuns = failed.Int64
	stats.TimedOut = timed.Int64
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.Newest = time.UnixMilli(newest.Int64)
	}
	return &stats, nil
}

// Close closes the database. Further calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// FromResult builds an entry from the outcome of subprocess.Run. result may
// be nil when err is a timeout or a spawn failure.
func FromResult(name string, args []string, started time.Time, result *subprocess.CompletedProcess, err error) Entry {
	e := Entry{
		Name:       name,
		Args:       args,
		ReturnCode: subprocess.ReturnCodeUnknown,
		StartedAt:  started,
		Duration:   time.Since(started),
		ErrorCode:  string(subprocess.GetErrorCode(err)),
	}
	if result != nil {
		e.ID = result.ID
		e.ReturnCode = result.ReturnCode
		e.Duration = result.Duration
	}
	var expired *subprocess.TimeoutExpired
	e.TimedOut = errors.As(err, &expired)
	return e
}
