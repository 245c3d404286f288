// Package history persists run results to a local SQLite database so past
// device-lab runs can be listed and inspected.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/devicelab/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// RunRecord summarizes one orchestration run.
type RunRecord struct {
	ID        string
	Manifest  string
	StartedAt time.Time
	Duration  time.Duration
	Tries     int
	Passed    bool
}

// OutcomeRecord is one stored test outcome, tagged with its try number.
type OutcomeRecord struct {
	Try     int
	Outcome models.TestOutcome
}

// Store manages the SQLite run-history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) the history database at dbPath and
// initializes the schema. Use ":memory:" for an ephemeral store.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// busy_timeout must come first so the remaining pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// RecordRun stores a completed run and every outcome from every try.
// A fresh run ID is generated and returned.
func (s *Store) RecordRun(ctx context.Context, manifest string, startedAt time.Time, duration time.Duration, ag *models.AggregatedResultSet) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	passed := 0
	if ag.Passed() {
		passed = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, manifest, started_at, duration_ms, tries, passed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, manifest, startedAt.UTC(), duration.Milliseconds(), ag.NumTries(), passed,
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outcomes (run_id, try, name, status, duration_ms, log)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for try, rs := range ag.Tries() {
		for _, o := range rs.Outcomes() {
			if _, err := stmt.ExecContext(ctx,
				runID, try+1, o.Name, string(o.Status), o.Duration.Milliseconds(), o.Log,
			); err != nil {
				return "", fmt.Errorf("insert outcome %s: %w", o.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// RecentRuns lists the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, manifest, started_at, duration_ms, tries, passed
		 FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var durationMS int64
		var passed int
		if err := rows.Scan(&rec.ID, &rec.Manifest, &rec.StartedAt, &durationMS, &rec.Tries, &passed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Passed = passed != 0
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

// RunOutcomes returns every stored outcome for a run, ordered by try then
// insertion.
func (s *Store) RunOutcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT try, name, status, duration_ms, log
		 FROM outcomes WHERE run_id = ? ORDER BY try, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var status string
		var durationMS int64
		var log sql.NullString
		if err := rows.Scan(&rec.Try, &rec.Outcome.Name, &status, &durationMS, &log); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		rec.Outcome.Status = models.Status(status)
		rec.Outcome.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Outcome.Log = log.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes the oldest runs beyond the keep limit. keep <= 0 disables
// pruning.
func (s *Store) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (
		   SELECT id FROM runs ORDER BY started_at DESC, id LIMIT ?
		 )`, keep)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}
