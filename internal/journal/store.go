// Package journal persists analyst runs in SQLite and keeps a full-text
// index of their final reports.
package journal

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

	"github.com/ChamsBouzaiene/analyst/internal/analyst"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one row of the runs table.
type Run struct {
	ID             string
	Query          string
	DataContext    string // JSON
	Status         analyst.Status
	FinalResponse  string
	FailureSummary string
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time // zero while running
}

// Record is one row of the records table.
type Record struct {
	RunID     string
	Seq       int
	Step      string
	Status    analyst.RecordStatus
	Attempts  int
	Output    string
	Report    string
	Error     string
	Code      string
	Artifacts []string
	Reused    bool
	TimedOut  bool
	Duration  time.Duration
}

// Store provides database operations for the run journal.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	// WAL lets history commands read while a run is writing.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support multiple writers well
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id              TEXT PRIMARY KEY,
		query           TEXT NOT NULL,
		data_context    TEXT NOT NULL DEFAULT '{}',
		status          TEXT NOT NULL,
		final_response  TEXT NOT NULL DEFAULT '',
		failure_summary TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT '',
		started_at      INTEGER NOT NULL,
		finished_at     INTEGER
	);

	CREATE TABLE IF NOT EXISTS records (
		run_id      TEXT NOT NULL,
		seq         INTEGER NOT NULL,
		step        TEXT NOT NULL,
		status      TEXT NOT NULL,
		attempts    INTEGER NOT NULL,
		output      TEXT NOT NULL DEFAULT '',
		report      TEXT NOT NULL DEFAULT '',
		error       TEXT NOT NULL DEFAULT '',
		code        TEXT NOT NULL DEFAULT '',
		artifacts   TEXT NOT NULL DEFAULT '[]',
		reused      INTEGER NOT NULL DEFAULT 0,
		timed_out   INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateRun inserts a run in its initial state.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	if r.DataContext == "" {
		r.DataContext = "{}"
	}
	query := `INSERT INTO runs (id, query, data_context, status, started_at) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, r.ID, r.Query, r.DataContext, string(r.Status), r.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", r.ID, err)
	}
	return nil
}

// UpdateStatus records a status transition of a running run.
func (s *Store) UpdateStatus(ctx context.Context, runID string, status analyst.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE id = ?`, string(status), runID)
	return err
}

// FinishRun stores the terminal state of a run.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	query := `
		UPDATE runs
		SET status = ?, data_context = ?, final_response = ?, failure_summary = ?, error = ?, finished_at = ?
		WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(r.Status), r.DataContext, r.FinalResponse, r.FailureSummary, r.Error, r.FinishedAt.UnixMilli(), r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, r.ID)
	}
	return nil
}

// AppendRecord stores one execution record.
func (s *Store) AppendRecord(ctx context.Context, rec Record) error {
	artifacts, err := json.Marshal(nonNil(rec.Artifacts))
	if err != nil {
		return err
	}
	query := `
		INSERT INTO records (run_id, seq, step, status, attempts, output, report, error, code, artifacts, reused, timed_out, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		rec.RunID, rec.Seq, rec.Step, string(rec.Status), rec.Attempts, rec.Output, rec.Report, rec.Error, rec.Code,
		string(artifacts), boolToInt(rec.Reused), boolToInt(rec.TimedOut), rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to append record %d of run %s: %w", rec.Seq, rec.RunID, err)
	}
	return nil
}

const runColumns = `id, query, data_context, status, final_response, failure_summary, error, started_at, finished_at`

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run and its records in execution order.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, []Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}

	query := `
		SELECT run_id, seq, step, status, attempts, output, report, error, code, artifacts, reused, timed_out, duration_ms
		FROM records WHERE run_id = ? ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec        Record
			status     string
			artifacts  string
			reused     int
			timedOut   int
			durationMs int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Step, &status, &rec.Attempts, &rec.Output, &rec.Report,
			&rec.Error, &rec.Code, &artifacts, &reused, &timedOut, &durationMs); err != nil {
			return nil, nil, err
		}
		rec.Status = analyst.RecordStatus(status)
		rec.Reused = reused != 0
		rec.TimedOut = timedOut != 0
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(artifacts), &rec.Artifacts); err != nil {
			return nil, nil, fmt.Errorf("corrupt artifacts for record %d: %w", rec.Seq, err)
		}
		records = append(records, rec)
	}
	return &r, records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		status     string
		startedAt  int64
		finishedAt sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Query, &r.DataContext, &status, &r.FinalResponse, &r.FailureSummary, &r.Error,
		&startedAt, &finishedAt); err != nil {
		return Run{}, err
	}
	r.Status = analyst.Status(status)
	r.StartedAt = time.UnixMilli(startedAt)
	if finishedAt.Valid {
		r.FinishedAt = time.UnixMilli(finishedAt.Int64)
	}
	return r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
