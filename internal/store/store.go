// Package store persists processing runs and the tax records they produced.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eargollo/taxsheet/internal/sheet"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Run statuses stored in process_runs.status.
const (
	StatusRunning   = "running"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// recordBatchSize is the number of rows written per transaction.
const recordBatchSize = 500

// Run is one row of process_runs.
type Run struct {
	ID             string     `json:"id"`
	SourceDir      string     `json:"sourceDir"`
	DestDir        string     `json:"destDir"`
	OutputFile     string     `json:"outputFile"`
	Status         string     `json:"status"`
	TotalFiles     int        `json:"totalFiles"`
	ProcessedFiles int        `json:"processedFiles"`
	SkippedFiles   int        `json:"skippedFiles"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// Outcome is the final state of a run passed to FinishRun.
type Outcome struct {
	Status         string
	OutputFile     string
	TotalFiles     int
	ProcessedFiles int
	SkippedFiles   int
	Error          string
}

// Store wraps the database handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New returns a Store over an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// CreateRun inserts a running row for id.
func (s *Store) CreateRun(ctx context.Context, id, sourceDir, destDir string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO process_runs (id, source_dir, dest_dir, status, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, sourceDir, destDir, StatusRunning, s.now().Unix())
	if err != nil {
		return fmt.Errorf("create run %s: %w", id, err)
	}
	return nil
}

// FinishRun records the outcome of run id.
func (s *Store) FinishRun(ctx context.Context, id string, o Outcome) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_runs
		SET status = ?, output_file = ?, total_files = ?, processed_files = ?,
		    skipped_files = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		o.Status, o.OutputFile, o.TotalFiles, o.ProcessedFiles, o.SkippedFiles, o.Error,
		s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// InsertRecords writes records for runID in batched transactions. Either all
// batches commit or the rows already written for runID are removed.
func (s *Store) InsertRecords(ctx context.Context, runID string, records []sheet.Record) error {
	now := s.now().Unix()
	for i := 0; i < len(records); i += recordBatchSize {
		end := min(i+recordBatchSize, len(records))
		if err := s.insertBatch(ctx, runID, records[i:end], now); err != nil {
			if i > 0 {
				if _, derr := s.db.ExecContext(context.WithoutCancel(ctx),
					`DELETE FROM process_data WHERE process_run_id = ?`, runID); derr != nil {
					slog.Warn("remove partial records failed", "run_id", runID, "error", derr)
				}
			}
			return err
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, runID string, batch []sheet.Record, now int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO process_data (tax_id, process_run_id, name, cgst, sgst, cess, year, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range batch {
		if _, err := stmt.ExecContext(ctx, r.TaxID, runID, r.Name, r.CGST, r.SGST, r.Cess, r.Year, r.SourceFile, now); err != nil {
			return fmt.Errorf("insert record %s: %w", r.TaxID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// RecordsByKey returns the records stored for the (taxID, runID) key.
func (s *Store) RecordsByKey(ctx context.Context, taxID, runID string) ([]sheet.Record, error) {
	return s.queryRecords(ctx, `
		SELECT tax_id, name, cgst, sgst, cess, year, source_file
		FROM process_data WHERE tax_id = ? AND process_run_id = ?
		ORDER BY rowid`, taxID, runID)
}

// RecordsByRun returns every record of runID in insertion order.
func (s *Store) RecordsByRun(ctx context.Context, runID string) ([]sheet.Record, error) {
	return s.queryRecords(ctx, `
		SELECT tax_id, name, cgst, sgst, cess, year, source_file
		FROM process_data WHERE process_run_id = ?
		ORDER BY rowid`, runID)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]sheet.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []sheet.Record{}
	for rows.Next() {
		var r sheet.Record
		if err := rows.Scan(&r.TaxID, &r.Name, &r.CGST, &r.SGST, &r.Cess, &r.Year, &r.SourceFile); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const runColumns = `id, source_dir, dest_dir, output_file, status, total_files,
	processed_files, skipped_files, error, started_at, finished_at`

// GetRun returns the run with id, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM process_runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	return r, err
}

// ListRuns returns up to limit runs after skipping offset, newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM process_runs ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRuns returns the number of stored runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM process_runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := sc.Scan(&r.ID, &r.SourceDir, &r.DestDir, &r.OutputFile, &r.Status, &r.TotalFiles,
		&r.ProcessedFiles, &r.SkippedFiles, &r.Error, &started, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.StartedAt = time.Unix(started, 0)
	if finished.Valid {
		t := time.Unix(finished.Int64, 0)
		r.FinishedAt = &t
	}
	return r, nil
}

// MarkStaleRunsFailed marks any runs still in 'running' state as 'failed'.
// It is called once at startup in case a previous process crashed mid-run.
func (s *Store) MarkStaleRunsFailed(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE process_runs
		SET status = ?, error = 'interrupted', finished_at = ?
		WHERE status = ?`,
		StatusFailed, s.now().Unix(), StatusRunning)
	if err != nil {
		return fmt.Errorf("mark stale runs failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.Warn("marked stale runs as failed", "count", n)
	}
	return nil
}

// PurgeOlderThan deletes finished runs (and their records) that started
// before cutoff. Running rows are kept. It returns the number of runs removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM process_runs WHERE started_at < ? AND status != ?`,
		cutoff.Unix(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
