package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/database"
)

// Store persists run history in SQLite.
//
// Thread Safety:
//   - Safe for concurrent use; the database allows a single connection.
type Store struct {
	db *database.DB
}

// NewStore returns a Store on a migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// CreateRun inserts a new run.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, ci, tests_dir, device_count, phase, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Label, boolToInt(r.CI), r.TestsDir, r.DeviceCount, r.Phase, r.Error, formatTime(r.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// UpdatePhase records the current phase of a run and, once known, its
// device count.
func (s *Store) UpdatePhase(ctx context.Context, runID, phase string, deviceCount int) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET phase = ?, device_count = MAX(device_count, ?) WHERE id = ?",
		phase, deviceCount, runID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	return requireRow(res, runID)
}

// FinishRun marks a run as finished.
func (s *Store) FinishRun(ctx context.Context, runID, phase, errText string, finishedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET phase = ?, error = ?, finished_at = ? WHERE id = ?",
		phase, errText, formatTime(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	return requireRow(res, runID)
}

// RecordSuite stores the outcome of one suite.
func (s *Store) RecordSuite(ctx context.Context, sr SuiteRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suite_runs (run_id, position, suite, exit_code, error, collected, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.RunID, sr.Position, sr.Suite, sr.ExitCode, sr.Error, sr.Collected, sr.Failed,
		formatTime(sr.StartedAt), formatTime(sr.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting suite %s of run %s: %w", sr.Suite, sr.RunID, err)
	}
	return nil
}

// RecordServerEvent stores an automation server lifecycle change.
func (s *Store) RecordServerEvent(ctx context.Context, e ServerEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_events (run_id, udid, port, status, pid, error, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.UDID, e.Port, e.Status, e.PID, e.Error, formatTime(e.At),
	)
	if err != nil {
		return fmt.Errorf("inserting server event for %s: %w", e.UDID, err)
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, runColumns+" WHERE id = ?", runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, runColumns+" ORDER BY started_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Suites returns the suite outcomes of a run in execution order.
func (s *Store) Suites(ctx context.Context, runID string) ([]SuiteRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, position, suite, exit_code, error, collected, failed, started_at, finished_at
		FROM suite_runs WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying suites of run %s: %w", runID, err)
	}
	defer rows.Close()

	var suites []SuiteRun
	for rows.Next() {
		var sr SuiteRun
		var started, finished string
		if err := rows.Scan(&sr.RunID, &sr.Position, &sr.Suite, &sr.ExitCode, &sr.Error,
			&sr.Collected, &sr.Failed, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning suite row: %w", err)
		}
		sr.StartedAt = parseTime(started)
		sr.FinishedAt = parseTime(finished)
		suites = append(suites, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating suites: %w", err)
	}
	return suites, nil
}

// ServerEvents returns the server events of a run in insertion order.
func (s *Store) ServerEvents(ctx context.Context, runID string) ([]ServerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, udid, port, status, pid, error, at
		FROM server_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying server events of run %s: %w", runID, err)
	}
	defer rows.Close()

	var events []ServerEvent
	for rows.Next() {
		var e ServerEvent
		var at string
		if err := rows.Scan(&e.RunID, &e.UDID, &e.Port, &e.Status, &e.PID, &e.Error, &at); err != nil {
			return nil, fmt.Errorf("scanning server event row: %w", err)
		}
		e.At = parseTime(at)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server events: %w", err)
	}
	return events, nil
}

const runColumns = `
	SELECT id, label, ci, tests_dir, device_count, phase, error, started_at, finished_at
	FROM runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var ci int
	var started string
	var finished sql.NullString
	if err := row.Scan(&r.ID, &r.Label, &ci, &r.TestsDir, &r.DeviceCount, &r.Phase, &r.Error, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scanning run row: %w", err)
	}
	r.CI = ci != 0
	r.StartedAt = parseTime(started)
	if finished.Valid {
		r.FinishedAt = parseTime(finished.String)
	}
	return r, nil
}

func requireRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // written by formatTime
	return t
}
