package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/vsinha/seasonplan/pkg/application/dto"
	"github.com/vsinha/seasonplan/pkg/application/services/orchestration"
	"github.com/vsinha/seasonplan/pkg/domain/entities"
)

var (
	_ orchestration.LogSink    = (*Store)(nil)
	_ orchestration.ResultSink = (*Store)(nil)
	_ orchestration.RunStore   = (*Store)(nil)
)

// Store persists execution logs, result bundles and run snapshots in SQLite
type Store struct {
	path   string
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and applies pending migrations
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", absPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer; the coordinator appends log entries while results are saved
	db.SetMaxOpenConns(1)

	version, err := migrate(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Debug("database ready", zap.String("path", absPath), zap.Int("schema_version", version))

	return &Store{path: absPath, db: db, logger: logger, now: time.Now}, nil
}

// Path returns the absolute database path
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendLog stores one execution log entry. Entries are append-only;
// a duplicate (run, sequence) is an error.
func (s *Store) AppendLog(ctx context.Context, entry entities.ExecutionLogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_log
			(run_id, sequence, step_name, started_at, duration_ms, status, input_digest, output_digest, cause)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID, entry.Sequence, entry.StepName, formatTime(entry.StartedAt), entry.DurationMs,
		string(entry.Status), entry.InputDigest, entry.OutputDigest, entry.Cause,
	)
	if err != nil {
		return fmt.Errorf("failed to append log entry %s/%d: %w", entry.RunID, entry.Sequence, err)
	}
	return nil
}

// ListLog returns a run's execution log ordered by sequence
func (s *Store) ListLog(ctx context.Context, runID string) ([]entities.ExecutionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, sequence, step_name, started_at, duration_ms, status, input_digest, output_digest, cause
		FROM execution_log
		WHERE run_id = ?
		ORDER BY sequence ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}
	defer rows.Close()

	var log []entities.ExecutionLogEntry
	for rows.Next() {
		var (
			entry   entities.ExecutionLogEntry
			started string
			status  string
		)
		if err := rows.Scan(&entry.RunID, &entry.Sequence, &entry.StepName, &started, &entry.DurationMs,
			&status, &entry.InputDigest, &entry.OutputDigest, &entry.Cause); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		if entry.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		entry.Status = entities.StepStatus(status)
		log = append(log, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read execution log: %w", err)
	}
	return log, nil
}

// SaveResult appends a result bundle; the latest bundle per run wins on load
func (s *Store) SaveResult(ctx context.Context, result dto.WorkflowResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result bundle: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO result_bundles (run_id, week, state, generated_at, bundle_json)
		VALUES (?, ?, ?, ?, ?)`,
		result.RunID, result.Week, result.State, formatTime(result.GeneratedAt), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save result bundle for run %s: %w", result.RunID, err)
	}
	return nil
}

// LoadResult returns the most recent result bundle of a run
func (s *Store) LoadResult(ctx context.Context, runID string) (*dto.WorkflowResult, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT bundle_json FROM result_bundles
		WHERE run_id = ?
		ORDER BY id DESC
		LIMIT 1`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no result bundle for run %s: %w", runID, orchestration.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result bundle: %w", err)
	}

	var result dto.WorkflowResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result bundle for run %s: %w", runID, err)
	}
	return &result, nil
}

// SaveSnapshot inserts or replaces the run's snapshot
func (s *Store) SaveSnapshot(ctx context.Context, snapshot orchestration.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal run snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, category, state, week, created_at, updated_at, snapshot_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			week = excluded.week,
			updated_at = excluded.updated_at,
			snapshot_json = excluded.snapshot_json`,
		snapshot.RunID, snapshot.Parameters.Category, string(snapshot.State), snapshot.Week,
		formatTime(snapshot.CreatedAt), formatTime(s.now()), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for run %s: %w", snapshot.RunID, err)
	}
	return nil
}

// LoadSnapshot returns a run's latest snapshot
func (s *Store) LoadSnapshot(ctx context.Context, runID string) (*orchestration.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot_json FROM runs WHERE run_id = ?`, runID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, orchestration.ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot orchestration.Snapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for run %s: %w", runID, err)
	}
	return &snapshot, nil
}

// ListRuns returns stored runs, most recently updated first
func (s *Store) ListRuns(ctx context.Context) ([]dto.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, category, state, week, updated_at
		FROM runs
		ORDER BY updated_at DESC, run_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []dto.RunSummary
	for rows.Next() {
		var (
			run     dto.RunSummary
			updated string
		)
		if err := rows.Scan(&run.RunID, &run.Category, &run.State, &run.Week, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}

// fixed width so stored times sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored time %q: %w", s, err)
	}
	return t, nil
}
