// ABOUTME: Run ledger queries: save, lookup, recent listing and aggregate stats
// ABOUTME: Durations are stored as milliseconds, timestamps as RFC3339 text

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const runColumns = `id, user_id, thread_id, run_id, kind, outcome, remote_status,
	attempts, duration_ms, detail, created_at`

// SaveRun inserts a run record. Missing ID and CreatedAt are filled in.
func (s *SQLiteStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.UserID,
		rec.ThreadID,
		nullString(rec.RunID),
		string(rec.Kind),
		string(rec.Outcome),
		nullString(rec.RemoteStatus),
		rec.Attempts,
		rec.DurationMS,
		nullString(rec.Detail),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun returns a single record by ledger id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecentRuns returns up to limit records, newest first.
func (s *SQLiteStore) ListRecentRuns(ctx context.Context, filter RunFilter, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	where, args := filter.clause()
	query := `SELECT ` + runColumns + ` FROM runs` + where + ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var recs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return recs, nil
}

// GetRunStats aggregates records matching filter.
func (s *SQLiteStore) GetRunStats(ctx context.Context, filter RunFilter) (*RunStats, error) {
	where, args := filter.clause()

	stats := &RunStats{ByOutcome: make(map[Outcome]int)}
	var avgDuration, avgAttempts float64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(AVG(attempts), 0)
		FROM runs`+where, args...).Scan(&stats.Total, &avgDuration, &avgAttempts)
	if err != nil {
		return nil, fmt.Errorf("querying run stats: %w", err)
	}
	stats.AvgDurationMS = int64(avgDuration)
	stats.AvgAttempts = avgAttempts

	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM runs`+where+` GROUP BY outcome`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying outcome counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		stats.ByOutcome[Outcome(outcome)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcome counts: %w", err)
	}
	return stats, nil
}

func (f RunFilter) clause() (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if f.UserID != nil {
		where += " AND user_id = ?"
		args = append(args, *f.UserID)
	}
	if f.Since != nil {
		where += " AND created_at >= ?"
		args = append(args, formatTime(*f.Since))
	}
	return where, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var runID, remoteStatus, detail sql.NullString
	var kind, outcome, createdAt string

	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.ThreadID,
		&runID,
		&kind,
		&outcome,
		&remoteStatus,
		&rec.Attempts,
		&rec.DurationMS,
		&detail,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run row: %w", err)
	}

	rec.RunID = runID.String
	rec.RemoteStatus = remoteStatus.String
	rec.Detail = detail.String
	rec.Kind = RunKind(kind)
	rec.Outcome = Outcome(outcome)

	rec.CreatedAt, err = time.Parse(timeFormat, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &rec, nil
}

// Ensure SQLiteStore implements RunLedger.
var _ RunLedger = (*SQLiteStore)(nil)
