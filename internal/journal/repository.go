package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	UpdateRunStatus(ctx context.Context, id, status, errorMsg string) error
	FinishRun(ctx context.Context, id string, quotaUsed int, targetSeconds, outputSeconds float64) error

	SaveUnits(ctx context.Context, runID string, units []UnitRecord) error
	ListUnits(ctx context.Context, runID string) ([]*UnitRecord, error)

	RecordCall(ctx context.Context, runID, kind string, cost int, allowed bool) error
	CountCalls(ctx context.Context, runID string) ([]CallStat, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const runColumns = `id, text_path, output_path, audio_path, mode, status, error,
	quota_limit, quota_used, target_seconds, output_seconds, created_at, updated_at`

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TextPath, run.OutputPath, nullString(run.AudioPath), run.Mode, run.Status, nullString(run.Error),
		run.QuotaLimit, run.QuotaUsed, run.TargetSeconds, run.OutputSeconds,
		run.CreatedAt.Format(time.RFC3339), run.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var audioPath, errMsg sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(&run.ID, &run.TextPath, &run.OutputPath, &audioPath, &run.Mode, &run.Status, &errMsg,
		&run.QuotaLimit, &run.QuotaUsed, &run.TargetSeconds, &run.OutputSeconds, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	run.AudioPath = audioPath.String
	run.Error = errMsg.String
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

func (r *SQLiteRepository) UpdateRunStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?
	`, status, nullString(errorMsg), id)
	return err
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, id string, quotaUsed int, targetSeconds, outputSeconds float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = NULL, quota_used = ?, target_seconds = ?, output_seconds = ?,
			updated_at = datetime('now')
		WHERE id = ?
	`, RunStatusCompleted, quotaUsed, targetSeconds, outputSeconds, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// SaveUnits replaces the unit outcomes of a run in one transaction.
func (r *SQLiteRepository) SaveUnits(ctx context.Context, runID string, units []UnitRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO units (run_id, idx, text, granularity, outcome, video_id, start_seconds, end_seconds, clip_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO UPDATE SET
			text = excluded.text,
			granularity = excluded.granularity,
			outcome = excluded.outcome,
			video_id = excluded.video_id,
			start_seconds = excluded.start_seconds,
			end_seconds = excluded.end_seconds,
			clip_path = excluded.clip_path
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range units {
		if _, err := stmt.ExecContext(ctx, runID, u.Index, u.Text, u.Granularity, u.Outcome,
			nullString(u.VideoID), u.StartSeconds, u.EndSeconds, nullString(u.ClipPath)); err != nil {
			return fmt.Errorf("save unit %d: %w", u.Index, err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) ListUnits(ctx context.Context, runID string) ([]*UnitRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, idx, text, granularity, outcome, video_id, start_seconds, end_seconds, clip_path
		FROM units WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var units []*UnitRecord
	for rows.Next() {
		var u UnitRecord
		var videoID, clipPath sql.NullString
		if err := rows.Scan(&u.RunID, &u.Index, &u.Text, &u.Granularity, &u.Outcome,
			&videoID, &u.StartSeconds, &u.EndSeconds, &clipPath); err != nil {
			return nil, err
		}
		u.VideoID = videoID.String
		u.ClipPath = clipPath.String
		units = append(units, &u)
	}
	return units, rows.Err()
}

func (r *SQLiteRepository) RecordCall(ctx context.Context, runID, kind string, cost int, allowed bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_calls (run_id, kind, cost, allowed, created_at) VALUES (?, ?, ?, ?, ?)
	`, runID, kind, cost, boolToInt(allowed), time.Now().UTC().Format(time.RFC3339))
	return err
}

// CountCalls summarizes quota decisions per call kind. Units counts only admitted calls.
func (r *SQLiteRepository) CountCalls(ctx context.Context, runID string) ([]CallStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind,
			SUM(CASE WHEN allowed = 1 THEN 1 ELSE 0 END),
			SUM(CASE WHEN allowed = 0 THEN 1 ELSE 0 END),
			SUM(CASE WHEN allowed = 1 THEN cost ELSE 0 END)
		FROM api_calls WHERE run_id = ? GROUP BY kind ORDER BY kind
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []CallStat
	for rows.Next() {
		var s CallStat
		if err := rows.Scan(&s.Kind, &s.Allowed, &s.Denied, &s.Units); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// parseTime accepts RFC3339 and SQLite's datetime('now') format.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
