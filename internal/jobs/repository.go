package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	ListPendingJobs(ctx context.Context) ([]*Job, error)
	UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateJobProgress(ctx context.Context, id string, progress int, phase string) error
	UpdateJobSession(ctx context.Context, id, sessionID string) error
	UpdateJobTitle(ctx context.Context, id, title string) error

	AddClipResult(ctx context.Context, res *ClipResult) error
	ListClipResults(ctx context.Context, jobID string) ([]ClipResult, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const jobColumns = `id, session_id, source_url, output_dir, status, progress, phase, title, request, error, created_at, updated_at`

func (r *SQLiteRepository) CreateJob(ctx context.Context, j *Job) error {
	req, err := json.Marshal(j.Request)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.ID, nullString(j.SessionID), j.SourceURL, j.OutputDir, j.Status, j.Progress,
		nullString(j.Phase), nullString(j.Title), string(req), nullString(j.Error),
		j.CreatedAt.UTC().Format(timeLayout), j.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

func (r *SQLiteRepository) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *SQLiteRepository) ListPendingJobs(ctx context.Context) ([]*Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE status = 'pending' ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var sessionID, phase, title, errMsg sql.NullString
	var req, createdAt, updatedAt string

	err := row.Scan(&j.ID, &sessionID, &j.SourceURL, &j.OutputDir, &j.Status, &j.Progress,
		&phase, &title, &req, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(req), &j.Request); err != nil {
		return nil, fmt.Errorf("decode request of job %s: %w", j.ID, err)
	}
	j.SessionID = sessionID.String
	j.Phase = phase.String
	j.Title = title.String
	j.Error = errMsg.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *SQLiteRepository) UpdateJobStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), now(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobProgress(ctx context.Context, id string, progress int, phase string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET progress = ?, phase = ?, updated_at = ? WHERE id = ?
	`, progress, nullString(phase), now(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobSession(ctx context.Context, id, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET session_id = ?, updated_at = ? WHERE id = ?
	`, sessionID, now(), id)
	return err
}

func (r *SQLiteRepository) UpdateJobTitle(ctx context.Context, id, title string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET title = ?, updated_at = ? WHERE id = ?
	`, nullString(title), now(), id)
	return err
}

func (r *SQLiteRepository) AddClipResult(ctx context.Context, c *ClipResult) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clip_results (job_id, clip_id, output_path, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id, clip_id) DO UPDATE SET
			output_path = excluded.output_path,
			duration_seconds = excluded.duration_seconds
	`, c.JobID, c.ClipID, c.OutputPath, c.DurationSeconds, c.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRepository) ListClipResults(ctx context.Context, jobID string) ([]ClipResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, clip_id, output_path, duration_seconds, created_at
		FROM clip_results WHERE job_id = ? ORDER BY clip_id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ClipResult
	for rows.Next() {
		var c ClipResult
		var createdAt string
		if err := rows.Scan(&c.JobID, &c.ClipID, &c.OutputPath, &c.DurationSeconds, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// timeLayout is fixed-width so that ORDER BY created_at sorts correctly.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

// parseTime accepts our RFC3339 timestamps and sqlite's datetime('now')
// format, which markInterruptedJobs writes.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
