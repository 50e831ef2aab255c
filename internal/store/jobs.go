package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/north-cloud/prospect-research/internal/domain"
)

// jobColumns is the select list shared by every job query.
const jobColumns = `id, user_id, COALESCE(name,''), provider, COALESCE(template_id,''),
	COALESCE(system_prompt,''), use_web_search, COALESCE(col_map,''), total_rows,
	succeeded, failed, status, total_in, total_out, total_cr, total_cw, cost,
	elapsed, COALESCE(fallback_cfg,''), fallback_spend, fallback_calls,
	COALESCE(email_cfg,''), created_at, updated_at`

// CreateJob inserts a job record with status queued.
func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	colMap, err := json.Marshal(job.ColumnMap)
	if err != nil {
		return fmt.Errorf("marshal column map: %w", err)
	}
	fallback, err := marshalOptional(job.Fallback)
	if err != nil {
		return fmt.Errorf("marshal fallback config: %w", err)
	}
	email, err := marshalOptional(job.Email)
	if err != nil {
		return fmt.Errorf("marshal email config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, user_id, name, provider, template_id, system_prompt,
			use_web_search, col_map, total_rows, status, fallback_cfg, email_cfg)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, job.Name, job.Provider, job.TemplateID, job.SystemPrompt,
		boolToInt(job.UseWebSearch), string(colMap), job.TotalRows,
		string(domain.JobQueued), fallback, email)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob loads one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns the user's jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, userID int64, limit int) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SaveJobProgress writes the engine-owned mutable fields of a job.
func (s *Store) SaveJobProgress(ctx context.Context, job *domain.Job) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET succeeded = ?, failed = ?, status = ?, total_in = ?,
			total_out = ?, total_cr = ?, total_cw = ?, cost = ?, elapsed = ?,
			fallback_spend = ?, fallback_calls = ?, updated_at = datetime('now')
		WHERE id = ?`,
		job.Succeeded, job.Failed, string(job.Status), job.Usage.Input,
		job.Usage.Output, job.Usage.CacheRead, job.Usage.CacheWrite,
		job.CostUSD, job.ElapsedSec, job.FallbackSpend, job.FallbackCalls, job.ID)
	if err != nil {
		return fmt.Errorf("save job progress: %w", err)
	}
	return nil
}

// SetJobStatus updates only the status column.
func (s *Store) SetJobStatus(ctx context.Context, id string, status domain.JobStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), id)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// DeleteJob removes a job and all its rows. The user id guards cross-tenant
// deletion.
func (s *Store) DeleteJob(ctx context.Context, id string, userID int64) error {
	// Rows cascade via the foreign key; the user id guard keeps one tenant
	// from deleting another's job.
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*domain.Job, error) {
	var (
		job              domain.Job
		webSearch        int
		colMap           string
		fallback, email  string
		created, updated string
	)
	err := r.Scan(&job.ID, &job.UserID, &job.Name, &job.Provider, &job.TemplateID,
		&job.SystemPrompt, &webSearch, &colMap, &job.TotalRows,
		&job.Succeeded, &job.Failed, (*string)(&job.Status),
		&job.Usage.Input, &job.Usage.Output, &job.Usage.CacheRead, &job.Usage.CacheWrite,
		&job.CostUSD, &job.ElapsedSec, &fallback, &job.FallbackSpend, &job.FallbackCalls,
		&email, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.UseWebSearch = webSearch != 0
	if colMap != "" {
		if err := json.Unmarshal([]byte(colMap), &job.ColumnMap); err != nil {
			return nil, fmt.Errorf("unmarshal column map: %w", err)
		}
	}
	if fallback != "" {
		job.Fallback = &domain.FallbackConfig{}
		if err := json.Unmarshal([]byte(fallback), job.Fallback); err != nil {
			return nil, fmt.Errorf("unmarshal fallback config: %w", err)
		}
	}
	if email != "" {
		job.Email = &domain.EmailConfig{}
		if err := json.Unmarshal([]byte(email), job.Email); err != nil {
			return nil, fmt.Errorf("unmarshal email config: %w", err)
		}
	}
	job.CreatedAt = parseSQLiteTime(created)
	job.UpdatedAt = parseSQLiteTime(updated)
	return &job, nil
}

func marshalOptional(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	switch typed := v.(type) {
	case *domain.FallbackConfig:
		if typed == nil {
			return "", nil
		}
	case *domain.EmailConfig:
		if typed == nil {
			return "", nil
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
