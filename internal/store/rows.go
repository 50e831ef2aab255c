package store

import (
	"context"
	"fmt"

	"github.com/north-cloud/prospect-research/internal/domain"
)

const rowColumns = `job_id, idx, COALESCE(label,''), COALESCE(prompt,''), status,
	COALESCE(research,''), COALESCE(error,''), input_tokens, output_tokens,
	cache_read, cache_write, score, tier, fallback_used, attempts,
	COALESCE(email_draft,''), email_failed`

// InsertRows seeds a job's rows in one transaction. All rows start pending.
func (s *Store) InsertRows(ctx context.Context, rows []domain.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert rows: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rows (job_id, idx, label, prompt, status) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert row: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range rows {
		r := &rows[i]
		if _, err := stmt.ExecContext(ctx, r.JobID, r.Idx, r.Label, r.Prompt,
			string(domain.RowPending)); err != nil {
			return fmt.Errorf("insert row %d: %w", r.Idx, err)
		}
	}
	return tx.Commit()
}

// SaveRow writes a row's outcome. Keyed by job+idx, so re-applying the same
// result is harmless.
func (s *Store) SaveRow(ctx context.Context, row *domain.Row) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rows SET status = ?, research = ?, error = ?, input_tokens = ?,
			output_tokens = ?, cache_read = ?, cache_write = ?, score = ?,
			tier = ?, fallback_used = ?, attempts = ?, email_draft = ?,
			email_failed = ?
		WHERE job_id = ? AND idx = ?`,
		string(row.Status), row.Research, row.ErrorMsg, row.Usage.Input,
		row.Usage.Output, row.Usage.CacheRead, row.Usage.CacheWrite, row.Score,
		string(row.Tier), boolToInt(row.FallbackUsed), row.Attempts,
		row.EmailDraft, boolToInt(row.EmailFailed), row.JobID, row.Idx)
	if err != nil {
		return fmt.Errorf("save row: %w", err)
	}
	return nil
}

// PendingRows returns rows still awaiting processing, in index order.
func (s *Store) PendingRows(ctx context.Context, jobID string) ([]domain.Row, error) {
	return s.queryRows(ctx,
		`SELECT `+rowColumns+` FROM rows WHERE job_id = ? AND status = 'pending' ORDER BY idx`, jobID)
}

// CompletedRows returns rows already resolved (success or error), in index
// order. Used for history replay on subscribe.
func (s *Store) CompletedRows(ctx context.Context, jobID string) ([]domain.Row, error) {
	return s.queryRows(ctx,
		`SELECT `+rowColumns+` FROM rows WHERE job_id = ? AND status IN ('success','error') ORDER BY idx`, jobID)
}

// AllRows returns every row of a job in original input order.
func (s *Store) AllRows(ctx context.Context, jobID string) ([]domain.Row, error) {
	return s.queryRows(ctx,
		`SELECT `+rowColumns+` FROM rows WHERE job_id = ? ORDER BY idx`, jobID)
}

func (s *Store) queryRows(ctx context.Context, query string, args ...any) ([]domain.Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Row
	for rows.Next() {
		var (
			r                         domain.Row
			fallbackUsed, emailFailed int
		)
		err := rows.Scan(&r.JobID, &r.Idx, &r.Label, &r.Prompt, (*string)(&r.Status),
			&r.Research, &r.ErrorMsg, &r.Usage.Input, &r.Usage.Output,
			&r.Usage.CacheRead, &r.Usage.CacheWrite, &r.Score, (*string)(&r.Tier),
			&fallbackUsed, &r.Attempts, &r.EmailDraft, &emailFailed)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.FallbackUsed = fallbackUsed != 0
		r.EmailFailed = emailFailed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
