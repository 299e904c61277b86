package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.JobRepository = (*jobRepo)(nil)

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

func (r *jobRepo) Save(ctx context.Context, tx repository.Tx, job *model.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	outputs, err := json.Marshal(job.Outputs)
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}

	const q = `
INSERT INTO generation_jobs
  (id, subject_id, kind, params, variant, estimated_mb, backend_handle, status,
   queued_at, started_at, completed_at, outputs, last_error, cache_hit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  backend_handle = EXCLUDED.backend_handle,
  status = EXCLUDED.status,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  outputs = EXCLUDED.outputs,
  last_error = EXCLUDED.last_error,
  cache_hit = EXCLUDED.cache_hit;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.SubjectID, string(job.Kind), params, string(job.Variant), job.EstimatedMB,
		job.BackendHandle, string(job.Status), job.QueuedAt,
		nullTime(job.StartedAt), nullTime(job.CompletedAt), outputs, job.LastError, job.CacheHit)
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	const q = `
SELECT id, subject_id, kind, params, variant, estimated_mb, backend_handle, status,
       queued_at, started_at, completed_at, outputs, last_error, cache_hit
FROM generation_jobs WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) ListBySubject(ctx context.Context, tx repository.Tx, subjectID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, subject_id, kind, params, variant, estimated_mb, backend_handle, status,
       queued_at, started_at, completed_at, outputs, last_error, cache_hit
FROM generation_jobs WHERE subject_id = $1
ORDER BY queued_at DESC LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, tx, q, subjectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j                     model.Job
		kind, variant, status string
		params, outputs       []byte
		startedAt, doneAt     sql.NullTime
	)
	err := row.Scan(
		&j.ID, &j.SubjectID, &kind, &params, &variant, &j.EstimatedMB, &j.BackendHandle,
		&status, &j.QueuedAt, &startedAt, &doneAt, &outputs, &j.LastError, &j.CacheHit,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Kind = model.JobKind(kind)
	j.Variant = model.WorkflowVariant(variant)
	j.Status = model.JobStatus(status)
	if startedAt.Valid {
		j.StartedAt = startedAt.Time
	}
	if doneAt.Valid {
		j.CompletedAt = doneAt.Time
	}
	if err := json.Unmarshal(params, &j.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if len(outputs) > 0 {
		if err := json.Unmarshal(outputs, &j.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal outputs: %w", err)
		}
	}
	return &j, nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
