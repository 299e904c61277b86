package postgres

import (
	"context"
	"time"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.SampleRepository = (*sampleRepo)(nil)

type sampleRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewSampleRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *sampleRepo {
	return &sampleRepo{pool: pool, tm: tm}
}

func (r *sampleRepo) Insert(ctx context.Context, tx repository.Tx, s *model.PerformanceSample) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = time.Now()
	}

	const q = `
INSERT INTO performance_samples
  (id, job_id, kind, variant, model_name, bucket, queue_wait_ms, processing_ms,
   total_ms, peak_memory_mb, success, bottleneck, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.JobID, string(s.Kind), string(s.Variant), s.ModelName, s.Bucket,
		s.QueueWait.Milliseconds(), s.Processing.Milliseconds(), s.Total.Milliseconds(),
		s.PeakMemoryMB, s.Success, string(s.Bottleneck), s.RecordedAt)
	return err
}

func (r *sampleRepo) ListSince(ctx context.Context, tx repository.Tx, since time.Time) ([]*model.PerformanceSample, error) {
	const q = `
SELECT id, job_id, kind, variant, model_name, bucket, queue_wait_ms, processing_ms,
       total_ms, peak_memory_mb, success, bottleneck, recorded_at
FROM performance_samples WHERE recorded_at >= $1
ORDER BY recorded_at;`

	rows, err := queryRows(ctx, r.pool, tx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PerformanceSample
	for rows.Next() {
		var (
			s                           model.PerformanceSample
			kind, variant, bottleneck   string
			queueMS, processMS, totalMS int64
		)
		err := rows.Scan(
			&s.ID, &s.JobID, &kind, &variant, &s.ModelName, &s.Bucket,
			&queueMS, &processMS, &totalMS, &s.PeakMemoryMB, &s.Success, &bottleneck, &s.RecordedAt,
		)
		if err != nil {
			return nil, err
		}
		s.Kind = model.JobKind(kind)
		s.Variant = model.WorkflowVariant(variant)
		s.Bottleneck = model.Bottleneck(bottleneck)
		s.QueueWait = time.Duration(queueMS) * time.Millisecond
		s.Processing = time.Duration(processMS) * time.Millisecond
		s.Total = time.Duration(totalMS) * time.Millisecond
		out = append(out, &s)
	}
	return out, rows.Err()
}
