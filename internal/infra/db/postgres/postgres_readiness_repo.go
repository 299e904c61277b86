package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ReadinessRepository = (*readinessRepo)(nil)

type readinessRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewReadinessRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *readinessRepo {
	return &readinessRepo{pool: pool, tm: tm}
}

func (r *readinessRepo) Save(ctx context.Context, tx repository.Tx, s *model.SubjectReadiness) error {
	s.UpdatedAt = time.Now()

	const q = `
INSERT INTO subject_readiness
  (subject_id, approved, pending, target, consecutive_rejects, daily_generated,
   last_generated_at, state, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (subject_id) DO UPDATE SET
  approved = EXCLUDED.approved,
  pending = EXCLUDED.pending,
  target = EXCLUDED.target,
  consecutive_rejects = EXCLUDED.consecutive_rejects,
  daily_generated = EXCLUDED.daily_generated,
  last_generated_at = EXCLUDED.last_generated_at,
  state = EXCLUDED.state,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.SubjectID, s.Approved, s.Pending, s.Target, s.ConsecutiveRejects, s.DailyGenerated,
		nullTime(s.LastGeneratedAt), string(s.State), s.UpdatedAt)
	return err
}

func (r *readinessRepo) FindBySubject(ctx context.Context, tx repository.Tx, subjectID string) (*model.SubjectReadiness, error) {
	const q = `
SELECT subject_id, approved, pending, target, consecutive_rejects, daily_generated,
       last_generated_at, state, updated_at
FROM subject_readiness WHERE subject_id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, subjectID)
	if err != nil {
		return nil, err
	}
	return scanReadiness(row)
}

func (r *readinessRepo) FindBySubjectForUpdate(ctx context.Context, tx repository.Tx, subjectID string) (*model.SubjectReadiness, error) {
	const q = `
SELECT subject_id, approved, pending, target, consecutive_rejects, daily_generated,
       last_generated_at, state, updated_at
FROM subject_readiness WHERE subject_id = $1
FOR UPDATE;`

	row, err := pickRow(ctx, r.pool, tx, q, subjectID)
	if err != nil {
		return nil, err
	}
	return scanReadiness(row)
}

func (r *readinessRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.SubjectReadiness, error) {
	const q = `
SELECT subject_id, approved, pending, target, consecutive_rejects, daily_generated,
       last_generated_at, state, updated_at
FROM subject_readiness ORDER BY subject_id;`

	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SubjectReadiness
	for rows.Next() {
		s, err := scanReadiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanReadiness(row pgx.Row) (*model.SubjectReadiness, error) {
	var (
		s       model.SubjectReadiness
		state   string
		lastGen sql.NullTime
	)
	err := row.Scan(
		&s.SubjectID, &s.Approved, &s.Pending, &s.Target, &s.ConsecutiveRejects,
		&s.DailyGenerated, &lastGen, &state, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.State = model.SubjectState(state)
	if lastGen.Valid {
		s.LastGeneratedAt = lastGen.Time
	}
	return &s, nil
}
