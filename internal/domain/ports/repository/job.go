package repository

import (
	"context"

	"render-orchestrator/internal/domain/model"
)

// JobRepository persists job records write-through. The processor owns
// the live state; rows exist for durability and operator queries.
type JobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	ListBySubject(ctx context.Context, tx Tx, subjectID string, limit int) ([]*model.Job, error)
}
