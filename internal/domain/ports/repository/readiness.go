package repository

import (
	"context"

	"render-orchestrator/internal/domain/model"
)

// ReadinessRepository stores one SubjectReadiness row per subject.
type ReadinessRepository interface {
	Save(ctx context.Context, tx Tx, r *model.SubjectReadiness) error
	FindBySubject(ctx context.Context, tx Tx, subjectID string) (*model.SubjectReadiness, error)

	// FindBySubjectForUpdate locks the row for the duration of tx so
	// concurrent counter updates serialize instead of losing writes.
	FindBySubjectForUpdate(ctx context.Context, tx Tx, subjectID string) (*model.SubjectReadiness, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.SubjectReadiness, error)
}
