package repository

import (
	"context"
	"time"

	"render-orchestrator/internal/domain/model"
)

// SampleRepository is the append-only performance sample log.
type SampleRepository interface {
	Insert(ctx context.Context, tx Tx, s *model.PerformanceSample) error
	ListSince(ctx context.Context, tx Tx, since time.Time) ([]*model.PerformanceSample, error)
}
