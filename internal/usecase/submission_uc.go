package usecase

import (
	"context"
	"strings"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"

	"github.com/rs/zerolog"
)

// JobQueue is the minimal surface the submission path needs from the
// job processor.
type JobQueue interface {
	Enqueue(job *model.Job) error
	Get(id string) (model.Job, bool)
	InFlight() int
}

// SubmissionUseCase validates a generation request, picks the workflow
// variant for the configured GPU budget, and hands the job to the
// processor. It returns immediately with the queued snapshot; progress
// is consumed via the progress channel.
type SubmissionUseCase interface {
	Submit(ctx context.Context, subjectID string, kind model.JobKind, params model.GenerationParams) (model.Job, error)
	Get(ctx context.Context, jobID string) (model.Job, error)
}

var _ SubmissionUseCase = (*submissionUC)(nil)

type submissionUC struct {
	queue     JobQueue
	estimator ResourceEstimator
	readiness ReadinessUseCase
	budgetMB  int
	log       *zerolog.Logger
}

func NewSubmissionUseCase(queue JobQueue, estimator ResourceEstimator, readiness ReadinessUseCase, budgetMB int, logger *zerolog.Logger) SubmissionUseCase {
	l := logger.With().Str("component", "SubmissionUC").Logger()
	return &submissionUC{
		queue:     queue,
		estimator: estimator,
		readiness: readiness,
		budgetMB:  budgetMB,
		log:       &l,
	}
}

func (u *submissionUC) Submit(ctx context.Context, subjectID string, kind model.JobKind, params model.GenerationParams) (model.Job, error) {
	if err := validate(subjectID, kind, params); err != nil {
		return model.Job{}, err
	}

	variant, estMB, degraded := u.estimator.ChooseVariant(ctx, params, u.budgetMB)
	if degraded {
		u.log.Warn().
			Str("subject_id", subjectID).
			Int("estimated_mb", estMB).
			Msg("request over budget, degraded to draft")
	}

	job := model.NewJob(subjectID, kind, params)
	job.Variant = variant
	job.EstimatedMB = estMB

	if err := u.queue.Enqueue(job); err != nil {
		return model.Job{}, err
	}

	// ensure the subject has a readiness row, then count the in-flight slot
	if _, err := u.readiness.SetTargetIfMissing(ctx, subjectID); err != nil {
		u.log.Error().Err(err).Str("subject_id", subjectID).Msg("readiness row init failed")
	} else if err := u.readiness.RecordEnqueued(ctx, subjectID, 1); err != nil {
		u.log.Error().Err(err).Str("subject_id", subjectID).Msg("pending increment failed")
	}

	return job.Snapshot(), nil
}

func (u *submissionUC) Get(ctx context.Context, jobID string) (model.Job, error) {
	if job, ok := u.queue.Get(jobID); ok {
		return job, nil
	}
	return model.Job{}, domain.ErrNotFound
}

func validate(subjectID string, kind model.JobKind, params model.GenerationParams) error {
	if strings.TrimSpace(subjectID) == "" {
		return domain.ErrInvalidArgument
	}
	if kind != model.JobKindImage && kind != model.JobKindVideo {
		return domain.ErrInvalidArgument
	}
	if params.Width <= 0 || params.Height <= 0 {
		return domain.ErrInvalidArgument
	}
	if params.FrameCount <= 0 {
		return domain.ErrInvalidArgument
	}
	if kind == model.JobKindImage && params.FrameCount != 1 {
		return domain.ErrInvalidArgument
	}
	if strings.TrimSpace(params.Prompt) == "" {
		return domain.ErrInvalidArgument
	}
	return nil
}
