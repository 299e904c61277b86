package usecase

import (
	"context"
	"fmt"
	"time"

	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	"render-orchestrator/internal/domain/ports/repository"
	"render-orchestrator/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// SubjectReport is the operator-facing readiness row.
type SubjectReport struct {
	SubjectID          string             `json:"subject_id"`
	Approved           int                `json:"approved"`
	Pending            int                `json:"pending"`
	Target             int                `json:"target"`
	Deficit            int                `json:"deficit"`
	ConsecutiveRejects int                `json:"consecutive_rejects"`
	DailyGenerated     int                `json:"daily_generated"`
	Status             model.SubjectState `json:"status"`
}

// ReadinessUseCase owns all SubjectReadiness mutations: verdict
// bookkeeping, breaker handling, targets, and the readiness report.
type ReadinessUseCase interface {
	// ApplyVerdict updates counters for a subject's finished job and
	// pauses the subject when the reject streak hits the breaker.
	ApplyVerdict(ctx context.Context, subjectID string, decision model.QualityDecision) error

	// RecordEnqueued bumps pending and the daily counter for n newly
	// enqueued generations.
	RecordEnqueued(ctx context.Context, subjectID string, n int) error

	// ReleasePending frees an in-flight slot for a job that never
	// reached the quality gate (backend failure, timeout, cache hit).
	ReleasePending(ctx context.Context, subjectID string) error

	SetTarget(ctx context.Context, subjectID string, target int) (*model.SubjectReadiness, error)

	// SetTargetIfMissing creates a zero-target readiness row for a
	// subject seen for the first time; existing rows are untouched.
	SetTargetIfMissing(ctx context.Context, subjectID string) (*model.SubjectReadiness, error)
	ResetBreaker(ctx context.Context, subjectID string) error
	Report(ctx context.Context) ([]SubjectReport, error)
	ListActive(ctx context.Context) ([]*model.SubjectReadiness, error)
}

var _ ReadinessUseCase = (*readinessUC)(nil)

type readinessUC struct {
	repo             repository.ReadinessRepository
	txm              repository.TransactionManager
	alerts           adapter.AlertNotifier
	breakerThreshold int
	log              *zerolog.Logger
}

func NewReadinessUseCase(repo repository.ReadinessRepository, txm repository.TransactionManager, alerts adapter.AlertNotifier, breakerThreshold int, logger *zerolog.Logger) ReadinessUseCase {
	l := logger.With().Str("component", "ReadinessUC").Logger()
	return &readinessUC{
		repo:             repo,
		txm:              txm,
		alerts:           alerts,
		breakerThreshold: breakerThreshold,
		log:              &l,
	}
}

// withSubject runs a read-modify-write on one readiness row inside a
// transaction, selecting the row FOR UPDATE so concurrent verdicts for
// the same subject serialize at the database instead of losing
// increments.
func (u *readinessUC) withSubject(ctx context.Context, subjectID string, mutate func(r *model.SubjectReadiness) error) error {
	return u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r, err := u.repo.FindBySubjectForUpdate(ctx, tx, subjectID)
		if err != nil {
			return err
		}
		if err := mutate(r); err != nil {
			return err
		}
		return u.repo.Save(ctx, tx, r)
	})
}

func (u *readinessUC) ApplyVerdict(ctx context.Context, subjectID string, decision model.QualityDecision) error {
	if decision.Verdict != model.VerdictApproved && decision.Verdict != model.VerdictRejected {
		return domain.ErrInvalidArgument
	}

	var tripped bool
	var streak int
	err := u.withSubject(ctx, subjectID, func(r *model.SubjectReadiness) error {
		switch decision.Verdict {
		case model.VerdictApproved:
			r.ApplyApproval()
		case model.VerdictRejected:
			tripped = r.ApplyRejection(u.breakerThreshold)
			streak = r.ConsecutiveRejects
		}
		metrics.SetSubjectDeficit(subjectID, r.Deficit())
		return nil
	})
	if err != nil {
		return err
	}

	// alert only after the paused state is committed
	if tripped {
		metrics.IncBreakerOpen()
		u.log.Warn().
			Str("subject_id", subjectID).
			Int("consecutive_rejects", streak).
			Msg("circuit breaker opened, subject paused")
		u.notify(ctx, fmt.Sprintf(
			"⛔ subject %s paused: %d consecutive rejects (last reason: %s). Reset required.",
			subjectID, streak, decision.Reason))
	}
	return nil
}

func (u *readinessUC) RecordEnqueued(ctx context.Context, subjectID string, n int) error {
	if n <= 0 {
		return domain.ErrInvalidArgument
	}
	return u.withSubject(ctx, subjectID, func(r *model.SubjectReadiness) error {
		now := time.Now()
		if !sameDay(r.LastGeneratedAt, now) {
			r.DailyGenerated = 0
		}
		r.Pending += n
		r.DailyGenerated += n
		r.LastGeneratedAt = now
		r.UpdatedAt = now
		return nil
	})
}

func (u *readinessUC) ReleasePending(ctx context.Context, subjectID string) error {
	return u.withSubject(ctx, subjectID, func(r *model.SubjectReadiness) error {
		if r.Pending > 0 {
			r.Pending--
		}
		r.UpdatedAt = time.Now()
		return nil
	})
}

func (u *readinessUC) SetTarget(ctx context.Context, subjectID string, target int) (*model.SubjectReadiness, error) {
	if subjectID == "" || target < 0 {
		return nil, domain.ErrInvalidArgument
	}
	var out *model.SubjectReadiness
	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r, err := u.repo.FindBySubjectForUpdate(ctx, tx, subjectID)
		if err == domain.ErrNotFound {
			r = model.NewSubjectReadiness(subjectID, target)
		} else if err != nil {
			return err
		} else {
			r.Target = target
			r.UpdatedAt = time.Now()
		}
		if err := u.repo.Save(ctx, tx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.SetSubjectDeficit(subjectID, out.Deficit())
	return out, nil
}

func (u *readinessUC) SetTargetIfMissing(ctx context.Context, subjectID string) (*model.SubjectReadiness, error) {
	var out *model.SubjectReadiness
	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		r, err := u.repo.FindBySubjectForUpdate(ctx, tx, subjectID)
		if err == nil {
			out = r
			return nil
		}
		if err != domain.ErrNotFound {
			return err
		}
		r = model.NewSubjectReadiness(subjectID, 0)
		if err := u.repo.Save(ctx, tx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *readinessUC) ResetBreaker(ctx context.Context, subjectID string) error {
	err := u.withSubject(ctx, subjectID, func(r *model.SubjectReadiness) error {
		r.ResetBreaker()
		return nil
	})
	if err != nil {
		return err
	}
	u.log.Info().Str("subject_id", subjectID).Msg("breaker reset by operator")
	return nil
}

func (u *readinessUC) Report(ctx context.Context) ([]SubjectReport, error) {
	rows, err := u.repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]SubjectReport, 0, len(rows))
	for _, r := range rows {
		daily := r.DailyGenerated
		if !sameDay(r.LastGeneratedAt, now) {
			// the stored count is from a previous day; today is zero
			daily = 0
		}
		out = append(out, SubjectReport{
			SubjectID:          r.SubjectID,
			Approved:           r.Approved,
			Pending:            r.Pending,
			Target:             r.Target,
			Deficit:            r.Deficit(),
			ConsecutiveRejects: r.ConsecutiveRejects,
			DailyGenerated:     daily,
			Status:             r.State,
		})
	}
	return out, nil
}

func (u *readinessUC) ListActive(ctx context.Context) ([]*model.SubjectReadiness, error) {
	rows, err := u.repo.ListAll(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	active := rows[:0]
	for _, r := range rows {
		if r.State == model.SubjectStateActive {
			active = append(active, r)
		}
	}
	return active, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (u *readinessUC) notify(ctx context.Context, text string) {
	if u.alerts == nil {
		return
	}
	if err := u.alerts.Notify(ctx, text); err != nil {
		u.log.Error().Err(err).Msg("operator alert failed")
	}
}
