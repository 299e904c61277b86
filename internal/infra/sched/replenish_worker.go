package sched

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"render-orchestrator/internal/config"
	"render-orchestrator/internal/domain"
	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	"render-orchestrator/internal/infra/metrics"
	"render-orchestrator/internal/usecase"

	"github.com/rs/zerolog"
)

const tickLockKey = "replenish:tick_lock"
const tickFailureAlertAfter = 3

// DailyLimiter enforces the per-subject daily generation cap.
type DailyLimiter interface {
	Allow(ctx context.Context, subjectID string, cap int) (bool, error)
}

// TickLocker serializes ticks across instances. Nil-safe: a nil locker
// means single-instance deployment.
type TickLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

// ParamsProvider yields the generation request for a subject's
// auto-enqueued dataset top-up.
type ParamsProvider interface {
	ParamsFor(ctx context.Context, subjectID string) (model.JobKind, model.GenerationParams, error)
}

// ReplenishmentWorker is the closed control loop: every tick it
// recomputes each active subject's deficit from current counters and
// tops the dataset up through the normal submission path, bounded by
// cooldown, global concurrency, and the daily cap. The deficit is
// recomputed fresh each tick, so a missed tick self-corrects.
type ReplenishmentWorker struct {
	cfg       config.ReplenishConfig
	readiness usecase.ReadinessUseCase
	submitter usecase.SubmissionUseCase
	queue     usecase.JobQueue
	params    ParamsProvider
	daily     DailyLimiter
	locker    TickLocker
	alerts    adapter.AlertNotifier

	maxConcurrent int
	enabled       atomic.Bool
	tickFailures  int
	log           *zerolog.Logger
}

func NewReplenishmentWorker(
	cfg config.ReplenishConfig,
	readiness usecase.ReadinessUseCase,
	submitter usecase.SubmissionUseCase,
	queue usecase.JobQueue,
	params ParamsProvider,
	daily DailyLimiter,
	locker TickLocker,
	alerts adapter.AlertNotifier,
	maxConcurrent int,
	logger *zerolog.Logger,
) *ReplenishmentWorker {
	l := logger.With().Str("component", "ReplenishmentWorker").Logger()
	w := &ReplenishmentWorker{
		cfg:           cfg,
		readiness:     readiness,
		submitter:     submitter,
		queue:         queue,
		params:        params,
		daily:         daily,
		locker:        locker,
		alerts:        alerts,
		maxConcurrent: maxConcurrent,
		log:           &l,
	}
	w.enabled.Store(cfg.Enabled)
	return w
}

// SetEnabled toggles auto-replenishment at runtime.
func (w *ReplenishmentWorker) SetEnabled(on bool) {
	w.enabled.Store(on)
	w.log.Info().Bool("enabled", on).Msg("replenishment toggled")
}

func (w *ReplenishmentWorker) Enabled() bool { return w.enabled.Load() }

func (w *ReplenishmentWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.TickInterval).Msg("starting replenishment worker")
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping replenishment worker")
			return ctx.Err()
		case <-ticker.C:
			if !w.enabled.Load() {
				continue
			}
			if err := w.Tick(ctx); err != nil {
				// a failed tick is logged and retried next schedule;
				// the report keeps serving last known good state
				w.tickFailures++
				w.log.Error().Err(err).Int("consecutive_failures", w.tickFailures).Msg("tick failed")
				if w.tickFailures == tickFailureAlertAfter {
					w.notify(ctx, fmt.Sprintf("⚠️ replenishment tick failing (%d in a row): %v", w.tickFailures, err))
				}
				continue
			}
			w.tickFailures = 0
		}
	}
}

// Tick runs one control-loop pass. Exported so operators can trigger
// an on-demand pass through the API.
func (w *ReplenishmentWorker) Tick(ctx context.Context) error {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, tickLockKey, w.cfg.TickInterval)
		if err != nil {
			if err == domain.ErrLockNotAcquired {
				return nil // another instance owns this tick
			}
			return fmt.Errorf("tick lock: %w", err)
		}
		defer func() { _ = w.locker.Unlock(ctx, tickLockKey, token) }()
	}

	subjects, err := w.readiness.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active subjects: %w", err)
	}

	for _, subject := range subjects {
		metrics.SetSubjectDeficit(subject.SubjectID, subject.Deficit())
		if err := w.replenishSubject(ctx, subject); err != nil {
			w.log.Error().Err(err).Str("subject_id", subject.SubjectID).Msg("subject replenish failed")
			// keep going; one bad subject must not starve the rest
		}
	}
	return nil
}

func (w *ReplenishmentWorker) replenishSubject(ctx context.Context, subject *model.SubjectReadiness) error {
	deficit := subject.Deficit()
	if deficit <= 0 {
		return nil
	}
	if !subject.LastGeneratedAt.IsZero() && time.Since(subject.LastGeneratedAt) < w.cfg.Cooldown {
		return nil
	}

	batch := deficit
	if batch > w.cfg.BatchSize {
		batch = w.cfg.BatchSize
	}

	kind, params, err := w.params.ParamsFor(ctx, subject.SubjectID)
	if err != nil {
		return fmt.Errorf("params for subject: %w", err)
	}

	enqueued := 0
	for i := 0; i < batch; i++ {
		if w.maxConcurrent > 0 && w.queue.InFlight() >= w.maxConcurrent {
			w.log.Debug().Str("subject_id", subject.SubjectID).Msg("global concurrency ceiling reached")
			break
		}
		ok, err := w.daily.Allow(ctx, subject.SubjectID, w.cfg.DailyCap)
		if err != nil {
			return fmt.Errorf("daily cap check: %w", err)
		}
		if !ok {
			w.log.Info().Str("subject_id", subject.SubjectID).Msg("daily cap reached")
			break
		}
		if _, err := w.submitter.Submit(ctx, subject.SubjectID, kind, params); err != nil {
			return fmt.Errorf("submit: %w", err)
		}
		enqueued++
	}

	if enqueued > 0 {
		metrics.IncReplenishEnqueued(enqueued)
		w.log.Info().
			Str("subject_id", subject.SubjectID).
			Int("deficit", deficit).
			Int("enqueued", enqueued).
			Msg("replenished subject")
	}
	return nil
}

func (w *ReplenishmentWorker) notify(ctx context.Context, text string) {
	if w.alerts == nil {
		return
	}
	if err := w.alerts.Notify(ctx, text); err != nil {
		w.log.Error().Err(err).Msg("operator alert failed")
	}
}
