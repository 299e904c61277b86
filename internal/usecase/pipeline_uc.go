package usecase

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"render-orchestrator/internal/domain/model"

	"github.com/rs/zerolog"
)

// VerdictPipeline turns terminal jobs into readiness updates: completed
// outputs are scored and gated, failures and timeouts just release the
// subject's in-flight slot. Cache hits skip the gate — the artifact was
// already judged when it was first generated.
type VerdictPipeline struct {
	gate         QualityGate
	readiness    ReadinessUseCase
	referenceDir string
	log          *zerolog.Logger
}

func NewVerdictPipeline(gate QualityGate, readiness ReadinessUseCase, referenceDir string, logger *zerolog.Logger) *VerdictPipeline {
	l := logger.With().Str("component", "VerdictPipeline").Logger()
	return &VerdictPipeline{
		gate:         gate,
		readiness:    readiness,
		referenceDir: referenceDir,
		log:          &l,
	}
}

// Handle processes one terminal job snapshot. Errors are logged, not
// returned: the pipeline runs post-completion and must never feed back
// into the worker pool.
func (p *VerdictPipeline) Handle(ctx context.Context, job model.Job) {
	switch job.Status {
	case model.JobStatusCompleted:
	case model.JobStatusFailed, model.JobStatusTimeout:
		// failures never reached the gate; free the pending slot so the
		// controller can recompute the deficit next tick
		if err := p.readiness.ReleasePending(ctx, job.SubjectID); err != nil {
			p.log.Error().Err(err).Str("subject_id", job.SubjectID).Msg("release pending failed")
		}
		return
	default:
		return
	}

	if job.CacheHit {
		if err := p.readiness.ReleasePending(ctx, job.SubjectID); err != nil {
			p.log.Error().Err(err).Str("subject_id", job.SubjectID).Msg("release pending failed")
		}
		return
	}
	if len(job.Outputs) == 0 {
		p.log.Warn().Str("job_id", job.ID).Msg("completed job with no outputs")
		return
	}

	refs := p.references(job.SubjectID)
	score, err := p.gate.Score(ctx, job.Outputs[0], refs)
	if err != nil {
		// scoring failure is not a reject; release and let the
		// controller re-enqueue if the deficit persists
		p.log.Error().Err(err).Str("job_id", job.ID).Msg("scoring failed")
		if err := p.readiness.ReleasePending(ctx, job.SubjectID); err != nil {
			p.log.Error().Err(err).Str("subject_id", job.SubjectID).Msg("release pending failed")
		}
		return
	}

	decision := p.gate.Decide(score)
	p.log.Info().
		Str("job_id", job.ID).
		Str("subject_id", job.SubjectID).
		Str("verdict", string(decision.Verdict)).
		Str("reason", decision.Reason).
		Float64("similarity", score.Similarity).
		Msg("quality verdict")

	if err := p.readiness.ApplyVerdict(ctx, job.SubjectID, decision); err != nil {
		p.log.Error().Err(err).Str("subject_id", job.SubjectID).Msg("verdict apply failed")
	}
}

// references lists the subject's reference images, sorted for
// deterministic oracle input.
func (p *VerdictPipeline) references(subjectID string) []string {
	if p.referenceDir == "" {
		return nil
	}
	dir := filepath.Join(p.referenceDir, subjectID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".png", ".jpg", ".jpeg", ".webp":
			refs = append(refs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(refs)
	return refs
}
