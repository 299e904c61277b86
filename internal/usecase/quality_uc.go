package usecase

import (
	"context"
	"fmt"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
	"render-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// QualityGate scores completed outputs against a subject's reference
// set and turns scores into deterministic approve/reject decisions.
type QualityGate interface {
	Score(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error)

	// Decide is a pure function of the score: identical scores always
	// yield identical decisions.
	Decide(score model.QualityScore) model.QualityDecision
}

var _ QualityGate = (*qualityGate)(nil)

type qualityGate struct {
	oracle          adapter.VisionOracleAdapter
	similarityFloor float64
	clarityFloor    float64
	log             *zerolog.Logger
}

func NewQualityGate(oracle adapter.VisionOracleAdapter, similarityFloor, clarityFloor float64, logger *zerolog.Logger) QualityGate {
	l := logger.With().Str("component", "QualityGate").Logger()
	return &qualityGate{
		oracle:          oracle,
		similarityFloor: similarityFloor,
		clarityFloor:    clarityFloor,
		log:             &l,
	}
}

func (g *qualityGate) Score(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error) {
	score, err := g.oracle.Assess(ctx, outputPath, referencePaths)
	if err != nil {
		return model.QualityScore{}, fmt.Errorf("vision oracle: %w", err)
	}
	return score, nil
}

func (g *qualityGate) Decide(score model.QualityScore) model.QualityDecision {
	if score.Similarity < g.similarityFloor {
		return reject(fmt.Sprintf("similarity %.2f below floor %.2f", score.Similarity, g.similarityFloor))
	}
	if !score.Solo {
		return reject("not a single-subject framing")
	}
	if score.Clarity < g.clarityFloor {
		return reject(fmt.Sprintf("clarity %.2f below floor %.2f", score.Clarity, g.clarityFloor))
	}
	if len(score.Issues) > 0 {
		return reject("blocking issue: " + score.Issues[0])
	}
	metrics.IncVerdict(string(model.VerdictApproved))
	return model.QualityDecision{Verdict: model.VerdictApproved}
}

func reject(reason string) model.QualityDecision {
	metrics.IncVerdict(string(model.VerdictRejected))
	return model.QualityDecision{Verdict: model.VerdictRejected, Reason: reason}
}
