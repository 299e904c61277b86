package usecase

import (
	"context"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ResourceEstimator picks the best workflow variant that fits a memory
// budget. It never rejects a request: when even the draft variant is
// over budget it returns draft with degraded=true so callers can warn
// instead of aborting.
type ResourceEstimator interface {
	// ChooseVariant returns the highest variant whose estimated cost
	// fits budgetMB, the estimate itself, and whether the choice was a
	// forced degrade.
	ChooseVariant(ctx context.Context, params model.GenerationParams, budgetMB int) (model.WorkflowVariant, int, bool)

	// MaxConcurrent derives how many standard jobs fit the budget.
	MaxConcurrent(budgetMB int) int
}

var _ ResourceEstimator = (*resourceEstimator)(nil)

type resourceEstimator struct {
	profiles *ProfileStore
	ceiling  int // hard cap on concurrent slots
	log      *zerolog.Logger
}

func NewResourceEstimator(profiles *ProfileStore, maxConcurrent int, logger *zerolog.Logger) ResourceEstimator {
	l := logger.With().Str("component", "ResourceEstimator").Logger()
	return &resourceEstimator{profiles: profiles, ceiling: maxConcurrent, log: &l}
}

// staticCostMB is the conservative fallback table used until the
// profile store has live observations for a bucket. Values are for the
// standard variant; draft and high scale from it.
var staticCostMB = map[string]int{
	"512/1":   3584,
	"768/1":   5120,
	"1024/1":  7680,
	"1536/1":  12288,
	"512/16":  6144,
	"512/32":  8192,
	"768/16":  9216,
	"768/32":  12288,
	"1024/16": 14336,
	"1024/32": 18432,
	"1536/16": 20480,
	"1536/32": 24576,
}

// variant multipliers relative to the standard estimate
const (
	draftScale = 0.6
	highScale  = 1.4
)

func (e *resourceEstimator) ChooseVariant(ctx context.Context, params model.GenerationParams, budgetMB int) (model.WorkflowVariant, int, bool) {
	base := e.baseCost(params)

	type candidate struct {
		variant model.WorkflowVariant
		cost    int
	}
	// highest quality first; degrade, don't fail
	candidates := []candidate{
		{model.VariantHigh, scale(base, highScale)},
		{model.VariantStandard, base},
		{model.VariantDraft, scale(base, draftScale)},
	}

	for _, c := range candidates {
		if c.cost <= budgetMB {
			return c.variant, c.cost, false
		}
	}

	// Even draft exceeds budget: return it flagged so the caller can
	// warn rather than abort.
	metrics.IncEstimatorDegraded()
	e.log.Warn().
		Str("bucket", model.Bucket(params.Width, params.Height, params.FrameCount)).
		Int("budget_mb", budgetMB).
		Int("draft_cost_mb", candidates[2].cost).
		Msg("request degraded to draft over budget")
	return model.VariantDraft, candidates[2].cost, true
}

func (e *resourceEstimator) MaxConcurrent(budgetMB int) int {
	// Size the pool by how many standard 768px jobs fit the budget.
	// Sized once at startup, so the static table is the right source:
	// live profiles are keyed by render model and empty at that point.
	n := budgetMB / staticCostMB["768/1"]
	if n < 1 {
		n = 1
	}
	if e.ceiling > 0 && n > e.ceiling {
		n = e.ceiling
	}
	return n
}

// baseCost is the standard-variant estimate: live profile first, then
// the static table, then the largest static entry as a last resort.
func (e *resourceEstimator) baseCost(params model.GenerationParams) int {
	bucket := model.Bucket(params.Width, params.Height, params.FrameCount)
	if live, ok := e.profiles.Estimate(params.ModelName, bucket); ok && live > 0 {
		return int(live)
	}
	if cost, ok := staticCostMB[bucket]; ok {
		return cost
	}
	return staticCostMB["1536/32"]
}

func scale(base int, f float64) int { return int(float64(base) * f) }
