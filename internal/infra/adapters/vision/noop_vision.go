package vision

import (
	"context"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.VisionOracleAdapter = (*NoopOracle)(nil)

// NoopOracle approves everything. Dev-mode stand-in when no vision
// provider is configured.
type NoopOracle struct{}

func NewNoopOracle() *NoopOracle { return &NoopOracle{} }

func (NoopOracle) Assess(context.Context, string, []string) (model.QualityScore, error) {
	return model.QualityScore{Similarity: 1, Solo: true, Clarity: 1}, nil
}
