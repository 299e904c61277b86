package vision

import (
	"context"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.VisionOracleAdapter = (*MultiOracle)(nil)

// MultiOracle tries each provider in order and returns the first
// successful verdict. The gate cannot decide without a score, so a
// secondary provider is worth the extra latency when the primary is
// rate-limited or down.
type MultiOracle struct {
	providers []adapter.VisionOracleAdapter
	log       *zerolog.Logger
}

func NewMultiOracle(logger *zerolog.Logger, providers ...adapter.VisionOracleAdapter) *MultiOracle {
	l := logger.With().Str("component", "MultiOracle").Logger()
	return &MultiOracle{providers: providers, log: &l}
}

func (m *MultiOracle) Assess(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error) {
	var lastErr error = errNoScore
	for i, p := range m.providers {
		if p == nil {
			continue
		}
		score, err := p.Assess(ctx, outputPath, referencePaths)
		if err == nil {
			return score, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		m.log.Warn().Err(err).Int("provider", i).Msg("oracle provider failed, trying next")
	}
	return model.QualityScore{}, lastErr
}
