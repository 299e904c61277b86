package adapter

import (
	"context"

	"render-orchestrator/internal/domain/model"
)

// VisionOracleAdapter scores one generated output against a subject's
// reference images. Consumed as a request/response oracle; providers
// live in internal/infra/adapters/vision.
type VisionOracleAdapter interface {
	Assess(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error)
}
