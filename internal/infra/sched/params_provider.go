package sched

import (
	"context"
	"fmt"

	"render-orchestrator/internal/config"
	"render-orchestrator/internal/domain/model"
)

var _ ParamsProvider = (*TemplateParamsProvider)(nil)

// TemplateParamsProvider builds replenishment requests from the static
// config template. Seeds are never pinned here: dataset top-ups must
// produce varied outputs, so they are deliberately cache-ineligible.
type TemplateParamsProvider struct {
	cfg config.ReplenishConfig
}

func NewTemplateParamsProvider(cfg config.ReplenishConfig) *TemplateParamsProvider {
	return &TemplateParamsProvider{cfg: cfg}
}

func (p *TemplateParamsProvider) ParamsFor(_ context.Context, subjectID string) (model.JobKind, model.GenerationParams, error) {
	return model.JobKindImage, model.GenerationParams{
		Width:          p.cfg.Width,
		Height:         p.cfg.Height,
		FrameCount:     1,
		QualityTier:    string(model.VariantStandard),
		Prompt:         fmt.Sprintf(p.cfg.PromptTemplate, subjectID),
		NegativePrompt: p.cfg.NegativePrompt,
		ModelName:      p.cfg.ModelName,
	}, nil
}
