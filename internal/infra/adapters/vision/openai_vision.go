package vision

import (
	"context"
	"errors"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.VisionOracleAdapter = (*OpenAIOracle)(nil)

// OpenAIOracle scores outputs through the Chat Completions vision API.
type OpenAIOracle struct {
	client openai.Client
	model  string
}

func NewOpenAIOracle(apiKey, model string) (*OpenAIOracle, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIOracle{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (o *OpenAIOracle) Assess(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error) {
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(referencePaths)+2)
	parts = append(parts, openai.TextContentPart(assessPrompt))

	url, err := dataURL(outputPath)
	if err != nil {
		return model.QualityScore{}, err
	}
	parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	for _, ref := range referencePaths {
		u, err := dataURL(ref)
		if err != nil {
			return model.QualityScore{}, err
		}
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: u}))
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
	})
	if err != nil {
		return model.QualityScore{}, err
	}
	if len(resp.Choices) == 0 {
		return model.QualityScore{}, errNoScore
	}
	return parseScore(resp.Choices[0].Message.Content)
}
