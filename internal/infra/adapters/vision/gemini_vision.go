package vision

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/domain/ports/adapter"
)

var _ adapter.VisionOracleAdapter = (*GeminiOracle)(nil)

type GeminiOracle struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiOracle creates a Gemini oracle using the official SDK.
func NewGeminiOracle(ctx context.Context, apiKey, baseUrl, defaultModel string) (*GeminiOracle, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseUrl,
		},
	})
	if err != nil {
		return nil, err
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiOracle{client: c, defaultModel: defaultModel}, nil
}

func (g *GeminiOracle) Assess(ctx context.Context, outputPath string, referencePaths []string) (model.QualityScore, error) {
	parts := make([]*genai.Part, 0, len(referencePaths)+2)
	parts = append(parts, &genai.Part{Text: assessPrompt})

	paths := append([]string{outputPath}, referencePaths...)
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return model.QualityScore{}, fmt.Errorf("vision: read image: %w", err)
		}
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: mimeFor(p), Data: b}})
	}

	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.defaultModel,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		nil,
	)
	if err != nil {
		return model.QualityScore{}, err
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if t := resp.Candidates[0].Content.Parts[0].Text; t != "" {
			text = t
		}
	}
	if text == "" {
		return model.QualityScore{}, errNoScore
	}
	return parseScore(text)
}
