package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/tix-seo-studio/internal/media"
	"google.golang.org/genai"
)

// VisualAnalyzer produces the short English product summary that is fed into
// the listing prompt as the "visual analysis".
type VisualAnalyzer interface {
	Describe(ctx context.Context, img *media.Image) (string, error)
}

// GeminiVision describes product images with a Gemini vision model.
type GeminiVision struct {
	models ContentGenerator
	model  string
	prompt string
}

// NewGeminiVision creates a Gemini visual analyzer.
func NewGeminiVision(models ContentGenerator, model, prompt string) *GeminiVision {
	return &GeminiVision{models: models, model: model, prompt: prompt}
}

// Describe implements VisualAnalyzer.
func (g *GeminiVision) Describe(ctx context.Context, img *media.Image) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(g.prompt),
		{InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType}},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to analyze image: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no response from Gemini vision")
	}

	logUsage("vision", g.model, usageFrom(g.model, resp))
	return strings.TrimSpace(resp.Text()), nil
}
