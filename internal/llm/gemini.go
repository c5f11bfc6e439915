// Package llm talks to the generative models: the listing generation call
// with web search grounding, the optional vision pre-pass and image editing.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/raine/tix-seo-studio/internal/policy"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	DefaultTextTimeout  = 90 * time.Second
	DefaultImageTimeout = 120 * time.Second
)

// ContentGenerator is the Gemini call surface. *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient generates listings and edits product images.
type GeminiClient struct {
	models       ContentGenerator
	policy       *policy.Policy
	vision       VisualAnalyzer
	textTimeout  time.Duration
	imageTimeout time.Duration
}

// Option configures a GeminiClient.
type Option func(*GeminiClient)

// WithVisualAnalyzer replaces the default Gemini vision pre-pass.
func WithVisualAnalyzer(v VisualAnalyzer) Option {
	return func(c *GeminiClient) { c.vision = v }
}

// WithTextTimeout bounds a whole listing generation, vision pass included.
func WithTextTimeout(d time.Duration) Option {
	return func(c *GeminiClient) { c.textTimeout = d }
}

// WithImageTimeout bounds one image generation.
func WithImageTimeout(d time.Duration) Option {
	return func(c *GeminiClient) { c.imageTimeout = d }
}

// NewGeminiClient creates a client for the given models service and policy.
func NewGeminiClient(models ContentGenerator, p *policy.Policy, opts ...Option) *GeminiClient {
	c := &GeminiClient{
		models:       models,
		policy:       p,
		textTimeout:  DefaultTextTimeout,
		imageTimeout: DefaultImageTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.vision == nil {
		c.vision = NewGeminiVision(models, p.Models.Vision, p.VisionPrompt)
	}
	return c
}

// NewGenAIModels creates the Gemini models service for an API key.
func NewGenAIModels(ctx context.Context, apiKey string) (*genai.Models, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client.Models, nil
}

// Policy returns the policy the client was built with.
func (c *GeminiClient) Policy() *policy.Policy {
	return c.policy
}

// GenerateListing runs the optional vision pass and the grounded generation
// call, and returns the validated result with its grounding sources.
func (c *GeminiClient) GenerateListing(ctx context.Context, req listing.GenerationRequest) (*listing.AnalysisResult, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrEmptyName
	}

	ctx, cancel := context.WithTimeout(ctx, c.textTimeout)
	defer cancel()

	var visual string
	if req.Image != nil && len(req.Image.Data) > 0 {
		v, err := c.vision.Describe(ctx, req.Image)
		if err != nil {
			return nil, classifyCallError(ctx, "vision analysis", err)
		}
		visual = v
	}

	prompt := buildListingPrompt(c.policy, req, visual)
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(c.policy.SystemInstruction, genai.RoleUser),
		Temperature:       genai.Ptr(c.policy.Temperature),
	}
	if c.policy.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	model := c.policy.Models.Text
	resp, err := c.models.GenerateContent(ctx, model, []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(prompt)}, genai.RoleUser),
	}, config)
	if err != nil {
		return nil, classifyCallError(ctx, "generate listing", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedResponse)
	}

	result, err := parseAnalysis(resp.Text())
	if err != nil {
		log.Debug().Str("text", resp.Text()).Msg("unparseable listing response")
		return nil, err
	}
	result.GroundingSources = groundingSources(resp)

	logUsage("listing", model, usageFrom(model, resp))
	log.Info().
		Str("status", string(result.Status)).
		Int("seoScore", result.MerchantFeedback.SEOScore).
		Int("geoScore", result.MerchantFeedback.GEOScore).
		Int("priorDescriptions", len(req.PriorDescriptions)).
		Int("sources", len(result.GroundingSources)).
		Msg("listing generated")

	return result, nil
}

// GenerateImage asks the image model to edit img following prompt and
// returns the first image in the reply.
func (c *GeminiClient) GenerateImage(ctx context.Context, prompt string, img *media.Image) (*media.Image, error) {
	if img == nil || len(img.Data) == 0 {
		return nil, fmt.Errorf("%w: no source image", media.ErrRead)
	}

	ctx, cancel := context.WithTimeout(ctx, c.imageTimeout)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
		{InlineData: &genai.Blob{Data: img.Data, MIMEType: img.MIMEType}},
	}
	model := c.policy.Models.Image
	resp, err := c.models.GenerateContent(ctx, model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, nil)
	if err != nil {
		return nil, classifyCallError(ctx, "generate image", err)
	}

	out := firstInlineImage(resp)
	if out == nil {
		return nil, ErrImageGenerationFailed
	}
	logUsage("image", model, usageFrom(model, resp))
	return out, nil
}

func firstInlineImage(resp *genai.GenerateContentResponse) *media.Image {
	if resp == nil {
		return nil
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &media.Image{Data: part.InlineData.Data, MIMEType: mime}
		}
	}
	return nil
}
