package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/raine/tix-seo-studio/internal/media"
	"github.com/rs/zerolog/log"
)

const openaiVisionModel = "gpt-4.1-mini"

const (
	openaiInputPricePerMillion  = 0.40
	openaiOutputPricePerMillion = 1.60
)

// ChatCompleter is the part of the OpenAI chat completions service used here.
type ChatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIVision describes product images with an OpenAI vision model. It is
// selected with VISION_PROVIDER=openai.
type OpenAIVision struct {
	chat   ChatCompleter
	model  string
	prompt string
}

// NewOpenAIVision creates an analyzer using the given API key.
func NewOpenAIVision(apiKey, prompt string) *OpenAIVision {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIVisionWithChat(&client.Chat.Completions, openaiVisionModel, prompt)
}

// NewOpenAIVisionWithChat creates an analyzer on an existing chat service.
func NewOpenAIVisionWithChat(chat ChatCompleter, model, prompt string) *OpenAIVision {
	return &OpenAIVision{chat: chat, model: model, prompt: prompt}
}

// Describe implements VisualAnalyzer.
func (o *OpenAIVision) Describe(ctx context.Context, img *media.Image) (string, error) {
	resp, err := o.chat.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(o.prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: img.DataURL(),
				}),
			}),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from OpenAI")
	}

	cost := calculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, openaiInputPricePerMillion, openaiOutputPricePerMillion)
	log.Info().
		Str("model", o.model).
		Int64("inputTokens", resp.Usage.PromptTokens).
		Int64("outputTokens", resp.Usage.CompletionTokens).
		Float64("costUSD", cost).
		Msg("vision llm call")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
