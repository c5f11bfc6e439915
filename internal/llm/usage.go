package llm

import (
	"strings"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Gemini pricing (per million tokens)
const (
	geminiFlashInputPricePerMillion  = 0.30
	geminiFlashOutputPricePerMillion = 2.50
	geminiImageOutputPricePerMillion = 30.00
)

// Usage is the token accounting of one model call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

func calculateCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

func usageFrom(model string, resp *genai.GenerateContentResponse) Usage {
	u := Usage{}
	if resp == nil || resp.UsageMetadata == nil {
		return u
	}
	u.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
	u.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	u.TotalTokens = int64(resp.UsageMetadata.TotalTokenCount)

	outputPrice := geminiFlashOutputPricePerMillion
	if strings.HasSuffix(model, "-image") || strings.Contains(model, "-image-") {
		outputPrice = geminiImageOutputPricePerMillion
	}
	u.CostUSD = calculateCost(u.InputTokens, u.OutputTokens, geminiFlashInputPricePerMillion, outputPrice)
	return u
}

func logUsage(call, model string, u Usage) {
	log.Info().
		Str("model", model).
		Int64("inputTokens", u.InputTokens).
		Int64("outputTokens", u.OutputTokens).
		Float64("costUSD", u.CostUSD).
		Msg(call + " llm call")
}
