package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/raine/tix-seo-studio/internal/listing"
)

// extractJSONObject returns the first top-level {...} span in text, matching
// braces and skipping braces inside JSON strings.
func extractJSONObject(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unterminated JSON object in response", ErrMalformedResponse)
}

// wireResult mirrors the model's JSON with pointers so missing required
// fields can be told apart from zero values.
type wireResult struct {
	Status           *string                 `json:"status"`
	MerchantFeedback *wireFeedback           `json:"merchant_feedback"`
	ListingContent   *listing.ListingContent `json:"listing_content"`
}

type wireFeedback struct {
	Summary             string   `json:"summary"`
	SEOScore            *float64 `json:"seo_score"`
	GEOScore            *float64 `json:"geo_score"`
	CriticalIssues      []string `json:"critical_issues"`
	ClarificationNeeded []string `json:"clarification_needed"`
	Recommendations     []string `json:"recommendations"`
}

// parseAnalysis extracts and validates the analysis result from model text.
// Every failure wraps ErrMalformedResponse.
func parseAnalysis(text string) (*listing.AnalysisResult, error) {
	jsonStr, err := extractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var w wireResult
	if err := json.Unmarshal([]byte(jsonStr), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if w.Status == nil {
		return nil, fmt.Errorf("%w: missing status", ErrMalformedResponse)
	}
	status := listing.Status(strings.ToLower(strings.TrimSpace(*w.Status)))
	if status != listing.StatusApproved && status != listing.StatusRejected {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedResponse, *w.Status)
	}

	feedback, err := w.MerchantFeedback.toFeedback()
	if err != nil {
		return nil, err
	}

	result := &listing.AnalysisResult{Status: status, MerchantFeedback: feedback}
	if status == listing.StatusApproved {
		if err := validateContent(w.ListingContent); err != nil {
			return nil, err
		}
		result.ListingContent = w.ListingContent
	}

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return result, nil
}

func (f *wireFeedback) toFeedback() (listing.MerchantFeedback, error) {
	if f == nil {
		return listing.MerchantFeedback{}, fmt.Errorf("%w: missing merchant_feedback", ErrMalformedResponse)
	}
	seo, err := score("seo_score", f.SEOScore)
	if err != nil {
		return listing.MerchantFeedback{}, err
	}
	geo, err := score("geo_score", f.GEOScore)
	if err != nil {
		return listing.MerchantFeedback{}, err
	}
	return listing.MerchantFeedback{
		Summary:             f.Summary,
		SEOScore:            seo,
		GEOScore:            geo,
		CriticalIssues:      nonNil(f.CriticalIssues),
		ClarificationNeeded: nonNil(f.ClarificationNeeded),
		Recommendations:     nonNil(f.Recommendations),
	}, nil
}

func score(name string, v *float64) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedResponse, name)
	}
	if *v < 0 || *v > 100 || math.IsNaN(*v) {
		return 0, fmt.Errorf("%w: %s %v out of range 0-100", ErrMalformedResponse, name, *v)
	}
	return int(math.Round(*v)), nil
}

func validateContent(c *listing.ListingContent) error {
	if c == nil {
		return fmt.Errorf("%w: approved result without listing_content", ErrMalformedResponse)
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: missing h1_title", ErrMalformedResponse)
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: missing professional_description", ErrMalformedResponse)
	}
	if c.TechnicalSpecifications == nil {
		c.TechnicalSpecifications = listing.TechnicalSpecs{}
	}
	for i, faq := range c.Extras.PeopleAlsoAsk {
		if strings.TrimSpace(faq.Question) == "" {
			return fmt.Errorf("%w: people_also_ask[%d] has no question", ErrMalformedResponse, i)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
