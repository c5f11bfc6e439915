// Package listing holds the listing domain types shared by the generation
// client, the history and the web views, plus the pure SEO derivations
// computed from an approved listing.
package listing

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raine/tix-seo-studio/internal/media"
)

// Status is the model's verdict on a product submission.
type Status string

const (
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ProductInput is what the merchant submits from the form.
type ProductInput struct {
	MerchantID string
	Name       string
	Notes      string
	Image      *media.Image
}

// GenerationRequest is built fresh for every generation call.
type GenerationRequest struct {
	Name              string
	Notes             string
	Image             *media.Image
	PriorDescriptions []string // newest first, at most MaxPriorDescriptions
}

// MaxPriorDescriptions caps how many earlier descriptions are sent back to the model.
const MaxPriorDescriptions = 3

// FaqItem is one "people also ask" entry.
type FaqItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// GroundingSource is a web citation attached by the model's search tool.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// MerchantFeedback is the model's quality report to the merchant.
type MerchantFeedback struct {
	Summary             string   `json:"summary"`
	SEOScore            int      `json:"seo_score"`
	GEOScore            int      `json:"geo_score"`
	CriticalIssues      []string `json:"critical_issues"`
	ClarificationNeeded []string `json:"clarification_needed"`
	Recommendations     []string `json:"recommendations"`
}

// SeoGeoExtras carries the FAQ and the keywords folded into the copy.
// FocusKeywords are never displayed.
type SeoGeoExtras struct {
	PeopleAlsoAsk []FaqItem `json:"people_also_ask"`
	FocusKeywords []string  `json:"focus_keywords,omitempty"`
}

// ListingContent is the generated listing copy.
type ListingContent struct {
	Title                   string         `json:"h1_title"`
	TrustSnippet            string         `json:"geo_trust_snippet"`
	Description             string         `json:"professional_description"`
	Highlights              []string       `json:"about_this_item"`
	TechnicalSpecifications TechnicalSpecs `json:"technical_specifications"`
	MaintenanceGuide        string         `json:"maintenance_guide"`
	Extras                  SeoGeoExtras   `json:"seo_geo_extras"`
}

// Paragraphs splits the description on blank lines.
func (c *ListingContent) Paragraphs() []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(c.Description, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AnalysisResult is the parsed model answer. ListingContent is set if and
// only if Status is approved.
type AnalysisResult struct {
	Status           Status            `json:"status"`
	MerchantFeedback MerchantFeedback  `json:"merchant_feedback"`
	ListingContent   *ListingContent   `json:"listing_content,omitempty"`
	GroundingSources []GroundingSource `json:"grounding_sources,omitempty"`
}

// ErrInvalidResult is returned by Validate when status and content disagree.
var ErrInvalidResult = errors.New("invalid analysis result")

// Approved reports whether the listing was approved.
func (r *AnalysisResult) Approved() bool {
	return r != nil && r.Status == StatusApproved
}

// Validate checks that content is present exactly when approved.
func (r *AnalysisResult) Validate() error {
	switch r.Status {
	case StatusApproved:
		if r.ListingContent == nil {
			return fmt.Errorf("%w: approved result without listing_content", ErrInvalidResult)
		}
	case StatusRejected:
		if r.ListingContent != nil {
			return fmt.Errorf("%w: rejected result with listing_content", ErrInvalidResult)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidResult, r.Status)
	}
	return nil
}

// TechnicalSpecs is the open-ended spec map. Values are usually strings but
// the model may send null or nested objects.
type TechnicalSpecs map[string]any

// Known spec keys in display order.
var knownSpecKeys = []string{"brand", "model", "category", "material_or_build", "color", "origin"}

var specLabels = map[string]string{
	"brand":             "العلامة التجارية",
	"model":             "الموديل",
	"category":          "التصنيف",
	"material_or_build": "الخامة / التصنيع",
	"color":             "اللون",
	"origin":            "بلد المنشأ",
}

// SpecEntry is one displayable spec row.
type SpecEntry struct {
	Key   string
	Label string
	Value string
}

// String returns the value for key, or "" when missing or not a string.
func (s TechnicalSpecs) String(key string) string {
	v, ok := s[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// Entries returns the specs with known keys first, then extra keys sorted.
func (s TechnicalSpecs) Entries() []SpecEntry {
	seen := make(map[string]bool, len(s))
	var entries []SpecEntry
	for _, k := range knownSpecKeys {
		if v, ok := s[k]; ok {
			entries = append(entries, SpecEntry{Key: k, Label: SpecLabel(k), Value: FormatSpecValue(v)})
			seen[k] = true
		}
	}

	var extra []string
	for k := range s {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		entries = append(entries, SpecEntry{Key: k, Label: SpecLabel(k), Value: FormatSpecValue(s[k])})
	}
	return entries
}

// SpecLabel returns the Arabic label for a known spec key, or the key itself.
func SpecLabel(key string) string {
	if label, ok := specLabels[key]; ok {
		return label
	}
	return key
}

// FormatSpecValue renders a spec value for display. Null becomes "N/A",
// nested objects become "k: v | k: v".
func FormatSpecValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case string:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s: %s", k, FormatSpecValue(t[k])))
		}
		return strings.Join(parts, " | ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, FormatSpecValue(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
