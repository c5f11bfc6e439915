package llm

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/raine/tix-seo-studio/internal/listing"
	"github.com/raine/tix-seo-studio/internal/policy"
)

const noVisualAnalysis = "(no image provided)"

// buildListingPrompt assembles the user prompt for the main generation call.
// Prior descriptions are numbered newest first and followed by the policy's
// angle shift directive.
func buildListingPrompt(p *policy.Policy, req listing.GenerationRequest, visual string) string {
	visual = strings.TrimSpace(visual)
	if visual == "" {
		visual = noVisualAnalysis
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		notes = "-"
	}

	var b strings.Builder
	b.WriteString(strings.TrimLeft(dedent.Dedent(fmt.Sprintf(`
		INPUT DATA:
		- Product Name: %s
		- Merchant Notes: %s
		- Visual Analysis: %s
	`, strings.TrimSpace(req.Name), notes, visual)), "\n"))

	prior := req.PriorDescriptions
	if len(prior) > listing.MaxPriorDescriptions {
		prior = prior[:listing.MaxPriorDescriptions]
	}
	if len(prior) > 0 {
		b.WriteString("\nPREVIOUS DESCRIPTIONS:\n")
		for i, d := range prior {
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(d))
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(p.AngleShiftDirective))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(p.Task))
	return b.String()
}
