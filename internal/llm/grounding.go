package llm

import (
	"strings"

	"github.com/raine/tix-seo-studio/internal/listing"
	"google.golang.org/genai"
)

// groundingSources collects the web citations of the first candidate,
// dropping chunks without a URI and duplicate URIs.
func groundingSources(resp *genai.GenerateContentResponse) []listing.GroundingSource {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return nil
	}

	var sources []listing.GroundingSource
	seen := make(map[string]bool)
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		uri := strings.TrimSpace(chunk.Web.URI)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		title := strings.TrimSpace(chunk.Web.Title)
		if title == "" {
			title = uri
		}
		sources = append(sources, listing.GroundingSource{Title: title, URI: uri})
	}
	return sources
}
