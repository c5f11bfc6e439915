package listing

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

const (
	maxSlugLength       = 60
	maxMetaLength       = 155
	metaEllipsis        = "..."
	fallbackSchemaBrand = "Generic"
	fallbackSchemaSKU   = "N/A"
)

var (
	nonSlugChars  = regexp.MustCompile(`[^\p{L}\p{Nd}\s\p{Z}-]`)
	whitespaceRun = regexp.MustCompile(`[\s\p{Z}]+`)
)

// Derived holds the technical SEO artifacts computed from a listing.
type Derived struct {
	URLSlug         string
	MetaDescription string
	Schema          ProductSchema
}

// SchemaBrand is the schema.org Brand node.
type SchemaBrand struct {
	Type string `json:"@type"`
	Name string `json:"name"`
}

// ProductSchema is the schema.org Product JSON-LD snippet.
type ProductSchema struct {
	Context     string      `json:"@context"`
	Type        string      `json:"@type"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Brand       SchemaBrand `json:"brand"`
	SKU         string      `json:"sku"`
}

// Derive computes slug, meta description and schema for a listing.
func Derive(c *ListingContent) Derived {
	meta := MetaDescription(c.Description)
	return Derived{
		URLSlug:         URLSlug(c.Title),
		MetaDescription: meta,
		Schema:          NewProductSchema(c, meta),
	}
}

// URLSlug lowercases the title, drops everything except letters, digits,
// whitespace and hyphens, turns whitespace runs into single hyphens and
// truncates to 60 characters.
func URLSlug(title string) string {
	s := strings.ToLower(title)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, "-")
	return truncateRunes(s, maxSlugLength)
}

// MetaDescription returns the description unchanged when it fits in 155
// characters, otherwise the first 152 characters followed by "...".
func MetaDescription(description string) string {
	r := []rune(description)
	if len(r) <= maxMetaLength {
		return description
	}
	return string(r[:maxMetaLength-len(metaEllipsis)]) + metaEllipsis
}

// NewProductSchema builds the schema.org snippet for a listing.
func NewProductSchema(c *ListingContent, meta string) ProductSchema {
	brand := c.TechnicalSpecifications.String("brand")
	if brand == "" {
		brand = fallbackSchemaBrand
	}
	sku := c.TechnicalSpecifications.String("model")
	if sku == "" {
		sku = fallbackSchemaSKU
	}
	return ProductSchema{
		Context:     "https://schema.org/",
		Type:        "Product",
		Name:        c.Title,
		Description: meta,
		Brand:       SchemaBrand{Type: "Brand", Name: brand},
		SKU:         sku,
	}
}

// JSONLD renders the schema as indented JSON without HTML escaping.
func (p ProductSchema) JSONLD() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
