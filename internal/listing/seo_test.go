package listing

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slugPattern = regexp.MustCompile(`^[\p{Ll}\p{Lo}\p{Nd}-]*$`)

func TestURLSlug(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "ascii with punctuation", title: "ASUS ROG Backpack | 17\" Laptop!", want: "asus-rog-backpack-17-laptop"},
		{name: "keeps hyphens", title: "Wi-Fi  Router", want: "wi-fi-router"},
		{name: "drops underscores", title: "model_x 2", want: "modelx-2"},
		{name: "arabic letters survive", title: "حقيبة ظهر ASUS", want: "حقيبة-ظهر-asus"},
		{name: "no-break space separates words", title: "حقيبة\u00a0ظهر ASUS", want: "حقيبة-ظهر-asus"},
		{name: "thin space separates words", title: "Bag\u2009Pro Max", want: "bag-pro-max"},
		{name: "mixed unicode space run", title: "Bag \u00a0\u2003Pro", want: "bag-pro"},
		{name: "empty", title: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, URLSlug(tt.title))
		})
	}
}

func TestURLSlug_LongPunctuatedTitles(t *testing.T) {
	titles := []string{
		"ASUS ROG Ranger BP2701 | Water-Resistant Nylon, 17.3\" Gaming Laptop Backpack (Black) — Category: Bags & Cases!!!",
		"Samsung Galaxy S24 Ultra: 512GB / 12GB RAM; Titanium Gray; 200MP Camera; S-Pen; 5G; Dual SIM (International)",
		"حقيبة ظهر ASUS ROG | نايلون مقاوم للماء | تتسع للابتوب 17 بوصة | حقائب الألعاب؟! (إصدار 2024)",
	}

	for _, title := range titles {
		require.GreaterOrEqual(t, utf8.RuneCountInString(title), 60)
		slug := URLSlug(title)
		assert.LessOrEqual(t, utf8.RuneCountInString(slug), 60, slug)
		assert.Regexp(t, slugPattern, slug)
		assert.Equal(t, strings.ToLower(slug), slug)
	}
}

func TestMetaDescription(t *testing.T) {
	short := "وصف قصير للمنتج."
	assert.Equal(t, short, MetaDescription(short))

	exact := strings.Repeat("a", 155)
	assert.Equal(t, exact, MetaDescription(exact))

	long := strings.Repeat("ب", 400)
	meta := MetaDescription(long)
	assert.Equal(t, 155, utf8.RuneCountInString(meta))
	assert.True(t, strings.HasSuffix(meta, "..."))
	assert.Equal(t, strings.Repeat("ب", 152), strings.TrimSuffix(meta, "..."))
}

func TestDerive(t *testing.T) {
	c := &ListingContent{
		Title:       "ASUS ROG Backpack",
		Description: "Short description.",
		TechnicalSpecifications: TechnicalSpecs{
			"brand": "ASUS",
			"model": "BP2701",
		},
	}

	d := Derive(c)
	assert.Equal(t, "asus-rog-backpack", d.URLSlug)
	assert.Equal(t, "Short description.", d.MetaDescription)
	assert.Equal(t, ProductSchema{
		Context:     "https://schema.org/",
		Type:        "Product",
		Name:        "ASUS ROG Backpack",
		Description: "Short description.",
		Brand:       SchemaBrand{Type: "Brand", Name: "ASUS"},
		SKU:         "BP2701",
	}, d.Schema)

	ld, err := d.Schema.JSONLD()
	require.NoError(t, err)
	assert.Contains(t, ld, `"@type": "Product"`)
	assert.Contains(t, ld, `"sku": "BP2701"`)
}

func TestDerive_SchemaFallbacks(t *testing.T) {
	c := &ListingContent{
		Title:                   "Generic bag",
		Description:             "Bag & strap",
		TechnicalSpecifications: TechnicalSpecs{"brand": nil, "model": "  "},
	}

	d := Derive(c)
	assert.Equal(t, "Generic", d.Schema.Brand.Name)
	assert.Equal(t, "N/A", d.Schema.SKU)

	ld, err := d.Schema.JSONLD()
	require.NoError(t, err)
	assert.Contains(t, ld, "Bag & strap")
}

func TestDerive_RecomputedPerContent(t *testing.T) {
	a := &ListingContent{Title: "First Title", Description: "one"}
	b := &ListingContent{Title: "Second Title", Description: "two"}

	assert.Equal(t, "first-title", Derive(a).URLSlug)
	assert.Equal(t, "second-title", Derive(b).URLSlug)
}
