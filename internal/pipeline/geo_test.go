package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

func TestDetectCountry(t *testing.T) {
	assert.Equal(t, "UAE", detectCountry("New custody pilot launches in Dubai"))
	assert.Equal(t, "Saudi Arabia", detectCountry("saudi fintech raises Series A"))
	assert.Equal(t, "Poland", detectCountry("Polish bank signs AI deal"))
	assert.Equal(t, "", detectCountry("a deal somewhere"))
}

func TestDetectRegion(t *testing.T) {
	assert.Equal(t, "Middle East", detectRegion("GCC banks accelerate adoption"))
	assert.Equal(t, "Eastern Europe", detectRegion("Eastern Europe fintech growth"))
	assert.Equal(t, "", detectRegion("global trends"))
}

func TestEnrichGeo_InfersFromSummary(t *testing.T) {
	signals := []model.Signal{
		sig("Tatra Banka", withSummary("Tatra Banka, a Slovak lender, pilots agentic automation.")),
	}

	out := EnrichGeo(signals, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "Slovakia", out[0].Country)
	assert.Equal(t, "Eastern Europe", out[0].Region, "region derived from country")
}

func TestEnrichGeo_UsesSearchResultContext(t *testing.T) {
	signals := []model.Signal{
		sig("Vault Co", withSummary("Vault Co announces custody platform."),
			withURL("https://news.example/vault")),
	}
	results := []tavily.SearchResult{{
		Query:   "Qatar digital assets 2025",
		URL:     "https://news.example/vault",
		Title:   "Doha custody launch",
		Content: "The platform goes live this quarter.",
	}}

	out := EnrichGeo(signals, results)
	assert.Equal(t, "Qatar", out[0].Country)
	assert.Equal(t, "Middle East", out[0].Region)
}

func TestEnrichGeo_ExplicitFieldsWin(t *testing.T) {
	signals := []model.Signal{
		sig("Fixed Co", withSummary("Fixed Co expands in Dubai.")),
	}
	signals[0].Country = "Romania"

	out := EnrichGeo(signals, nil)
	assert.Equal(t, "Romania", out[0].Country)
	assert.Equal(t, "Eastern Europe", out[0].Region)
}

func TestEnrichGeo_DefaultsToUnspecified(t *testing.T) {
	signals := []model.Signal{
		sig("Nowhere Co", withSummary("Nowhere Co does something noteworthy.")),
	}

	out := EnrichGeo(signals, nil)
	assert.Equal(t, model.GeoUnspecified, out[0].Country)
	assert.Equal(t, model.GeoUnspecified, out[0].Region)
}

func TestIsGeographyName(t *testing.T) {
	assert.True(t, isGeographyName("poland"))
	assert.True(t, isGeographyName("middle east"))
	assert.False(t, isGeographyName("pko bank polski"))
}
