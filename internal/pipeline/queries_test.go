package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

func TestBuildQueries_NilProfileUsesDefaults(t *testing.T) {
	queries := BuildQueries(nil, time.Now())
	assert.Equal(t, DefaultQueries, queries)
}

func TestBuildQueries_GeoDomainCross(t *testing.T) {
	p := &model.Profile{
		Objective:      "tokenization adoption signals",
		Countries:      []string{"Poland", "Qatar"},
		Domains:        []string{"sovereign_cloud"},
		TimeWindowDays: 60,
	}

	queries := BuildQueries(p, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, queries, 4, "two phrasings per geo x domain pair")
	assert.Contains(t, queries[0], "Poland")
	assert.Contains(t, queries[0], "sovereign cloud data infrastructure")
	assert.Contains(t, queries[0], "2025")
	assert.Contains(t, queries[1], "last 60 days")
}

func TestBuildQueries_UnknownDomainFallsBackToWords(t *testing.T) {
	p := &model.Profile{
		Objective: "niche signals",
		Regions:   []string{"Middle East"},
		Domains:   []string{"quantum_ledgers"},
	}

	queries := BuildQueries(p, time.Now())
	require.NotEmpty(t, queries)
	assert.Contains(t, queries[0], "quantum ledgers")
}

func TestBuildQueries_CapsAndDedupes(t *testing.T) {
	geos := make([]string, 12) // trimmed to 10
	for i := range geos {
		geos[i] = "Country" + strings.Repeat("x", i+1)
	}
	domains := make([]string, 9) // trimmed to 8
	for i := range domains {
		domains[i] = "domain" + strings.Repeat("y", i+1)
	}
	p := &model.Profile{Objective: "wide sweep", Countries: geos, Domains: domains}

	queries := BuildQueries(p, time.Now())
	assert.Len(t, queries, maxProfileQueries)

	seen := make(map[string]bool, len(queries))
	for _, q := range queries {
		norm := strings.ToLower(strings.TrimSpace(q))
		assert.False(t, seen[norm], "duplicate query %q", q)
		seen[norm] = true
	}
}

func TestBuildQueries_EmptyProfileFieldsGetDefaults(t *testing.T) {
	p := &model.Profile{Objective: "anything"}

	queries := BuildQueries(p, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NotEmpty(t, queries)
	assert.Contains(t, queries[0], "Eastern Europe")
}
