package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// DefaultQueries is the built-in search query list used when no profile is
// active: geographically diverse, covering all signal types.
var DefaultQueries = []string{
	// Eastern Europe
	"Poland industrial automation AI 2025",
	"Poland nearshore logistics digital transformation 2025",
	"Polish bank digital assets EU AI Act compliance 2025",
	"Romania industrial AI transformation 2025",
	"Romania nearshore logistics technology 2025",
	"Czech Republic industrial automation digital 2025",
	"Czech bank AI transformation 2025",
	"Eastern Europe Industrial 5.0 adoption 2025",
	"Eastern Europe Digital Product Passport DPP 2025",
	"Eastern Europe EU AI Act compliance fintech 2025",
	"Eastern Europe labor cost AI offset 2025",
	"Poland fintech Series A digital assets 2025",
	"Romania fintech AI partnership 2025",
	"Czech fintech digital transformation 2025",
	"Eastern Europe regional bank AI pilot 2025",
	"Eastern Europe sovereign cloud initiative 2025",
	// Middle East
	"Saudi Arabia non-oil GDP AI strategy 2025",
	"Saudi Arabia giga-project digital transformation 2025",
	"Saudi Arabia National AI Strategy alignment 2025",
	"UAE in-country value ICV digital assets 2025",
	"UAE smart city orchestration AI 2025",
	"UAE sovereign cloud initiative 2025",
	"Qatar non-oil diversification technology 2025",
	"Kuwait digital transformation AI 2025",
	"Saudi Arabia family conglomerate digital assets 2025",
	"UAE regional champion AI transformation 2025",
	"Middle East sovereign wealth fund digital assets 2025",
	"Saudi fintech digital asset tokenization 2025",
	"UAE bank digital assets pilot 2025",
	"Qatar bank AI transformation 2025",
	"Kuwait bank digital assets 2025",
	"Abu Dhabi sovereign cloud digital assets 2025",
	"Middle East Industrial 5.0 smart manufacturing 2025",
	"Middle East Digital Product Passport DPP supply chain 2025",
	// Cross-region
	"Eastern Europe Middle East fintech AI Series A 2025",
	"regional bank Eastern Europe digital transformation hire 2025",
	"family conglomerate Middle East AI consulting 2025",
	"industrial company Poland Romania digitalization 2025",
	"Gulf Cooperation Council GCC fintech AI pilot 2025",
}

// domainQueryHints expands a domain tag into search phrasing.
var domainQueryHints = map[string]string{
	"ai_transformation":        "enterprise AI transformation",
	"ai_implementation":        "AI implementation rollout",
	"agentic_automation":       "agentic automation AI agents operations",
	"industrial_automation":    "industrial automation Industry 5.0",
	"digital_product_passport": "digital product passport DPP supply chain",
	"sovereign_cloud":          "sovereign cloud data infrastructure",
	"tokenized_rwa":            "tokenized real world assets institutional pilot",
	"smart_city":               "smart city orchestration AI",
	"ai_compliance_risk":       "EU AI Act compliance AI governance",
}

const maxProfileQueries = 50

// BuildQueries derives search queries from a profile (geos x domains x
// objective, two phrasings each), normalized-deduplicated and capped.
// A nil profile yields the built-in defaults.
func BuildQueries(profile *model.Profile, now time.Time) []string {
	if profile == nil {
		return DefaultQueries
	}

	geos := profile.Countries
	if len(geos) == 0 {
		geos = profile.Regions
	}
	if len(geos) == 0 {
		geos = []string{"Eastern Europe", "Middle East"}
	}
	if len(geos) > 10 {
		geos = geos[:10]
	}

	domains := profile.Domains
	if len(domains) == 0 {
		domains = []string{"ai_transformation"}
	}
	if len(domains) > 8 {
		domains = domains[:8]
	}

	objective := profile.Objective
	if objective == "" {
		objective = "digital transformation buying signals"
	}
	days := profile.TimeWindowDays
	if days < 1 {
		days = 90
	}
	year := now.Year()

	var queries []string
	for _, geo := range geos {
		for _, domain := range domains {
			hint, ok := domainQueryHints[domain]
			if !ok {
				hint = strings.ReplaceAll(domain, "_", " ")
			}
			queries = append(queries,
				fmt.Sprintf("%s %s %s %d", geo, hint, objective, year),
				fmt.Sprintf("%s %s institutional adoption last %d days", geo, hint, days),
			)
		}
	}

	seen := make(map[string]bool, len(queries))
	var deduped []string
	for _, q := range queries {
		norm := strings.ToLower(strings.TrimSpace(q))
		if !seen[norm] {
			seen[norm] = true
			deduped = append(deduped, q)
		}
	}

	if len(deduped) == 0 {
		return DefaultQueries
	}
	if len(deduped) > maxProfileQueries {
		deduped = deduped[:maxProfileQueries]
	}
	return deduped
}
