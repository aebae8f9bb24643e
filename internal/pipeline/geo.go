package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

var countryToRegion = map[string]string{
	"saudi arabia":         "Middle East",
	"uae":                  "Middle East",
	"united arab emirates": "Middle East",
	"qatar":                "Middle East",
	"kuwait":               "Middle East",
	"oman":                 "Middle East",
	"bahrain":              "Middle East",
	"poland":               "Eastern Europe",
	"romania":              "Eastern Europe",
	"czech republic":       "Eastern Europe",
	"czechia":              "Eastern Europe",
	"hungary":              "Eastern Europe",
	"slovakia":             "Eastern Europe",
	"bulgaria":             "Eastern Europe",
	"croatia":              "Eastern Europe",
	"serbia":               "Eastern Europe",
	"slovenia":             "Eastern Europe",
}

// countryKeywords maps a canonical country name to substrings that imply it.
// Ordered so multi-word spellings win over their prefixes.
var countryKeywords = []struct {
	country  string
	keywords []string
}{
	{"saudi arabia", []string{"saudi arabia", "saudi"}},
	{"uae", []string{"uae", "united arab emirates", "abu dhabi", "dubai"}},
	{"qatar", []string{"qatar", "doha"}},
	{"kuwait", []string{"kuwait"}},
	{"oman", []string{"oman"}},
	{"bahrain", []string{"bahrain"}},
	{"poland", []string{"poland", "polish"}},
	{"romania", []string{"romania", "romanian"}},
	{"czech republic", []string{"czech republic", "czech", "czechia"}},
	{"hungary", []string{"hungary", "hungarian"}},
	{"slovakia", []string{"slovakia", "slovak"}},
	{"bulgaria", []string{"bulgaria", "bulgarian"}},
	{"croatia", []string{"croatia", "croatian"}},
	{"serbia", []string{"serbia", "serbian"}},
	{"slovenia", []string{"slovenia", "slovenian"}},
}

var countryTitle = cases.Title(language.English)

func detectCountry(text string) string {
	low := strings.ToLower(text)
	for _, entry := range countryKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(low, kw) {
				if entry.country == "uae" {
					return "UAE"
				}
				return countryTitle.String(entry.country)
			}
		}
	}
	return ""
}

func detectRegion(text string) string {
	low := strings.ToLower(text)
	switch {
	case strings.Contains(low, "middle east"),
		strings.Contains(low, "gcc"),
		strings.Contains(low, "gulf"):
		return "Middle East"
	case strings.Contains(low, "eastern europe"):
		return "Eastern Europe"
	}
	return ""
}

// isGeographyName reports whether the lowercased institution string is a raw
// country or region name.
func isGeographyName(low string) bool {
	for _, entry := range countryKeywords {
		if low == entry.country {
			return true
		}
	}
	for _, region := range countryToRegion {
		if low == strings.ToLower(region) {
			return true
		}
	}
	return false
}

// EnrichGeo fills blank country/region fields by keyword inference over the
// signal text and the search-result context of its source URL. Fields that
// cannot be inferred default to "Unspecified".
func EnrichGeo(signals []model.Signal, results []tavily.SearchResult) []model.Signal {
	urlCtx := make(map[string]string, len(results))
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		urlCtx[r.URL] = strings.Join([]string{r.Query, r.Title, r.Content}, " ")
	}

	for i := range signals {
		sig := &signals[i]
		country := strings.TrimSpace(sig.Country)
		region := strings.TrimSpace(sig.Region)
		contextText := strings.Join([]string{
			sig.Institution, sig.Summary, urlCtx[sig.SourceURL],
		}, " ")

		if country == "" {
			country = detectCountry(contextText)
		}
		if region == "" {
			region = detectRegion(contextText)
		}
		if region == "" && country != "" {
			region = countryToRegion[strings.ToLower(country)]
		}

		sig.Country = country
		sig.Region = region
		if sig.Country == "" {
			sig.Country = model.GeoUnspecified
		}
		if sig.Region == "" {
			sig.Region = model.GeoUnspecified
		}
	}
	return signals
}
