package scoring

import (
	"math"
	"strings"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// categoryComponentAliases maps profile ranking-category keys onto the fixed
// score components. Unresolved custom keys fall through to a neutral 50/100
// raw score.
var categoryComponentAliases = map[string]string{
	"action_strength":           "action_type",
	"action_type":               "action_type",
	"buyer_fit":                 "institution_accessibility",
	"institution_accessibility": "institution_accessibility",
	"institution_fit":           "institution_accessibility",
	"domain_fit":                "domain_fit",
	"seniority":                 "seniority",
	"recency":                   "recency",
}

// WeightedTotal computes the profile-weighted normalized total: each
// category's raw points are normalized against the component maximum,
// clamped to [0,1], multiplied by the category weight, summed, and rounded.
// With weights summing to 100 the result is always in [0,100].
func WeightedTotal(breakdown model.ScoreBreakdown, categories []model.RankingCategory) (int, map[string]model.Weighted) {
	weighted := make(map[string]model.Weighted, len(categories))
	total := 0.0

	for _, cat := range categories {
		key := strings.ToLower(strings.TrimSpace(cat.Key))
		label := cat.Label
		if label == "" {
			label = key
		}

		component := categoryComponentAliases[key]
		rawPoints := 0.0
		maxPoints := 100.0

		switch {
		case component != "":
			if c, ok := breakdown[component]; ok {
				rawPoints = float64(c.Points)
			}
			if m, ok := componentMax[component]; ok {
				maxPoints = m
			}
		default:
			if c, ok := breakdown[key]; ok {
				rawPoints = float64(c.Points)
				if m, ok := componentMax[key]; ok {
					maxPoints = m
				}
			} else {
				// Unknown custom category key: neutral fallback.
				rawPoints = 50
			}
		}

		normalized := 0.0
		if maxPoints > 0 {
			normalized = math.Max(0, math.Min(1, rawPoints/maxPoints))
		}
		contribution := normalized * float64(cat.Weight)
		total += contribution

		name := key
		if name == "" {
			name = label
		}
		source := component
		if source == "" {
			source = key
		}
		weighted[name] = model.Weighted{
			Label:           label,
			Weight:          cat.Weight,
			SourceComponent: source,
			RawPoints:       rawPoints,
			MaxPoints:       maxPoints,
			Normalized:      round4(normalized),
			WeightedPoints:  round2(contribution),
		}
	}

	return int(math.Round(total)), weighted
}

// TierFor classifies a total score against thresholds, compared in strict
// descending order with inclusive-upward boundaries.
func TierFor(total int, thresholds map[string]int) model.PriorityTier {
	hot := thresholdOr(thresholds, "HOT", 80)
	warm := thresholdOr(thresholds, "WARM", 60)
	nurture := thresholdOr(thresholds, "NURTURE", 40)

	switch {
	case total >= hot:
		return model.TierHot
	case total >= warm:
		return model.TierWarm
	case total >= nurture:
		return model.TierNurture
	default:
		return model.TierHold
	}
}

func thresholdOr(m map[string]int, key string, def int) int {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
