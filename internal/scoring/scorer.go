package scoring

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// Fixed category point tables. Unknown keys fall back to 5 points.
var actionTypeScores = map[string]int{
	"launch":      30,
	"filing":      25,
	"pilot":       22,
	"hire":        20,
	"partnership": 15,
	"investment":  10,
	"conference":  10,
	"other":       5,
}

var seniorityScores = map[string]int{
	"c-suite":          20,
	"md":               20,
	"c-suite / md":     20,
	"c-suite/md":       20,
	"vp":               15,
	"director":         15,
	"vp/director":      15,
	"vp / director":    15,
	"senior":           10,
	"manager":          10,
	"senior/manager":   10,
	"senior / manager": 10,
	"unknown":          5,
}

var domainFitScores = map[string]int{
	"stablecoin":         25,
	"digital_assets":     22,
	"agentic_automation": 20,
	"ai_compliance_risk": 18,
	"ai_implementation":  16,
	"ai_transformation":  14,
	"other":              5,
}

var institutionScores = map[string]int{
	"series a+ fintech":        15,
	"regional/community bank":  12,
	"regional / community bank": 12,
	"mid-tier bank":            8,
	"unknown":                  5,
}

const unknownCategoryPoints = 5

// componentMax holds the maximum raw points per score component, used to
// normalize profile-weighted contributions.
var componentMax = map[string]float64{
	"action_type":               30,
	"seniority":                 20,
	"domain_fit":                25,
	"institution_accessibility": 15,
	"recency":                   10,
}

// ScoreRecency buckets a signal's age into points. Unparsable dates score 0:
// the recency component never guesses, unlike the recency filter which
// fails open.
func ScoreRecency(signalDate string, now time.Time) model.Component {
	parsed, ok := model.ParseSignalDate(strings.TrimSpace(signalDate))
	if !ok {
		return model.Component{Category: "unknown", Points: 0}
	}

	daysOld := int(now.Sub(parsed).Hours() / 24)
	switch {
	case daysOld < 30:
		return model.Component{Category: "<30 days", Points: 10}
	case daysOld <= 90:
		return model.Component{Category: "30-90 days", Points: 7}
	case daysOld <= 180:
		return model.Component{Category: "90-180 days", Points: 4}
	case daysOld <= 365:
		return model.Component{Category: "180-365 days", Points: 2}
	default:
		return model.Component{Category: ">365 days", Points: 0}
	}
}

// applySeniorityOverride reassigns the seniority component for strategic
// partnerships and launches where seniority is unreported: concrete evidence
// of strategic commitment implies senior involvement.
func applySeniorityOverride(sig model.Signal, breakdown model.ScoreBreakdown, log *zap.Logger) {
	sigType := strings.ToLower(sig.SignalType)
	domain := strings.ToLower(sig.Domain)
	seniority := strings.ToLower(sig.Seniority)

	if seniority != "unknown" || (domain != "stablecoin" && domain != "digital_assets") {
		return
	}

	switch sigType {
	case "partnership":
		breakdown["seniority"] = model.Component{
			Category:          "inferred (strategic partnership)",
			Points:            15,
			SeniorityInferred: true,
		}
		log.Debug("seniority override applied",
			zap.String("institution", sig.Institution),
			zap.String("kind", "strategic partnership"))
	case "launch":
		breakdown["seniority"] = model.Component{
			Category:          "inferred (strategic launch)",
			Points:            12,
			SeniorityInferred: true,
		}
		log.Debug("seniority override applied",
			zap.String("institution", sig.Institution),
			zap.String("kind", "strategic launch"))
	}
}

// Rescore replaces any model-proposed score on a signal with the
// deterministic point tables, then computes the total and tier — weighted
// by the profile's ranking categories when present, otherwise a raw sum
// against the fixed 80/60/40 thresholds.
func Rescore(sig model.Signal, profile *model.Profile, now time.Time) model.Signal {
	log := zap.L().With(zap.String("phase", "score"))

	breakdown := model.ScoreBreakdown{}

	sigType := strings.ToLower(sig.SignalType)
	if sigType == "" {
		sigType = "other"
	}
	breakdown["action_type"] = model.Component{
		Category: sigType,
		Points:   lookupOr(actionTypeScores, sigType, unknownCategoryPoints),
	}

	seniority := strings.ToLower(sig.Seniority)
	if seniority == "" {
		seniority = "unknown"
	}
	breakdown["seniority"] = model.Component{
		Category: seniority,
		Points:   lookupOr(seniorityScores, seniority, unknownCategoryPoints),
	}
	applySeniorityOverride(sig, breakdown, log)

	domain := strings.ToLower(sig.Domain)
	if domain == "" {
		domain = "other"
	}
	breakdown["domain_fit"] = model.Component{
		Category: domain,
		Points:   lookupOr(domainFitScores, domain, unknownCategoryPoints),
	}

	instType := strings.ToLower(sig.InstitutionType)
	if instType == "" {
		instType = "unknown"
	}
	breakdown["institution_accessibility"] = model.Component{
		Category: instType,
		Points:   lookupOr(institutionScores, instType, unknownCategoryPoints),
	}

	breakdown["recency"] = ScoreRecency(sig.SignalDate, now)

	sig.ScoreBreakdown = breakdown

	if profile != nil && len(profile.Ranking.Categories) > 0 {
		total, weighted := WeightedTotal(breakdown, profile.Ranking.Categories)
		thresholds := profile.Thresholds()
		sig.TotalScore = total
		sig.PriorityTier = TierFor(total, thresholds)
		sig.WeightedBreakdown = weighted
		sig.Thresholds = thresholds
	} else {
		total := 0
		for _, c := range breakdown {
			total += c.Points
		}
		sig.TotalScore = total
		sig.PriorityTier = TierFor(total, model.DefaultThresholds)
	}

	log.Debug("signal scored",
		zap.String("institution", sig.Institution),
		zap.Int("total", sig.TotalScore),
		zap.String("tier", string(sig.PriorityTier)))
	return sig
}

// RescoreAll scores a batch against one profile and clock.
func RescoreAll(signals []model.Signal, profile *model.Profile, now time.Time) []model.Signal {
	scored := make([]model.Signal, len(signals))
	for i, sig := range signals {
		scored[i] = Rescore(sig, profile, now)
	}
	return scored
}

func lookupOr(table map[string]int, key string, fallback int) int {
	if pts, ok := table[key]; ok {
		return pts
	}
	return fallback
}
