package model

// PriorityTier classifies a scored signal by outreach urgency.
type PriorityTier string

const (
	TierHot     PriorityTier = "HOT"
	TierWarm    PriorityTier = "WARM"
	TierNurture PriorityTier = "NURTURE"
	TierHold    PriorityTier = "HOLD"
)

// SignalType describes the kind of institutional action behind a signal.
type SignalType string

const (
	SignalHire        SignalType = "hire"
	SignalPartnership SignalType = "partnership"
	SignalLaunch      SignalType = "launch"
	SignalPilot       SignalType = "pilot"
	SignalFiling      SignalType = "filing"
	SignalInvestment  SignalType = "investment"
	SignalConference  SignalType = "conference"
	SignalOther       SignalType = "other"
)

// GeoUnspecified is the default for blank country/region fields.
const GeoUnspecified = "Unspecified"

// Signal is one candidate business event extracted from a search result.
// Score fields are zero until a scoring pass has run.
type Signal struct {
	Institution     string `json:"institution"`
	Country         string `json:"country,omitempty"`
	Region          string `json:"region,omitempty"`
	SignalType      string `json:"signal_type"`
	SignalDate      string `json:"signal_date,omitempty"` // YYYY-MM-DD or YYYY-MM
	Domain          string `json:"domain,omitempty"`
	InstitutionTier string `json:"institution_tier,omitempty"`
	InstitutionType string `json:"institution_type,omitempty"`
	Seniority       string `json:"seniority,omitempty"`
	SourceURL       string `json:"source_url"`
	Summary         string `json:"summary,omitempty"`

	// Populated at ingest so the windower can break date ties by run.
	RunTimestamp string `json:"run_timestamp,omitempty"`

	// Scoring-pass fields.
	ScoreBreakdown    ScoreBreakdown      `json:"score_breakdown,omitempty"`
	TotalScore        int                 `json:"total_score,omitempty"`
	PriorityTier      PriorityTier        `json:"priority_tier,omitempty"`
	WeightedBreakdown map[string]Weighted `json:"profile_weighted_breakdown,omitempty"`
	Thresholds        map[string]int      `json:"profile_thresholds,omitempty"`
}

// ScoreBreakdown maps score component names to their category/points pairs.
type ScoreBreakdown map[string]Component

// Component is one scored dimension of a signal.
type Component struct {
	Category          string `json:"category"`
	Points            int    `json:"points"`
	SeniorityInferred bool   `json:"seniority_inferred,omitempty"`
}

// Weighted records how one profile ranking category contributed to the total.
type Weighted struct {
	Label           string  `json:"label"`
	Weight          int     `json:"weight"`
	SourceComponent string  `json:"source_component"`
	RawPoints       float64 `json:"raw_points"`
	MaxPoints       float64 `json:"max_points"`
	Normalized      float64 `json:"normalized"`
	WeightedPoints  float64 `json:"weighted_points"`
}

// Points returns the points for a component, or 0 if absent.
func (b ScoreBreakdown) Points(key string) int {
	if c, ok := b[key]; ok {
		return c.Points
	}
	return 0
}

// NormalizeTier maps arbitrary tier strings onto a known tier, defaulting to HOLD.
func NormalizeTier(s string) PriorityTier {
	switch PriorityTier(s) {
	case TierHot, TierWarm, TierNurture:
		return PriorityTier(s)
	default:
		return TierHold
	}
}
