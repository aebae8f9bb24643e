package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultThresholds are the tier cutoffs used when no profile is active.
var DefaultThresholds = map[string]int{"HOT": 80, "WARM": 60, "NURTURE": 40}

// RankingCategory is one weighted dimension in a profile's ranking config.
type RankingCategory struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label" yaml:"label"`
	Weight      int    `json:"weight" yaml:"weight"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// RankingConfig holds the weighted categories and tier thresholds of a profile.
type RankingConfig struct {
	Categories         []RankingCategory `json:"categories" yaml:"categories"`
	PriorityThresholds map[string]int    `json:"priority_thresholds" yaml:"priority_thresholds"`
}

// TargetOutput bounds the signal count and selects the dedupe policy.
type TargetOutput struct {
	MinSignals   int    `json:"min_signals" yaml:"min_signals"`
	MaxSignals   int    `json:"max_signals" yaml:"max_signals"`
	DedupePolicy string `json:"dedupe_policy" yaml:"dedupe_policy"`
}

// Profile is the operator-supplied configuration shaping a pipeline run:
// search scope, recency window, and scoring weights/thresholds.
type Profile struct {
	ProfileID      string        `json:"profile_id" yaml:"profile_id"`
	Version        int           `json:"version" yaml:"version"`
	CreatedAt      string        `json:"created_at" yaml:"created_at"`
	Objective      string        `json:"objective" yaml:"objective"`
	Regions        []string      `json:"regions" yaml:"regions"`
	Countries      []string      `json:"countries" yaml:"countries"`
	TimeWindowDays int           `json:"time_window_days" yaml:"time_window_days"`
	Domains        []string      `json:"domains" yaml:"domains"`
	SignalTypes    []string      `json:"signal_types" yaml:"signal_types"`
	InclusionRules []string      `json:"inclusion_rules,omitempty" yaml:"inclusion_rules,omitempty"`
	ExclusionRules []string      `json:"exclusion_rules,omitempty" yaml:"exclusion_rules,omitempty"`
	TargetOutput   TargetOutput  `json:"target_output" yaml:"target_output"`
	Ranking        RankingConfig `json:"ranking" yaml:"ranking"`
}

const maxRankingCategories = 5

// Validate rejects profiles that would be only partially applicable:
// weights must sum to exactly 100 across at most 5 unique-keyed categories,
// and tier thresholds must strictly decrease with NURTURE >= 0.
func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Objective) == "" {
		return eris.New("profile: objective is required")
	}
	if p.TimeWindowDays < 1 || p.TimeWindowDays > 3650 {
		return eris.Errorf("profile: time_window_days %d out of range [1, 3650]", p.TimeWindowDays)
	}

	cats := p.Ranking.Categories
	if len(cats) > maxRankingCategories {
		return eris.Errorf("profile: %d ranking categories exceeds maximum %d", len(cats), maxRankingCategories)
	}

	seen := make(map[string]bool, len(cats))
	total := 0
	for _, c := range cats {
		key := strings.TrimSpace(strings.ToLower(c.Key))
		if key == "" {
			return eris.New("profile: ranking category key must not be empty")
		}
		if seen[key] {
			return eris.Errorf("profile: duplicate ranking category key %q", key)
		}
		seen[key] = true
		if c.Weight < 0 || c.Weight > 100 {
			return eris.Errorf("profile: category %q weight %d out of range [0, 100]", key, c.Weight)
		}
		total += c.Weight
	}
	if len(cats) > 0 && total != 100 {
		return eris.Errorf("profile: ranking category weights sum to %d, must sum to 100", total)
	}

	hot := thresholdOrDefault(p.Ranking.PriorityThresholds, "HOT", 80)
	warm := thresholdOrDefault(p.Ranking.PriorityThresholds, "WARM", 60)
	nurture := thresholdOrDefault(p.Ranking.PriorityThresholds, "NURTURE", 40)
	if !(hot > warm && warm > nurture && nurture >= 0) {
		return eris.Errorf("profile: priority thresholds must satisfy HOT > WARM > NURTURE >= 0, got %d/%d/%d", hot, warm, nurture)
	}

	return nil
}

func thresholdOrDefault(m map[string]int, key string, def int) int {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// Thresholds returns the profile's tier cutoffs with defaults filled in.
func (p *Profile) Thresholds() map[string]int {
	return map[string]int{
		"HOT":     thresholdOrDefault(p.Ranking.PriorityThresholds, "HOT", 80),
		"WARM":    thresholdOrDefault(p.Ranking.PriorityThresholds, "WARM", 60),
		"NURTURE": thresholdOrDefault(p.Ranking.PriorityThresholds, "NURTURE", 40),
	}
}

// Targets returns (minCount, maxCount, recencyDays, dedupePolicy) for a run,
// falling back to built-in defaults when the profile is nil or incomplete.
func (p *Profile) Targets() (int, int, int, string) {
	if p == nil {
		return 20, 25, 90, "prefer_new"
	}

	minCount := p.TargetOutput.MinSignals
	if minCount <= 0 {
		minCount = 20
	}
	maxCount := p.TargetOutput.MaxSignals
	if maxCount <= 0 {
		maxCount = 25
	}
	if maxCount < minCount {
		maxCount = minCount
	}

	days := p.TimeWindowDays
	if days < 1 {
		days = 90
	}

	policy := p.TargetOutput.DedupePolicy
	if policy == "" {
		policy = "prefer_new"
	}
	return minCount, maxCount, days, policy
}

// DefaultProfile returns the built-in pipeline profile.
func DefaultProfile() *Profile {
	return &Profile{
		ProfileID:      "profile_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12],
		Version:        1,
		CreatedAt:      time.Now().Format(time.RFC3339),
		Objective:      "Identify 20-25 net-new buying signals for AI transformation and digital modernization.",
		Regions:        []string{"Eastern Europe", "Middle East"},
		TimeWindowDays: 90,
		Domains: []string{
			"ai_transformation",
			"ai_implementation",
			"agentic_automation",
			"industrial_automation",
			"sovereign_cloud",
		},
		SignalTypes: []string{"hire", "partnership", "launch", "pilot", "contract"},
		InclusionRules: []string{
			"Target institutions that are buyers/adopters, not vendors.",
			"Prioritize strategic initiatives with implementation budget signals.",
		},
		ExclusionRules: []string{
			"Exclude Tier-1 global banks, Big Tech, and top global consultancies.",
			"Exclude primary crypto/NFT/Web3 companies.",
		},
		TargetOutput: TargetOutput{MinSignals: 20, MaxSignals: 25, DedupePolicy: "prefer_new"},
		Ranking: RankingConfig{
			Categories: []RankingCategory{
				{Key: "action_strength", Label: "Action Strength", Weight: 30, Description: "How concrete the institutional action is."},
				{Key: "buyer_fit", Label: "Buyer Fit", Weight: 25, Description: "How likely the institution is to buy consulting/services."},
				{Key: "domain_fit", Label: "Domain Fit", Weight: 20, Description: "Alignment with chosen use-case domains."},
				{Key: "seniority", Label: "Seniority", Weight: 15, Description: "Decision-maker level tied to the signal."},
				{Key: "recency", Label: "Recency", Weight: 10, Description: "How recent the signal is."},
			},
			PriorityThresholds: map[string]int{"HOT": 80, "WARM": 60, "NURTURE": 40},
		},
	}
}

// LoadProfile reads and validates a profile from a JSON or YAML file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "profile: read %s", path)
	}

	var p Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &p); err != nil {
			return nil, eris.Wrapf(err, "profile: parse yaml %s", path)
		}
	default:
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, eris.Wrapf(err, "profile: parse json %s", path)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// ParseProfileJSON validates a profile from a raw JSON payload, tolerating
// markdown code fences around the document.
func ParseProfileJSON(raw string) (*Profile, error) {
	text := StripCodeFences(raw)

	var p Profile
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, eris.Wrap(err, "profile: parse json payload")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
