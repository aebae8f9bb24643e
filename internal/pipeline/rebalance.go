package pipeline

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// aiPriorityDomains are the domains the rebalancer counts toward the target
// AI share of a batch.
var aiPriorityDomains = map[string]bool{
	"ai_transformation":  true,
	"ai_implementation":  true,
	"agentic_automation": true,
	"ai_compliance_risk": true,
}

var aiDomainSynonyms = map[string]string{
	"ai implementation":            "ai_implementation",
	"ai_implementation":            "ai_implementation",
	"enterprise_ai_implementation": "ai_implementation",
	"agentic automation":           "agentic_automation",
	"agentic_automation":           "agentic_automation",
	"ai_agents":                    "agentic_automation",
	"automation_agents":            "agentic_automation",
	"ai transformation":            "ai_transformation",
	"ai_transformation":            "ai_transformation",
	"ai_compliance_risk":           "ai_compliance_risk",
}

var aiHintKeywords = []string{
	"agentic",
	"ai agent",
	"llm",
	"copilot",
	"genai",
	"generative ai",
	"enterprise ai",
	"ai transformation",
	"ai rollout",
	"ai implementation",
	"workflow automation",
	"intelligent automation",
}

// NormalizeDomain lowercases a domain tag, converts dashes and slashes to
// underscores, and resolves known synonyms.
func NormalizeDomain(domain string) string {
	norm := strings.ToLower(strings.TrimSpace(domain))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, "/", "_")
	norm = strings.ReplaceAll(norm, "  ", " ")
	if canonical, ok := aiDomainSynonyms[norm]; ok {
		return canonical
	}
	return norm
}

// Rebalance normalizes domains and promotes non-AI signals whose text shows
// implementation/automation work to ai_implementation until at least
// targetRatio of the batch is AI-focused. Promotion never demotes, and
// re-running on a balanced batch is a no-op.
func Rebalance(signals []model.Signal, targetRatio float64) []model.Signal {
	log := zap.L().With(zap.String("phase", "rebalance"))
	if len(signals) == 0 {
		return signals
	}

	for i := range signals {
		signals[i].Domain = NormalizeDomain(signals[i].Domain)
	}

	aiCount := 0
	for _, sig := range signals {
		if aiPriorityDomains[sig.Domain] {
			aiCount++
		}
	}

	targetCount := int(math.Ceil(float64(len(signals)) * targetRatio))
	if targetCount < 1 {
		targetCount = 1
	}
	if aiCount >= targetCount {
		log.Info("domain mix already balanced",
			zap.Int("ai_count", aiCount),
			zap.Int("total", len(signals)),
			zap.Int("target", targetCount))
		return signals
	}

	promoted := 0
	for i := range signals {
		if aiCount >= targetCount {
			break
		}
		if aiPriorityDomains[signals[i].Domain] {
			continue
		}
		text := strings.ToLower(signals[i].Summary + " " + signals[i].SignalType)
		if containsAny(text, aiHintKeywords) {
			signals[i].Domain = "ai_implementation"
			aiCount++
			promoted++
		}
	}

	log.Info("domain mix rebalanced",
		zap.Int("ai_count", aiCount),
		zap.Int("total", len(signals)),
		zap.Int("promoted", promoted),
		zap.Int("target", targetCount))
	return signals
}
