package pipeline

import (
	"strings"

	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/internal/store"
)

// Dedupe policies.
const (
	PolicyExcludeSeen = "exclude_seen"
	PolicyAllowSeen   = "allow_seen"
	PolicyPreferNew   = "prefer_new"
)

// Dedupe collapses intra-batch duplicate fingerprints (first occurrence wins)
// and applies the cross-run policy against existing fingerprints:
//
//   - exclude_seen: new-only, but backfills up to minCount with seen signals
//     so a run is never near-empty (the relaxation is logged).
//   - allow_seen: unseen then seen.
//   - prefer_new (default): same backfill as exclude_seen.
func Dedupe(signals []model.Signal, existing map[string]bool, policy string, minCount int) []model.Signal {
	log := zap.L().With(zap.String("phase", "dedupe"))

	var unseen, seen []model.Signal
	batch := make(map[string]bool, len(signals))
	droppedBatch := 0

	for _, sig := range signals {
		fp := store.Fingerprint(sig)
		if batch[fp] {
			droppedBatch++
			continue
		}
		batch[fp] = true
		if existing[fp] {
			seen = append(seen, sig)
		} else {
			unseen = append(unseen, sig)
		}
	}

	normalized := strings.ToLower(strings.TrimSpace(policy))
	if normalized == "" {
		normalized = PolicyPreferNew
	}

	var selected []model.Signal
	switch normalized {
	case PolicyExcludeSeen:
		selected = append(selected, unseen...)
		if len(selected) < minCount {
			selected = backfillSeen(selected, seen, minCount)
			log.Warn("exclude_seen relaxed to meet minimum target",
				zap.Int("min_count", minCount))
		}
	case PolicyAllowSeen:
		selected = append(append(selected, unseen...), seen...)
	default:
		selected = append(selected, unseen...)
		if len(selected) < minCount {
			selected = backfillSeen(selected, seen, minCount)
		}
	}

	log.Info("dedupe policy applied",
		zap.String("policy", normalized),
		zap.Int("unseen", len(unseen)),
		zap.Int("seen", len(seen)),
		zap.Int("dropped_batch", droppedBatch),
		zap.Int("selected", len(selected)))
	return selected
}

// backfillSeen appends seen signals until selected reaches minCount, never
// beyond it.
func backfillSeen(selected, seen []model.Signal, minCount int) []model.Signal {
	need := minCount - len(selected)
	if need <= 0 {
		return selected
	}
	if need > len(seen) {
		need = len(seen)
	}
	return append(selected, seen[:need]...)
}
