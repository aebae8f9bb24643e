package pipeline

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// Window sorts signals most-recent-first by (signal_date, run_timestamp) and
// truncates to maxCount. Blank or unparsable dates sort last. Falling below
// minCount is a warning, never an error: the pipeline returns what exists
// and fabricates nothing.
func Window(signals []model.Signal, minCount, maxCount int) []model.Signal {
	log := zap.L().With(zap.String("phase", "window"))

	ordered := make([]model.Signal, len(signals))
	copy(ordered, signals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SignalDate != ordered[j].SignalDate {
			return ordered[i].SignalDate > ordered[j].SignalDate
		}
		return ordered[i].RunTimestamp > ordered[j].RunTimestamp
	})

	if len(ordered) > maxCount {
		ordered = ordered[:maxCount]
	}
	if len(ordered) < minCount {
		log.Warn("output below minimum target",
			zap.Int("count", len(ordered)),
			zap.Int("min", minCount),
			zap.Int("max", maxCount))
	} else {
		log.Info("output window enforced", zap.Int("count", len(ordered)))
	}
	return ordered
}
