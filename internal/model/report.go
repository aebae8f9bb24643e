package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ScoutReport is the ingestion-pass artifact, written as
// signal_report_<ts>.json. The field layout is persisted state and must stay
// stable across versions.
type ScoutReport struct {
	Timestamp             string   `json:"timestamp"`
	SearchQueriesUsed     []string `json:"search_queries_used"`
	TotalSearchResults    int      `json:"total_search_results"`
	AgentSignalsReturned  int      `json:"agent_signals_returned"`
	ValidatedSignalsCount int      `json:"validated_signals_count"`
	Signals               []Signal `json:"signals"`
	Profile               *Profile `json:"profile,omitempty"`

	// Kept for postmortems when agent output failed to parse.
	RawOutput string `json:"raw_output,omitempty"`
}

// ScoredReport is the scoring-pass artifact, written as
// scored_report_<ts>.json. SourceReport names the scout report this pass
// scored and is the natural key linking the two passes in the store.
type ScoredReport struct {
	Timestamp    string   `json:"timestamp"`
	SourceReport string   `json:"source_report"`
	HotCount     int      `json:"hot_count"`
	WarmCount    int      `json:"warm_count"`
	NurtureCount int      `json:"nurture_count"`
	HoldCount    int      `json:"hold_count"`
	TotalSignals int      `json:"total_signals"`
	Signals      []Signal `json:"signals"`
}

// NewScoredReport tallies tier counts over already-scored signals.
func NewScoredReport(sourceReport string, signals []Signal) *ScoredReport {
	r := &ScoredReport{
		Timestamp:    time.Now().Format(time.RFC3339),
		SourceReport: sourceReport,
		TotalSignals: len(signals),
		Signals:      signals,
	}
	for _, s := range signals {
		switch s.PriorityTier {
		case TierHot:
			r.HotCount++
		case TierWarm:
			r.WarmCount++
		case TierNurture:
			r.NurtureCount++
		default:
			r.HoldCount++
		}
	}
	return r
}

// StripCodeFences removes a leading/trailing markdown code fence from model
// output so the enclosed JSON document can be parsed.
func StripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		if _, rest, ok := strings.Cut(text, "\n"); ok {
			text = rest
		}
	}
	if strings.HasSuffix(text, "```") {
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

// ParseSignalsFromText parses extraction-agent output into signals. The
// payload may be a bare JSON array or an object with a "signals" (or
// "results") key, optionally wrapped in markdown fences. Unparsable text is
// an error, never a guess.
func ParseSignalsFromText(raw string) ([]Signal, error) {
	text := StripCodeFences(raw)
	if text == "" {
		return nil, eris.New("report: empty agent output")
	}

	var signals []Signal
	if err := json.Unmarshal([]byte(text), &signals); err == nil {
		return signals, nil
	}

	var wrapped struct {
		Signals []Signal `json:"signals"`
		Results []Signal `json:"results"`
	}
	if err := json.Unmarshal([]byte(text), &wrapped); err != nil {
		return nil, eris.Wrap(err, "report: parse agent output")
	}
	if wrapped.Signals != nil {
		return wrapped.Signals, nil
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return nil, eris.New("report: agent output has no signals array")
}

// ReportTimestamp formats a report file timestamp (20060102_150405).
func ReportTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// WriteJSON writes any report payload as indented JSON, creating the
// directory if needed.
func WriteJSON(path string, payload any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir for %s", path)
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: marshal payload")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// LoadScoutReport reads and parses a signal_report_*.json file.
func LoadScoutReport(path string) (*ScoutReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var r ScoutReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	return &r, nil
}

// LoadScoredReport reads and parses a scored_report_*.json file.
func LoadScoredReport(path string) (*ScoredReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var r ScoredReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	return &r, nil
}

// FindLatestReport returns the newest file in dir matching pattern
// (e.g. "signal_report_*.json"), by modification time.
func FindLatestReport(dir, pattern string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return "", eris.Wrapf(err, "report: glob %s", pattern)
	}
	if len(matches) == 0 {
		return "", eris.Errorf("report: no files matching %s in %s", pattern, dir)
	}
	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return matches[i] > matches[j]
		}
		return fi.ModTime().After(fj.ModTime())
	})
	return matches[0], nil
}
