// Package pipeline implements the signal ingestion cascade: query building,
// web search, agent extraction, the filter chain, dedup against prior runs,
// and the report/store write-out.
package pipeline

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/agent"
	"github.com/Kakaur/tensr-signal-agent/internal/config"
	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/internal/store"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

// Pipeline wires the search client, the extraction and classification
// agents, and the run store into the two pipeline passes.
type Pipeline struct {
	cfg    *config.Config
	store  store.Store
	search tavily.Client
	scout  *agent.Scout
	scorer *agent.Scorer
}

// New creates a new Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, search tavily.Client, scout *agent.Scout, scorer *agent.Scorer) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  st,
		search: search,
		scout:  scout,
		scorer: scorer,
	}
}

// ScoutResult describes one completed ingestion pass.
type ScoutResult struct {
	ReportPath string
	RunID      int64
	Report     *model.ScoutReport
}

// RunScout executes the ingestion pass: build queries, search, extract, run
// the filter cascade, and persist the report. A nil profile runs with the
// built-in defaults. The pass succeeds even when every candidate is filtered
// out; the empty report is still written so the run is auditable.
func (p *Pipeline) RunScout(ctx context.Context, profile *model.Profile, profilePath string) (*ScoutResult, error) {
	log := zap.L().With(zap.String("phase", "scout"))
	now := time.Now()

	queries := BuildQueries(profile, now)
	if max := p.cfg.Pipeline.MaxQueries; max > 0 && len(queries) > max {
		queries = queries[:max]
	}
	log.Info("queries built", zap.Int("count", len(queries)))

	results, err := p.search.SearchAll(ctx, queries)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: search")
	}
	if len(results) == 0 {
		return nil, eris.New("pipeline: no search results, nothing to extract")
	}

	profileJSON := marshalProfile(profile)
	minCount, maxCount, recencyDays, policy := p.targets(profile)

	signals, rawText, err := p.scout.Extract(ctx, results, profileJSON, minCount)
	if err != nil {
		// Unparsable agent output is zero records, not a failed run. The
		// raw text is kept in the report for postmortems.
		log.Warn("agent output did not parse, treating as zero signals", zap.Error(err))
		signals = nil
	}
	agentReturned := len(signals)

	runTS := now.Format(time.RFC3339)
	for i := range signals {
		signals[i].RunTimestamp = runTS
	}

	validURLs := make(map[string]bool, len(results))
	for _, r := range results {
		validURLs[r.URL] = true
	}

	signals = FilterValidURLs(signals, validURLs)
	signals = FilterTier1(signals)
	signals = FilterCryptoPrimary(signals, p.cfg.Pipeline.ContextWindowBytes)
	signals = FilterAINativeVendors(signals, p.cfg.Pipeline.ContextWindowBytes)
	signals = FilterStale(signals, recencyDays, now)

	existing, err := p.existingFingerprints(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load fingerprints")
	}
	signals = Dedupe(signals, existing, policy, minCount)

	signals = Rebalance(signals, p.cfg.Pipeline.RebalanceRatio)
	signals = EnrichGeo(signals, results)
	signals = FilterNonCompany(signals)
	signals = FilterGenericLabels(signals)
	signals = Window(signals, minCount, maxCount)

	report := &model.ScoutReport{
		Timestamp:             runTS,
		SearchQueriesUsed:     queries,
		TotalSearchResults:    len(results),
		AgentSignalsReturned:  agentReturned,
		ValidatedSignalsCount: len(signals),
		Signals:               signals,
		Profile:               profile,
	}
	if len(signals) == 0 {
		report.RawOutput = rawText
	}

	path := filepath.Join(p.cfg.Outputs.Dir, "signal_report_"+model.ReportTimestamp(now)+".json")
	if err := model.WriteJSON(path, report); err != nil {
		return nil, eris.Wrap(err, "pipeline: write report")
	}
	log.Info("report written",
		zap.String("path", path),
		zap.Int("validated", len(signals)))

	res := &ScoutResult{ReportPath: path, Report: report}
	if !p.cfg.Pipeline.SkipStore {
		runID, err := p.store.WriteScoutRun(ctx, report, filepath.Base(path), profilePath, profileJSON)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: persist run")
		}
		res.RunID = runID
		log.Info("run persisted", zap.Int64("run_id", runID))
	}
	return res, nil
}

// targets resolves min/max counts, the recency cutoff, and the dedup policy.
// An active profile wins over config.
func (p *Pipeline) targets(profile *model.Profile) (int, int, int, string) {
	if profile != nil {
		return profile.Targets()
	}
	minCount := p.cfg.Pipeline.MinSignals
	maxCount := p.cfg.Pipeline.MaxSignals
	if maxCount < minCount {
		maxCount = minCount
	}
	return minCount, maxCount, p.cfg.Pipeline.RecencyDays, p.cfg.Pipeline.DedupePolicy
}

func (p *Pipeline) existingFingerprints(ctx context.Context) (map[string]bool, error) {
	if p.cfg.Pipeline.SkipStore {
		return map[string]bool{}, nil
	}
	return p.store.ExistingFingerprints(ctx)
}

func marshalProfile(profile *model.Profile) string {
	if profile == nil {
		return ""
	}
	data, err := json.Marshal(profile)
	if err != nil {
		zap.L().Warn("profile marshal failed", zap.Error(err))
		return ""
	}
	return string(data)
}
