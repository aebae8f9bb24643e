package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/internal/scoring"
)

// ScoreResult describes one completed scoring pass.
type ScoreResult struct {
	ReportPath string
	RunID      int64
	Report     *model.ScoredReport
}

// RunScore executes the scoring pass over an existing ingestion report. An
// empty reportPath picks the newest signal_report_*.json in the outputs
// directory. profilePath, when set, overrides the profile embedded in the
// report. A report with no structured signals is an error: scoring never
// invents records.
func (p *Pipeline) RunScore(ctx context.Context, reportPath, profilePath string) (*ScoreResult, error) {
	log := zap.L().With(zap.String("phase", "score"))

	if reportPath == "" {
		latest, err := model.FindLatestReport(p.cfg.Outputs.Dir, "signal_report_*.json")
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: locate scout report")
		}
		reportPath = latest
	}

	source, err := model.LoadScoutReport(reportPath)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load scout report")
	}
	if len(source.Signals) == 0 {
		return nil, eris.Errorf("pipeline: %s has no structured signals to score", filepath.Base(reportPath))
	}
	log.Info("scoring report",
		zap.String("source", filepath.Base(reportPath)),
		zap.Int("signals", len(source.Signals)))

	profile := source.Profile
	if profilePath != "" {
		loaded, err := model.LoadProfile(profilePath)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: load profile")
		}
		profile = loaded
	}
	profileJSON := marshalProfile(profile)

	signals, err := p.scorer.Classify(ctx, source.Signals, profileJSON)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: classify signals")
	}

	now := time.Now()
	scored := scoring.RescoreAll(signals, profile, now)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].TotalScore > scored[j].TotalScore
	})

	report := model.NewScoredReport(filepath.Base(reportPath), scored)

	path := filepath.Join(p.cfg.Outputs.Dir, "scored_report_"+model.ReportTimestamp(now)+".json")
	if err := model.WriteJSON(path, report); err != nil {
		return nil, eris.Wrap(err, "pipeline: write scored report")
	}
	log.Info("scored report written",
		zap.String("path", path),
		zap.Int("hot", report.HotCount),
		zap.Int("warm", report.WarmCount),
		zap.Int("nurture", report.NurtureCount),
		zap.Int("hold", report.HoldCount))

	res := &ScoreResult{ReportPath: path, Report: report}
	if !p.cfg.Pipeline.SkipStore {
		runID, err := p.store.WriteScoredRun(ctx, report)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: persist scored run")
		}
		res.RunID = runID
		log.Info("scores persisted", zap.Int64("run_id", runID))
	}
	return res, nil
}

// RunAll runs the ingestion pass and then scores its output in one go.
func (p *Pipeline) RunAll(ctx context.Context, profile *model.Profile, profilePath string) (*ScoutResult, *ScoreResult, error) {
	scoutRes, err := p.RunScout(ctx, profile, profilePath)
	if err != nil {
		return nil, nil, err
	}
	if len(scoutRes.Report.Signals) == 0 {
		zap.L().Warn("ingestion produced no signals, skipping scoring pass")
		return scoutRes, nil, nil
	}
	scoreRes, err := p.RunScore(ctx, scoutRes.ReportPath, profilePath)
	if err != nil {
		return scoutRes, nil, err
	}
	return scoutRes, scoreRes, nil
}
