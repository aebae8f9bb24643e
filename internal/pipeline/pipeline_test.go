package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kakaur/tensr-signal-agent/internal/agent"
	"github.com/Kakaur/tensr-signal-agent/internal/config"
	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/internal/store"
	"github.com/Kakaur/tensr-signal-agent/pkg/anthropic"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

// fakeRunStore records pipeline writes in memory.
type fakeRunStore struct {
	fingerprints map[string]bool

	scoutReports  []*model.ScoutReport
	scoutOutputs  []string
	scoredReports []*model.ScoredReport
	fpCalls       int
}

func (f *fakeRunStore) WriteScoutRun(ctx context.Context, report *model.ScoutReport, outputFile, profileFile, profileJSON string) (int64, error) {
	f.scoutReports = append(f.scoutReports, report)
	f.scoutOutputs = append(f.scoutOutputs, outputFile)
	return int64(len(f.scoutReports)), nil
}

func (f *fakeRunStore) WriteScoredRun(ctx context.Context, report *model.ScoredReport) (int64, error) {
	f.scoredReports = append(f.scoredReports, report)
	return int64(len(f.scoredReports)), nil
}

func (f *fakeRunStore) ExistingFingerprints(ctx context.Context) (map[string]bool, error) {
	f.fpCalls++
	if f.fingerprints == nil {
		return map[string]bool{}, nil
	}
	return f.fingerprints, nil
}

func (f *fakeRunStore) ListRuns(ctx context.Context) ([]store.Run, error)            { return nil, nil }
func (f *fakeRunStore) ListBatches(ctx context.Context) ([]store.Batch, error)       { return nil, nil }
func (f *fakeRunStore) LatestRunSignals(ctx context.Context) ([]model.Signal, error) { return nil, nil }
func (f *fakeRunStore) GetSummary(ctx context.Context) (*store.Summary, error)       { return nil, nil }
func (f *fakeRunStore) DeleteBatch(ctx context.Context, runID int64) (*store.Run, error) {
	return nil, nil
}
func (f *fakeRunStore) DeleteRuns(ctx context.Context, runIDs []int64) (*store.PurgeResult, error) {
	return nil, nil
}
func (f *fakeRunStore) UpdateRunProfile(ctx context.Context, runID int64, profileFile, profileJSON string) error {
	return nil
}
func (f *fakeRunStore) LatestRunProfile(ctx context.Context) (*store.Run, error) { return nil, nil }
func (f *fakeRunStore) Migrate(ctx context.Context) error                        { return nil }
func (f *fakeRunStore) Close() error                                             { return nil }

// fakeSearcher returns a fixed result set for any queries.
type fakeSearcher struct {
	results []tavily.SearchResult
}

func (f fakeSearcher) Search(ctx context.Context, query string) ([]tavily.SearchResult, error) {
	return f.results, nil
}

func (f fakeSearcher) SearchAll(ctx context.Context, queries []string) ([]tavily.SearchResult, error) {
	return f.results, nil
}

// cannedLLM answers every message with the same text block.
type cannedLLM struct{ text string }

func (c cannedLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: c.text}},
	}, nil
}

func pipelineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Outputs.Dir = t.TempDir()
	cfg.Pipeline.MinSignals = 1
	cfg.Pipeline.MaxSignals = 25
	cfg.Pipeline.RecencyDays = 90
	cfg.Pipeline.DedupePolicy = "prefer_new"
	cfg.Pipeline.RebalanceRatio = 0.5
	cfg.Pipeline.MaxQueries = 10
	return cfg
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}

func newTestPipeline(cfg *config.Config, st store.Store, search tavily.Client, scoutText, scorerText string) *Pipeline {
	scout := agent.NewScout(cannedLLM{text: scoutText}, "m", 4096, 0)
	scorer := agent.NewScorer(cannedLLM{text: scorerText}, "m", 4096, 10)
	return New(cfg, st, search, scout, scorer)
}

func TestRunScout_FullCascade(t *testing.T) {
	cfg := pipelineConfig(t)
	st := &fakeRunStore{}

	search := fakeSearcher{results: []tavily.SearchResult{
		{Query: "q", Title: "a", URL: "https://news.example/alfa", Content: "Alfa Bank partners."},
		{Query: "q", Title: "b", URL: "https://news.example/beta", Content: "Beta Capital launches."},
	}}

	recent := time.Now().AddDate(0, 0, -5).Format("2006-01-02")
	extracted := []model.Signal{
		{Institution: "Alfa Bank", Country: "Poland", SignalType: "partnership",
			SignalDate: recent, Domain: "digital_assets",
			SourceURL: "https://news.example/alfa",
			Summary:   "Alfa Bank signs a tokenization partnership."},
		{Institution: "Beta Capital Group", SignalType: "launch",
			SignalDate: recent, Domain: "digital_assets",
			SourceURL: "https://news.example/beta",
			Summary:   "Beta Capital Group launches a custody product."},
		{Institution: "Fabricated Co", SignalType: "hire",
			SignalDate: recent, SourceURL: "https://bogus.example/x",
			Summary: "URL never appeared in search results."},
		{Institution: "Goldman Sachs", SignalType: "launch",
			SignalDate: recent, SourceURL: "https://news.example/alfa",
			Summary: "Tier-1 institution is excluded."},
	}

	p := newTestPipeline(cfg, st, search, mustJSON(t, extracted), "[]")
	res, err := p.RunScout(context.Background(), nil, "")
	require.NoError(t, err)

	require.NotNil(t, res.Report)
	assert.Equal(t, 4, res.Report.AgentSignalsReturned)
	assert.Equal(t, 2, res.Report.ValidatedSignalsCount)

	names := make([]string, 0, 2)
	for _, sig := range res.Report.Signals {
		names = append(names, sig.Institution)
		assert.NotEmpty(t, sig.RunTimestamp)
	}
	assert.ElementsMatch(t, []string{"Alfa Bank", "Beta Capital Group"}, names)

	for _, sig := range res.Report.Signals {
		switch sig.Institution {
		case "Alfa Bank":
			assert.Equal(t, "Poland", sig.Country)
			assert.Equal(t, "Eastern Europe", sig.Region)
		case "Beta Capital Group":
			assert.Equal(t, model.GeoUnspecified, sig.Country)
		}
	}

	// Report on disk matches what the store saw.
	_, statErr := os.Stat(res.ReportPath)
	require.NoError(t, statErr)
	require.Len(t, st.scoutReports, 1)
	assert.Equal(t, filepath.Base(res.ReportPath), st.scoutOutputs[0])
	assert.Equal(t, int64(1), res.RunID)
	assert.Equal(t, 1, st.fpCalls)
}

func TestRunScout_SeenFingerprintExcluded(t *testing.T) {
	cfg := pipelineConfig(t)
	st := &fakeRunStore{fingerprints: map[string]bool{
		"url::https://news.example/beta": true,
	}}

	search := fakeSearcher{results: []tavily.SearchResult{
		{URL: "https://news.example/alfa", Content: "c"},
		{URL: "https://news.example/beta", Content: "c"},
	}}

	recent := time.Now().AddDate(0, 0, -5).Format("2006-01-02")
	extracted := []model.Signal{
		{Institution: "Alfa Bank", SignalType: "partnership", SignalDate: recent,
			SourceURL: "https://news.example/alfa", Summary: "s"},
		{Institution: "Beta Capital Group", SignalType: "launch", SignalDate: recent,
			SourceURL: "https://news.example/beta", Summary: "s"},
	}

	p := newTestPipeline(cfg, st, search, mustJSON(t, extracted), "[]")
	res, err := p.RunScout(context.Background(), nil, "")
	require.NoError(t, err)

	require.Len(t, res.Report.Signals, 1)
	assert.Equal(t, "Alfa Bank", res.Report.Signals[0].Institution)
}

func TestRunScout_SkipStore(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Pipeline.SkipStore = true
	st := &fakeRunStore{}

	search := fakeSearcher{results: []tavily.SearchResult{
		{URL: "https://news.example/alfa", Content: "c"},
	}}
	recent := time.Now().AddDate(0, 0, -5).Format("2006-01-02")
	extracted := []model.Signal{
		{Institution: "Alfa Bank", SignalType: "hire", SignalDate: recent,
			SourceURL: "https://news.example/alfa", Summary: "s"},
	}

	p := newTestPipeline(cfg, st, search, mustJSON(t, extracted), "[]")
	res, err := p.RunScout(context.Background(), nil, "")
	require.NoError(t, err)

	assert.Zero(t, res.RunID)
	assert.Empty(t, st.scoutReports)
	assert.Zero(t, st.fpCalls, "dedup skips the store too")
}

func TestRunScout_UnparsableOutputIsEmptyRun(t *testing.T) {
	cfg := pipelineConfig(t)
	st := &fakeRunStore{}
	search := fakeSearcher{results: []tavily.SearchResult{{URL: "https://x", Content: "c"}}}

	p := newTestPipeline(cfg, st, search, "no JSON today, sorry", "[]")
	res, err := p.RunScout(context.Background(), nil, "")
	require.NoError(t, err, "unparsable output is an empty run, not a failed one")

	assert.Zero(t, res.Report.ValidatedSignalsCount)
	assert.Equal(t, "no JSON today, sorry", res.Report.RawOutput)
	require.Len(t, st.scoutReports, 1, "empty run is still recorded")
}

func TestRunScout_NoSearchResultsIsError(t *testing.T) {
	cfg := pipelineConfig(t)
	p := newTestPipeline(cfg, &fakeRunStore{}, fakeSearcher{}, "[]", "[]")

	_, err := p.RunScout(context.Background(), nil, "")
	assert.Error(t, err)
}

func scoutReportFixture(t *testing.T, dir string) (string, []model.Signal) {
	t.Helper()
	recent := time.Now().AddDate(0, 0, -10).Format("2006-01-02")
	older := time.Now().AddDate(0, 0, -60).Format("2006-01-02")
	signals := []model.Signal{
		{Institution: "Alfa Bank", SignalType: "launch", SignalDate: recent,
			Domain: "digital_assets", InstitutionType: "mid-tier bank", Seniority: "vp",
			SourceURL: "https://news.example/alfa", Summary: "s"},
		{Institution: "Beta Capital Group", SignalType: "conference", SignalDate: older,
			Domain: "other", InstitutionType: "unknown", Seniority: "unknown",
			SourceURL: "https://news.example/beta", Summary: "s"},
	}
	report := &model.ScoutReport{
		Timestamp:             time.Now().Format(time.RFC3339),
		ValidatedSignalsCount: len(signals),
		Signals:               signals,
	}
	path := filepath.Join(dir, "signal_report_20250701_120000.json")
	require.NoError(t, model.WriteJSON(path, report))
	return path, signals
}

func TestRunScore_ScoresAndPersists(t *testing.T) {
	cfg := pipelineConfig(t)
	st := &fakeRunStore{}
	path, signals := scoutReportFixture(t, cfg.Outputs.Dir)

	p := newTestPipeline(cfg, st, fakeSearcher{}, "[]", mustJSON(t, signals))
	res, err := p.RunScore(context.Background(), path, "")
	require.NoError(t, err)

	require.NotNil(t, res.Report)
	assert.Equal(t, 2, res.Report.TotalSignals)
	assert.Equal(t, filepath.Base(path), res.Report.SourceReport)

	require.Len(t, res.Report.Signals, 2)
	assert.Equal(t, "Alfa Bank", res.Report.Signals[0].Institution,
		"sorted by total score descending")
	assert.GreaterOrEqual(t,
		res.Report.Signals[0].TotalScore, res.Report.Signals[1].TotalScore)
	for _, sig := range res.Report.Signals {
		assert.NotEmpty(t, sig.PriorityTier)
		assert.NotEmpty(t, sig.ScoreBreakdown)
	}

	_, statErr := os.Stat(res.ReportPath)
	require.NoError(t, statErr)
	require.Len(t, st.scoredReports, 1)
	assert.Equal(t, int64(1), res.RunID)
}

func TestRunScore_EmptyPathPicksLatestReport(t *testing.T) {
	cfg := pipelineConfig(t)
	st := &fakeRunStore{}
	path, signals := scoutReportFixture(t, cfg.Outputs.Dir)

	p := newTestPipeline(cfg, st, fakeSearcher{}, "[]", mustJSON(t, signals))
	res, err := p.RunScore(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(path), res.Report.SourceReport)
}

func TestRunScore_NoStructuredSignalsIsError(t *testing.T) {
	cfg := pipelineConfig(t)
	path := filepath.Join(cfg.Outputs.Dir, "signal_report_20250701_120000.json")
	require.NoError(t, model.WriteJSON(path, &model.ScoutReport{RawOutput: "prose only"}))

	p := newTestPipeline(cfg, &fakeRunStore{}, fakeSearcher{}, "[]", "[]")
	_, err := p.RunScore(context.Background(), path, "")
	assert.Error(t, err, "scoring never invents records")
}

func TestRunAll_SkipsScoringOnEmptyScout(t *testing.T) {
	cfg := pipelineConfig(t)
	st := &fakeRunStore{}
	search := fakeSearcher{results: []tavily.SearchResult{{URL: "https://x", Content: "c"}}}

	p := newTestPipeline(cfg, st, search, "nothing parses here", "[]")
	scoutRes, scoreRes, err := p.RunAll(context.Background(), nil, "")
	require.NoError(t, err)
	require.NotNil(t, scoutRes)
	assert.Nil(t, scoreRes)
	assert.Empty(t, st.scoredReports)
}
