package store

import (
	"context"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// Run is one scout_runs row: a single ingestion or scoring pass.
type Run struct {
	ID           int64  `json:"id"`
	Timestamp    string `json:"timestamp"`
	QueriesUsed  int    `json:"queries_used"`
	ResultsFound int    `json:"results_found"`
	OutputFile   string `json:"output_file"`
	ProfileFile  string `json:"profile_file,omitempty"`
	ProfileJSON  string `json:"profile_json,omitempty"`
}

// Batch is a run plus aggregate signal info, for listing surfaces.
type Batch struct {
	Run
	SignalCount int    `json:"signal_count"`
	CompanyName string `json:"company_name"`
}

// Summary aggregates the latest run's signals by priority tier.
type Summary struct {
	RunID     int64  `json:"run_id"`
	Timestamp string `json:"timestamp"`
	Hot       int    `json:"HOT"`
	Warm      int    `json:"WARM"`
	Nurture   int    `json:"NURTURE"`
	Hold      int    `json:"HOLD"`
	Total     int    `json:"total"`
}

// PurgeResult reports how many rows a bulk delete removed.
type PurgeResult struct {
	SignalsDeleted int64 `json:"signals_deleted"`
	RunsDeleted    int64 `json:"runs_deleted"`
}

// Store defines the persistence interface for the signal pipeline. Both
// write paths commit a whole pass in one transaction so partial results are
// never visible, and WriteScoredRun is safe to re-run against the same
// ingestion output.
type Store interface {
	// Write passes
	WriteScoutRun(ctx context.Context, report *model.ScoutReport, outputFile, profileFile, profileJSON string) (int64, error)
	WriteScoredRun(ctx context.Context, report *model.ScoredReport) (int64, error)

	// Dedup
	ExistingFingerprints(ctx context.Context) (map[string]bool, error)

	// Bookkeeping
	ListRuns(ctx context.Context) ([]Run, error)
	ListBatches(ctx context.Context) ([]Batch, error)
	LatestRunSignals(ctx context.Context) ([]model.Signal, error)
	GetSummary(ctx context.Context) (*Summary, error)
	DeleteBatch(ctx context.Context, runID int64) (*Run, error)
	DeleteRuns(ctx context.Context, runIDs []int64) (*PurgeResult, error)
	UpdateRunProfile(ctx context.Context, runID int64, profileFile, profileJSON string) error
	LatestRunProfile(ctx context.Context) (*Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
