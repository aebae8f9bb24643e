package store

import (
	"context"
	"database/sql"
	"math"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS scout_runs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     TEXT NOT NULL,
	queries_used  INTEGER NOT NULL DEFAULT 0,
	results_found INTEGER NOT NULL DEFAULT 0,
	output_file   TEXT NOT NULL,
	profile_file  TEXT,
	profile_json  TEXT
);

CREATE TABLE IF NOT EXISTS signals (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id             INTEGER NOT NULL REFERENCES scout_runs(id),

	institution        TEXT,
	country            TEXT,
	region             TEXT,
	signal_type        TEXT,
	signal_date        TEXT,
	domain             TEXT,
	institution_tier   TEXT,
	seniority          TEXT,
	source_url         TEXT,
	summary            TEXT,

	total_score        REAL,
	priority_tier      TEXT,
	action_pts         INTEGER,
	seniority_pts      INTEGER,
	domain_pts         INTEGER,
	accessibility_pts  INTEGER,
	recency_pts        INTEGER,
	seniority_inferred INTEGER DEFAULT 0,
	scored_at          TEXT
);

CREATE INDEX IF NOT EXISTS idx_signals_run_id ON signals(run_id);
CREATE INDEX IF NOT EXISTS idx_scout_runs_output_file ON scout_runs(output_file);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WriteScoutRun inserts one scout_runs row plus one signals row per signal,
// score fields left NULL, all in a single transaction.
func (s *SQLiteStore) WriteScoutRun(ctx context.Context, report *model.ScoutReport, outputFile, profileFile, profileJSON string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin scout run")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scout_runs (timestamp, queries_used, results_found, output_file, profile_file, profile_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		report.Timestamp, len(report.SearchQueriesUsed), report.ValidatedSignalsCount,
		outputFile, nullable(profileFile), nullable(profileJSON),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert scout run")
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: scout run id")
	}

	for _, sig := range report.Signals {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO signals (
				run_id, institution, country, region, signal_type, signal_date,
				domain, institution_tier, seniority, source_url, summary
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, sig.Institution,
			orUnspecified(sig.Country), orUnspecified(sig.Region),
			sig.SignalType, sig.SignalDate, sig.Domain,
			sig.InstitutionTier, sig.Seniority, sig.SourceURL, sig.Summary,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert signal %s", sig.Institution)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit scout run")
	}
	return runID, nil
}

// WriteScoredRun reconciles a scored batch against the scout run whose
// output file matches the report's source_report, creating a placeholder run
// when none exists. Each scored signal is matched by natural key
// (institution, signal_type, signal_date, source_url) with blank-safe
// coalescing: matches update score fields only, misses insert a full row.
// Re-running with the same input is a no-op row-count-wise.
func (s *SQLiteStore) WriteScoredRun(ctx context.Context, report *model.ScoredReport) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin scored run")
	}
	defer tx.Rollback()

	var runID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM scout_runs WHERE output_file = ?`, report.SourceReport,
	).Scan(&runID)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO scout_runs (timestamp, queries_used, results_found, output_file)
			 VALUES (?, 0, ?, ?)`,
			report.Timestamp, len(report.Signals), report.SourceReport,
		)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: insert placeholder run")
		}
		if runID, err = res.LastInsertId(); err != nil {
			return 0, eris.Wrap(err, "sqlite: placeholder run id")
		}
	case err != nil:
		return 0, eris.Wrap(err, "sqlite: find scout run")
	}

	for _, sig := range report.Signals {
		sf := scoreFields(sig, report.Timestamp)

		var signalID int64
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM signals
			 WHERE run_id = ? AND institution = ? AND signal_type = ?
			   AND COALESCE(signal_date, '') = COALESCE(?, '')
			   AND COALESCE(source_url, '') = COALESCE(?, '')
			 LIMIT 1`,
			runID, sig.Institution, sig.SignalType, sig.SignalDate, sig.SourceURL,
		).Scan(&signalID)

		switch {
		case err == sql.ErrNoRows:
			tier := sig.InstitutionTier
			if tier == "" {
				tier = sig.InstitutionType
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO signals (
					run_id, institution, country, region, signal_type, signal_date,
					domain, institution_tier, seniority, source_url, summary,
					total_score, priority_tier, action_pts, seniority_pts,
					domain_pts, accessibility_pts, recency_pts,
					seniority_inferred, scored_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, sig.Institution,
				orUnspecified(sig.Country), orUnspecified(sig.Region),
				sig.SignalType, sig.SignalDate, sig.Domain, tier,
				sig.Seniority, sig.SourceURL, sig.Summary,
				sf.total, sf.tier, sf.action, sf.seniority, sf.domain,
				sf.accessibility, sf.recency, sf.inferred, sf.scoredAt,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: insert scored signal %s", sig.Institution)
			}
		case err != nil:
			return 0, eris.Wrapf(err, "sqlite: match scored signal %s", sig.Institution)
		default:
			_, err := tx.ExecContext(ctx,
				`UPDATE signals SET
					total_score        = ?,
					priority_tier      = ?,
					action_pts         = ?,
					seniority_pts      = ?,
					domain_pts         = ?,
					accessibility_pts  = ?,
					recency_pts        = ?,
					seniority_inferred = ?,
					scored_at          = ?
				 WHERE id = ?`,
				sf.total, sf.tier, sf.action, sf.seniority, sf.domain,
				sf.accessibility, sf.recency, sf.inferred, sf.scoredAt, signalID,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "sqlite: update scored signal %s", sig.Institution)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit scored run")
	}
	return runID, nil
}

// ExistingFingerprints returns dedup keys for every persisted signal across
// all runs.
func (s *SQLiteStore) ExistingFingerprints(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(institution, ''), COALESCE(signal_type, ''),
		        COALESCE(signal_date, ''), COALESCE(source_url, '')
		 FROM signals`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query fingerprints")
	}
	defer rows.Close()

	fps := make(map[string]bool)
	for rows.Next() {
		var sig model.Signal
		if err := rows.Scan(&sig.Institution, &sig.SignalType, &sig.SignalDate, &sig.SourceURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint row")
		}
		fps[Fingerprint(sig)] = true
	}
	return fps, eris.Wrap(rows.Err(), "sqlite: iterate fingerprints")
}

func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, queries_used, results_found, output_file,
		        COALESCE(profile_file, ''), COALESCE(profile_json, '')
		 FROM scout_runs ORDER BY id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.QueriesUsed, &r.ResultsFound,
			&r.OutputFile, &r.ProfileFile, &r.ProfileJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sr.id, sr.timestamp, sr.queries_used, sr.results_found, sr.output_file,
		        COALESCE(sr.profile_file, ''), COALESCE(sr.profile_json, ''),
		        COUNT(s.id) AS signal_count,
		        COALESCE(MAX(NULLIF(s.institution, '')), '') AS company_name
		 FROM scout_runs sr
		 LEFT JOIN signals s ON s.run_id = sr.id
		 GROUP BY sr.id, sr.timestamp, sr.queries_used, sr.results_found,
		          sr.output_file, sr.profile_file, sr.profile_json
		 ORDER BY sr.id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list batches")
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Timestamp, &b.QueriesUsed, &b.ResultsFound,
			&b.OutputFile, &b.ProfileFile, &b.ProfileJSON,
			&b.SignalCount, &b.CompanyName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		batches = append(batches, b)
	}
	return batches, eris.Wrap(rows.Err(), "sqlite: list batches iterate")
}

// LatestRunSignals returns every signal of the most recent run ordered by
// total_score descending, unscored rows last with HOLD/0 defaults.
func (s *SQLiteStore) LatestRunSignals(ctx context.Context) ([]model.Signal, error) {
	var runID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM scout_runs ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run id")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT institution, country, region, signal_type, signal_date, domain,
		        institution_tier, seniority, source_url, summary,
		        total_score, priority_tier, action_pts, seniority_pts,
		        domain_pts, accessibility_pts, recency_pts, seniority_inferred
		 FROM signals WHERE run_id = ?
		 ORDER BY total_score DESC NULLS LAST, id ASC`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run signals")
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, eris.Wrap(rows.Err(), "sqlite: latest run signals iterate")
}

func (s *SQLiteStore) GetSummary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp FROM scout_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&sum.RunID, &sum.Timestamp)
	if err == sql.ErrNoRows {
		return &Summary{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary run")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(priority_tier, '') FROM signals WHERE run_id = ?`, sum.RunID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary tiers")
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		if err := rows.Scan(&tier); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tier")
		}
		switch model.NormalizeTier(tier) {
		case model.TierHot:
			sum.Hot++
		case model.TierWarm:
			sum.Warm++
		case model.TierNurture:
			sum.Nurture++
		default:
			sum.Hold++
		}
		sum.Total++
	}
	return &sum, eris.Wrap(rows.Err(), "sqlite: summary iterate")
}

// DeleteBatch removes one run and its signals, returning the deleted run.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, runID int64) (*Run, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin delete batch")
	}
	defer tx.Rollback()

	var r Run
	err = tx.QueryRowContext(ctx,
		`SELECT id, timestamp, queries_used, results_found, output_file,
		        COALESCE(profile_file, ''), COALESCE(profile_json, '')
		 FROM scout_runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.Timestamp, &r.QueriesUsed, &r.ResultsFound,
		&r.OutputFile, &r.ProfileFile, &r.ProfileJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find batch %d", runID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE run_id = ?`, runID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: delete batch signals %d", runID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scout_runs WHERE id = ?`, runID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: delete batch run %d", runID)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit delete batch")
	}
	return &r, nil
}

// DeleteRuns removes the given runs and their signals together.
func (s *SQLiteStore) DeleteRuns(ctx context.Context, runIDs []int64) (*PurgeResult, error) {
	result := &PurgeResult{}
	unique := dedupeIDs(runIDs)
	if len(unique) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin delete runs")
	}
	defer tx.Rollback()

	for _, id := range unique {
		res, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE run_id = ?`, id)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: delete signals for run %d", id)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.SignalsDeleted += n
		}

		res, err = tx.ExecContext(ctx, `DELETE FROM scout_runs WHERE id = ?`, id)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: delete run %d", id)
		}
		if n, err := res.RowsAffected(); err == nil {
			result.RunsDeleted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit delete runs")
	}
	return result, nil
}

// UpdateRunProfile attaches profile metadata to an existing run.
func (s *SQLiteStore) UpdateRunProfile(ctx context.Context, runID int64, profileFile, profileJSON string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scout_runs SET profile_file = ?, profile_json = ? WHERE id = ?`,
		nullable(profileFile), nullable(profileJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run profile %d", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) LatestRunProfile(ctx context.Context) (*Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, timestamp, queries_used, results_found, output_file,
		        COALESCE(profile_file, ''), COALESCE(profile_json, '')
		 FROM scout_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&r.ID, &r.Timestamp, &r.QueriesUsed, &r.ResultsFound,
		&r.OutputFile, &r.ProfileFile, &r.ProfileJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest run profile")
	}
	return &r, nil
}

// signalScoreFields carries nullable score columns for one write.
type signalScoreFields struct {
	total         any
	tier          any
	action        any
	seniority     any
	domain        any
	accessibility any
	recency       any
	inferred      int
	scoredAt      string
}

func scoreFields(sig model.Signal, scoredAt string) signalScoreFields {
	sf := signalScoreFields{scoredAt: scoredAt}
	sf.total = sig.TotalScore
	if sig.PriorityTier != "" {
		sf.tier = string(sig.PriorityTier)
	}
	if c, ok := sig.ScoreBreakdown["action_type"]; ok {
		sf.action = c.Points
	}
	if c, ok := sig.ScoreBreakdown["seniority"]; ok {
		sf.seniority = c.Points
		if c.SeniorityInferred {
			sf.inferred = 1
		}
	}
	if c, ok := sig.ScoreBreakdown["domain_fit"]; ok {
		sf.domain = c.Points
	}
	if c, ok := sig.ScoreBreakdown["institution_accessibility"]; ok {
		sf.accessibility = c.Points
	}
	if c, ok := sig.ScoreBreakdown["recency"]; ok {
		sf.recency = c.Points
	}
	return sf
}

// scannable abstracts *sql.Row and *sql.Rows for shared scan helpers.
type scannable interface {
	Scan(dest ...any) error
}

func scanSignal(row scannable) (*model.Signal, error) {
	var sig model.Signal
	var country, region, signalType, signalDate, domain sql.NullString
	var tier, seniority, sourceURL, summary, priorityTier sql.NullString
	var totalScore sql.NullFloat64
	var actionPts, seniorityPts, domainPts, accessPts, recencyPts, inferred sql.NullInt64

	err := row.Scan(&sig.Institution, &country, &region, &signalType, &signalDate,
		&domain, &tier, &seniority, &sourceURL, &summary,
		&totalScore, &priorityTier, &actionPts, &seniorityPts,
		&domainPts, &accessPts, &recencyPts, &inferred)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan signal")
	}

	sig.Country = country.String
	sig.Region = region.String
	sig.SignalType = signalType.String
	sig.SignalDate = signalDate.String
	sig.Domain = domain.String
	sig.InstitutionTier = tier.String
	sig.Seniority = seniority.String
	sig.SourceURL = sourceURL.String
	sig.Summary = summary.String

	if totalScore.Valid {
		sig.TotalScore = int(math.Round(totalScore.Float64))
	}
	sig.PriorityTier = model.NormalizeTier(priorityTier.String)

	breakdown := model.ScoreBreakdown{}
	setComponent := func(key string, pts sql.NullInt64, inferredFlag bool) {
		if pts.Valid {
			breakdown[key] = model.Component{Points: int(pts.Int64), SeniorityInferred: inferredFlag}
		}
	}
	setComponent("action_type", actionPts, false)
	setComponent("seniority", seniorityPts, inferred.Valid && inferred.Int64 != 0)
	setComponent("domain_fit", domainPts, false)
	setComponent("institution_accessibility", accessPts, false)
	setComponent("recency", recencyPts, false)
	if len(breakdown) > 0 {
		sig.ScoreBreakdown = breakdown
	}
	return &sig, nil
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %d", entity, id)
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s %d not found", entity, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func orUnspecified(s string) string {
	if s == "" {
		return model.GeoUnspecified
	}
	return s
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
