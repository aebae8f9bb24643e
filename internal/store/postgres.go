package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

// Pool abstracts pgxpool.Pool so pgxmock can stand in during unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"find_run_by_output":   `SELECT id FROM scout_runs WHERE output_file = $1`,
	"insert_signal":        `INSERT INTO signals (run_id, institution, country, region, signal_type, signal_date, domain, institution_tier, seniority, source_url, summary) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
	"match_scored_signal":  `SELECT id FROM signals WHERE run_id = $1 AND institution = $2 AND signal_type = $3 AND COALESCE(signal_date, '') = COALESCE($4, '') AND COALESCE(source_url, '') = COALESCE($5, '') LIMIT 1`,
	"select_fingerprints":  `SELECT COALESCE(institution, ''), COALESCE(signal_type, ''), COALESCE(signal_date, ''), COALESCE(source_url, '') FROM signals`,
	"latest_run_id":        `SELECT id FROM scout_runs ORDER BY id DESC LIMIT 1`,
	"tiers_for_run":        `SELECT COALESCE(priority_tier, '') FROM signals WHERE run_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS scout_runs (
	id            BIGSERIAL PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	queries_used  INTEGER NOT NULL DEFAULT 0,
	results_found INTEGER NOT NULL DEFAULT 0,
	output_file   TEXT NOT NULL,
	profile_file  TEXT,
	profile_json  TEXT
);

CREATE TABLE IF NOT EXISTS signals (
	id                 BIGSERIAL PRIMARY KEY,
	run_id             BIGINT NOT NULL REFERENCES scout_runs(id),

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

	total_score        DOUBLE PRECISION,
	priority_tier      TEXT,
	action_pts         INTEGER,
	seniority_pts      INTEGER,
	domain_pts         INTEGER,
	accessibility_pts  INTEGER,
	recency_pts        INTEGER,
	seniority_inferred BOOLEAN NOT NULL DEFAULT false,
	scored_at          TEXT
);

CREATE INDEX IF NOT EXISTS idx_signals_run_id ON signals(run_id);
CREATE INDEX IF NOT EXISTS idx_scout_runs_output_file ON scout_runs(output_file);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) WriteScoutRun(ctx context.Context, report *model.ScoutReport, outputFile, profileFile, profileJSON string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin scout run")
	}
	defer tx.Rollback(ctx)

	var runID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO scout_runs (timestamp, queries_used, results_found, output_file, profile_file, profile_json)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		report.Timestamp, len(report.SearchQueriesUsed), report.ValidatedSignalsCount,
		outputFile, nullable(profileFile), nullable(profileJSON),
	).Scan(&runID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert scout run")
	}

	for _, sig := range report.Signals {
		_, err := tx.Exec(ctx,
			`INSERT INTO signals (
				run_id, institution, country, region, signal_type, signal_date,
				domain, institution_tier, seniority, source_url, summary
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			runID, sig.Institution,
			orUnspecified(sig.Country), orUnspecified(sig.Region),
			sig.SignalType, sig.SignalDate, sig.Domain,
			sig.InstitutionTier, sig.Seniority, sig.SourceURL, sig.Summary,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert signal %s", sig.Institution)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit scout run")
	}
	return runID, nil
}

func (s *PostgresStore) WriteScoredRun(ctx context.Context, report *model.ScoredReport) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin scored run")
	}
	defer tx.Rollback(ctx)

	var runID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM scout_runs WHERE output_file = $1`, report.SourceReport,
	).Scan(&runID)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx,
			`INSERT INTO scout_runs (timestamp, queries_used, results_found, output_file)
			 VALUES ($1, 0, $2, $3) RETURNING id`,
			report.Timestamp, len(report.Signals), report.SourceReport,
		).Scan(&runID)
		if err != nil {
			return 0, eris.Wrap(err, "postgres: insert placeholder run")
		}
	case err != nil:
		return 0, eris.Wrap(err, "postgres: find scout run")
	}

	for _, sig := range report.Signals {
		sf := scoreFields(sig, report.Timestamp)

		var signalID int64
		err := tx.QueryRow(ctx,
			`SELECT id FROM signals
			 WHERE run_id = $1 AND institution = $2 AND signal_type = $3
			   AND COALESCE(signal_date, '') = COALESCE($4, '')
			   AND COALESCE(source_url, '') = COALESCE($5, '')
			 LIMIT 1`,
			runID, sig.Institution, sig.SignalType, sig.SignalDate, sig.SourceURL,
		).Scan(&signalID)

		switch {
		case errors.Is(err, pgx.ErrNoRows):
			tier := sig.InstitutionTier
			if tier == "" {
				tier = sig.InstitutionType
			}
			_, err := tx.Exec(ctx,
				`INSERT INTO signals (
					run_id, institution, country, region, signal_type, signal_date,
					domain, institution_tier, seniority, source_url, summary,
					total_score, priority_tier, action_pts, seniority_pts,
					domain_pts, accessibility_pts, recency_pts,
					seniority_inferred, scored_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
				          $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
				runID, sig.Institution,
				orUnspecified(sig.Country), orUnspecified(sig.Region),
				sig.SignalType, sig.SignalDate, sig.Domain, tier,
				sig.Seniority, sig.SourceURL, sig.Summary,
				sf.total, sf.tier, sf.action, sf.seniority, sf.domain,
				sf.accessibility, sf.recency, sf.inferred != 0, sf.scoredAt,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: insert scored signal %s", sig.Institution)
			}
		case err != nil:
			return 0, eris.Wrapf(err, "postgres: match scored signal %s", sig.Institution)
		default:
			_, err := tx.Exec(ctx,
				`UPDATE signals SET
					total_score        = $1,
					priority_tier      = $2,
					action_pts         = $3,
					seniority_pts      = $4,
					domain_pts         = $5,
					accessibility_pts  = $6,
					recency_pts        = $7,
					seniority_inferred = $8,
					scored_at          = $9
				 WHERE id = $10`,
				sf.total, sf.tier, sf.action, sf.seniority, sf.domain,
				sf.accessibility, sf.recency, sf.inferred != 0, sf.scoredAt, signalID,
			)
			if err != nil {
				return 0, eris.Wrapf(err, "postgres: update scored signal %s", sig.Institution)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit scored run")
	}
	return runID, nil
}

func (s *PostgresStore) ExistingFingerprints(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(institution, ''), COALESCE(signal_type, ''),
		        COALESCE(signal_date, ''), COALESCE(source_url, '')
		 FROM signals`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query fingerprints")
	}
	defer rows.Close()

	fps := make(map[string]bool)
	for rows.Next() {
		var sig model.Signal
		if err := rows.Scan(&sig.Institution, &sig.SignalType, &sig.SignalDate, &sig.SourceURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint row")
		}
		fps[Fingerprint(sig)] = true
	}
	return fps, eris.Wrap(rows.Err(), "postgres: iterate fingerprints")
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, timestamp, queries_used, results_found, output_file,
		        COALESCE(profile_file, ''), COALESCE(profile_json, '')
		 FROM scout_runs ORDER BY id DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.QueriesUsed, &r.ResultsFound,
			&r.OutputFile, &r.ProfileFile, &r.ProfileJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]Batch, error) {
	rows, err := s.pool.Query(ctx,
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
		return nil, eris.Wrap(err, "postgres: list batches")
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.Timestamp, &b.QueriesUsed, &b.ResultsFound,
			&b.OutputFile, &b.ProfileFile, &b.ProfileJSON,
			&b.SignalCount, &b.CompanyName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		batches = append(batches, b)
	}
	return batches, eris.Wrap(rows.Err(), "postgres: list batches iterate")
}

func (s *PostgresStore) LatestRunSignals(ctx context.Context) ([]model.Signal, error) {
	var runID int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM scout_runs ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run id")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT institution, country, region, signal_type, signal_date, domain,
		        institution_tier, seniority, source_url, summary,
		        total_score, priority_tier, action_pts, seniority_pts,
		        domain_pts, accessibility_pts, recency_pts, seniority_inferred
		 FROM signals WHERE run_id = $1
		 ORDER BY total_score DESC NULLS LAST, id ASC`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run signals")
	}
	defer rows.Close()

	var signals []model.Signal
	for rows.Next() {
		sig, err := scanPgSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, eris.Wrap(rows.Err(), "postgres: latest run signals iterate")
}

func (s *PostgresStore) GetSummary(ctx context.Context) (*Summary, error) {
	var sum Summary
	err := s.pool.QueryRow(ctx,
		`SELECT id, timestamp FROM scout_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&sum.RunID, &sum.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Summary{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary run")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(priority_tier, '') FROM signals WHERE run_id = $1`, sum.RunID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary tiers")
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		if err := rows.Scan(&tier); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tier")
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
	return &sum, eris.Wrap(rows.Err(), "postgres: summary iterate")
}

func (s *PostgresStore) DeleteBatch(ctx context.Context, runID int64) (*Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin delete batch")
	}
	defer tx.Rollback(ctx)

	var r Run
	err = tx.QueryRow(ctx,
		`SELECT id, timestamp, queries_used, results_found, output_file,
		        COALESCE(profile_file, ''), COALESCE(profile_json, '')
		 FROM scout_runs WHERE id = $1`, runID,
	).Scan(&r.ID, &r.Timestamp, &r.QueriesUsed, &r.ResultsFound,
		&r.OutputFile, &r.ProfileFile, &r.ProfileJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: find batch %d", runID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM signals WHERE run_id = $1`, runID); err != nil {
		return nil, eris.Wrapf(err, "postgres: delete batch signals %d", runID)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scout_runs WHERE id = $1`, runID); err != nil {
		return nil, eris.Wrapf(err, "postgres: delete batch run %d", runID)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit delete batch")
	}
	return &r, nil
}

func (s *PostgresStore) DeleteRuns(ctx context.Context, runIDs []int64) (*PurgeResult, error) {
	result := &PurgeResult{}
	unique := dedupeIDs(runIDs)
	if len(unique) == 0 {
		return result, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin delete runs")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM signals WHERE run_id = ANY($1)`, unique)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: delete signals")
	}
	result.SignalsDeleted = tag.RowsAffected()

	tag, err = tx.Exec(ctx, `DELETE FROM scout_runs WHERE id = ANY($1)`, unique)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: delete runs")
	}
	result.RunsDeleted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit delete runs")
	}
	return result, nil
}

func (s *PostgresStore) UpdateRunProfile(ctx context.Context, runID int64, profileFile, profileJSON string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE scout_runs SET profile_file = $1, profile_json = $2 WHERE id = $3`,
		nullable(profileFile), nullable(profileJSON), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run profile %d", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %d not found", runID)
	}
	return nil
}

func (s *PostgresStore) LatestRunProfile(ctx context.Context) (*Run, error) {
	var r Run
	err := s.pool.QueryRow(ctx,
		`SELECT id, timestamp, queries_used, results_found, output_file,
		        COALESCE(profile_file, ''), COALESCE(profile_json, '')
		 FROM scout_runs ORDER BY id DESC LIMIT 1`,
	).Scan(&r.ID, &r.Timestamp, &r.QueriesUsed, &r.ResultsFound,
		&r.OutputFile, &r.ProfileFile, &r.ProfileJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest run profile")
	}
	return &r, nil
}

func scanPgSignal(row scannable) (*model.Signal, error) {
	var sig model.Signal
	var country, region, signalType, signalDate, domain *string
	var tier, seniority, sourceURL, summary, priorityTier *string
	var totalScore *float64
	var actionPts, seniorityPts, domainPts, accessPts, recencyPts *int32
	var inferred bool

	err := row.Scan(&sig.Institution, &country, &region, &signalType, &signalDate,
		&domain, &tier, &seniority, &sourceURL, &summary,
		&totalScore, &priorityTier, &actionPts, &seniorityPts,
		&domainPts, &accessPts, &recencyPts, &inferred)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan signal")
	}

	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	sig.Country = deref(country)
	sig.Region = deref(region)
	sig.SignalType = deref(signalType)
	sig.SignalDate = deref(signalDate)
	sig.Domain = deref(domain)
	sig.InstitutionTier = deref(tier)
	sig.Seniority = deref(seniority)
	sig.SourceURL = deref(sourceURL)
	sig.Summary = deref(summary)

	if totalScore != nil {
		sig.TotalScore = int(math.Round(*totalScore))
	}
	sig.PriorityTier = model.NormalizeTier(deref(priorityTier))

	breakdown := model.ScoreBreakdown{}
	setComponent := func(key string, pts *int32, inferredFlag bool) {
		if pts != nil {
			breakdown[key] = model.Component{Points: int(*pts), SeniorityInferred: inferredFlag}
		}
	}
	setComponent("action_type", actionPts, false)
	setComponent("seniority", seniorityPts, inferred)
	setComponent("domain_fit", domainPts, false)
	setComponent("institution_accessibility", accessPts, false)
	setComponent("recency", recencyPts, false)
	if len(breakdown) > 0 {
		sig.ScoreBreakdown = breakdown
	}
	return &sig, nil
}
