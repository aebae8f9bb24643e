package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/Kakaur/tensr-signal-agent/internal/agent"
	"github.com/Kakaur/tensr-signal-agent/internal/model"
	"github.com/Kakaur/tensr-signal-agent/internal/pipeline"
	"github.com/Kakaur/tensr-signal-agent/internal/store"
	anthropicpkg "github.com/Kakaur/tensr-signal-agent/pkg/anthropic"
	"github.com/Kakaur/tensr-signal-agent/pkg/tavily"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "signals.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// env bundles the pipeline with the store it owns.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// initPipeline builds the store, the API clients, and the pipeline.
func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Anthropic.Key == "" {
		st.Close()
		return nil, eris.New("anthropic API key is required (SIGNAL_ANTHROPIC_KEY)")
	}
	if cfg.Tavily.Key == "" {
		st.Close()
		return nil, eris.New("tavily API key is required (SIGNAL_TAVILY_KEY)")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	searchClient := tavily.NewClient(cfg.Tavily.Key,
		tavily.WithBaseURL(cfg.Tavily.BaseURL),
		tavily.WithMaxResults(cfg.Tavily.MaxResults),
		tavily.WithMaxConcurrent(cfg.Tavily.MaxConcurrent),
		tavily.WithRateLimit(cfg.Tavily.RequestsPerSec),
	)

	scout := agent.NewScout(anthropicClient, cfg.Anthropic.ScoutModel, int64(cfg.Anthropic.MaxTokens), cfg.Pipeline.UndercountRetries)
	scorer := agent.NewScorer(anthropicClient, cfg.Anthropic.ScoreModel, int64(cfg.Anthropic.MaxTokens), cfg.Pipeline.ScoreBatchSize)

	return &env{
		Store:    st,
		Pipeline: pipeline.New(cfg, st, searchClient, scout, scorer),
	}, nil
}

// loadActiveProfile resolves the profile for a run: the --profile flag wins,
// then the configured default path, else no profile.
func loadActiveProfile(flagPath string) (*model.Profile, string, error) {
	path := flagPath
	if path == "" {
		path = cfg.Pipeline.ProfilePath
	}
	if path == "" {
		return nil, "", nil
	}
	p, err := model.LoadProfile(path)
	if err != nil {
		return nil, "", eris.Wrap(err, "load profile")
	}
	if err := p.Validate(); err != nil {
		return nil, "", err
	}
	return p, path, nil
}
