package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Outputs   OutputsConfig   `yaml:"outputs" mapstructure:"outputs"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// TavilyConfig holds Tavily search API settings.
type TavilyConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	MaxResults     int     `yaml:"max_results" mapstructure:"max_results"`
	MaxConcurrent  int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	ScoutModel string `yaml:"scout_model" mapstructure:"scout_model"`
	ScoreModel string `yaml:"score_model" mapstructure:"score_model"`
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PipelineConfig configures ingestion and scoring behavior.
type PipelineConfig struct {
	MinSignals         int     `yaml:"min_signals" mapstructure:"min_signals"`
	MaxSignals         int     `yaml:"max_signals" mapstructure:"max_signals"`
	RecencyDays        int     `yaml:"recency_days" mapstructure:"recency_days"`
	DedupePolicy       string  `yaml:"dedupe_policy" mapstructure:"dedupe_policy"`
	RebalanceRatio     float64 `yaml:"rebalance_ratio" mapstructure:"rebalance_ratio"`
	MaxQueries         int     `yaml:"max_queries" mapstructure:"max_queries"`
	UndercountRetries  int     `yaml:"undercount_retries" mapstructure:"undercount_retries"`
	ScoreBatchSize     int     `yaml:"score_batch_size" mapstructure:"score_batch_size"`
	ProfilePath        string  `yaml:"profile_path" mapstructure:"profile_path"`
	SkipStore          bool    `yaml:"skip_store" mapstructure:"skip_store"`
	ContextWindowBytes int     `yaml:"context_window_bytes" mapstructure:"context_window_bytes"`
}

// OutputsConfig configures where report artifacts are written.
type OutputsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one so AutomaticEnv can bind it during
	// Unmarshal; secrets default to empty.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("tavily.key", "")
	v.SetDefault("pipeline.profile_path", "")
	v.SetDefault("pipeline.skip_store", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "signals.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("outputs.dir", "outputs")
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.max_results", 5)
	v.SetDefault("tavily.max_concurrent", 4)
	v.SetDefault("tavily.requests_per_sec", 2.0)
	v.SetDefault("tavily.timeout_secs", 30)
	v.SetDefault("anthropic.scout_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.score_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("pipeline.min_signals", 20)
	v.SetDefault("pipeline.max_signals", 25)
	v.SetDefault("pipeline.recency_days", 90)
	v.SetDefault("pipeline.dedupe_policy", "prefer_new")
	v.SetDefault("pipeline.rebalance_ratio", 0.5)
	v.SetDefault("pipeline.max_queries", 50)
	v.SetDefault("pipeline.undercount_retries", 2)
	v.SetDefault("pipeline.score_batch_size", 10)
	v.SetDefault("pipeline.context_window_bytes", 240)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
