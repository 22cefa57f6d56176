package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Tagger     TaggerConfig     `yaml:"tagger" mapstructure:"tagger"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Processor  ProcessorConfig  `yaml:"processor" mapstructure:"processor"`
	Taxonomy   TaxonomyConfig   `yaml:"taxonomy" mapstructure:"taxonomy"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. DatabaseURL is a file path
// for sqlite and a connection string for postgres.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig configures the tag suggestion service.
type AnthropicConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// TaggerConfig bounds calls to the tag suggestion service.
type TaggerConfig struct {
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs   int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// MatcherConfig configures cross-source matching.
type MatcherConfig struct {
	WindowDays        int            `yaml:"window_days" mapstructure:"window_days"`
	SessionGapMinutes int            `yaml:"session_gap_minutes" mapstructure:"session_gap_minutes"`
	Similarity        string         `yaml:"similarity" mapstructure:"similarity"`
	MinScore          float64        `yaml:"min_score" mapstructure:"min_score"`
	Weights           MatcherWeights `yaml:"weights" mapstructure:"weights"`
}

// MatcherWeights are the pair score component multipliers.
type MatcherWeights struct {
	Time    float64 `yaml:"time" mapstructure:"time"`
	Content float64 `yaml:"content" mapstructure:"content"`
	Keyword float64 `yaml:"keyword" mapstructure:"keyword"`
	Prior   float64 `yaml:"prior" mapstructure:"prior"`
}

// ProcessorConfig tunes review flagging and drift handling.
type ProcessorConfig struct {
	ReviewThreshold        float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
	RelevanceFloor         float64 `yaml:"relevance_floor" mapstructure:"relevance_floor"`
	DriftCeiling           float64 `yaml:"drift_ceiling" mapstructure:"drift_ceiling"`
	RegenerationWindowDays int     `yaml:"regeneration_window_days" mapstructure:"regeneration_window_days"`
	PriorWindowDays        int     `yaml:"prior_window_days" mapstructure:"prior_window_days"`
	PriorMinCount          int     `yaml:"prior_min_count" mapstructure:"prior_min_count"`
	StaleSessionMinutes    int     `yaml:"stale_session_minutes" mapstructure:"stale_session_minutes"`
}

// TaxonomyConfig locates the taxonomy documents.
type TaxonomyConfig struct {
	Path            string `yaml:"path" mapstructure:"path"`
	SynonymsPath    string `yaml:"synonyms_path" mapstructure:"synonyms_path"`
	CalibrationPath string `yaml:"calibration_path" mapstructure:"calibration_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures session health alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ReviewRateThreshold  float64 `yaml:"review_rate_threshold" mapstructure:"review_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("ACTIVITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "activity.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.enabled", true)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("tagger.timeout_secs", 15)
	v.SetDefault("tagger.retry_attempts", 2)
	v.SetDefault("tagger.retry_backoff_ms", 250)
	v.SetDefault("tagger.rate_per_sec", 2.0)
	v.SetDefault("tagger.concurrency", 4)
	v.SetDefault("tagger.failure_threshold", 5)
	v.SetDefault("tagger.cooldown_secs", 60)
	v.SetDefault("matcher.window_days", 1)
	v.SetDefault("matcher.session_gap_minutes", 45)
	v.SetDefault("matcher.similarity", "tfidf")
	v.SetDefault("matcher.min_score", 0.5)
	v.SetDefault("matcher.weights.time", 0.4)
	v.SetDefault("matcher.weights.content", 0.3)
	v.SetDefault("matcher.weights.keyword", 0.2)
	v.SetDefault("matcher.weights.prior", 0.1)
	v.SetDefault("processor.review_threshold", 0.5)
	v.SetDefault("processor.relevance_floor", 0.2)
	v.SetDefault("processor.drift_ceiling", 1.5)
	v.SetDefault("processor.regeneration_window_days", 90)
	v.SetDefault("processor.prior_window_days", 30)
	v.SetDefault("processor.prior_min_count", 2)
	v.SetDefault("processor.stale_session_minutes", 120)
	v.SetDefault("taxonomy.path", "config/taxonomy/tags.yaml")
	v.SetDefault("taxonomy.synonyms_path", "config/taxonomy/synonyms.yaml")
	v.SetDefault("taxonomy.calibration_path", "config/taxonomy/calibration.yaml")
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.review_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

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

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "process", "regenerate", "serve":
		errs = append(errs, c.validateStore()...)
		errs = append(errs, c.validateTagging()...)
		errs = append(errs, c.validateMatcher()...)
		errs = append(errs, c.validateProcessor()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "import", "read":
		errs = append(errs, c.validateStore()...)
	case "taxonomy":
		if c.Taxonomy.Path == "" {
			errs = append(errs, "taxonomy.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

func (c *Config) validateTagging() []string {
	var errs []string
	if c.Taxonomy.Path == "" {
		errs = append(errs, "taxonomy.path is required")
	}
	if c.Anthropic.Enabled && c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required when anthropic.enabled is set")
	}
	if c.Tagger.Concurrency < 1 || c.Tagger.Concurrency > 32 {
		errs = append(errs, "tagger.concurrency must be between 1 and 32")
	}
	if c.Tagger.RetryAttempts < 1 {
		errs = append(errs, "tagger.retry_attempts must be >= 1")
	}
	if c.Tagger.RatePerSec < 0 {
		errs = append(errs, "tagger.rate_per_sec must be >= 0")
	}
	return errs
}

func (c *Config) validateMatcher() []string {
	var errs []string
	m := c.Matcher
	if m.WindowDays < 1 || m.WindowDays > 3 {
		errs = append(errs, "matcher.window_days must be between 1 and 3")
	}
	if m.SessionGapMinutes < 0 {
		errs = append(errs, "matcher.session_gap_minutes must be >= 0")
	}
	switch m.Similarity {
	case "tfidf", "jaccard":
	default:
		errs = append(errs, fmt.Sprintf("matcher.similarity must be tfidf or jaccard, got %q", m.Similarity))
	}
	if !unit(m.MinScore) {
		errs = append(errs, "matcher.min_score must be between 0 and 1")
	}
	w := m.Weights
	if w.Time < 0 || w.Content < 0 || w.Keyword < 0 || w.Prior < 0 {
		errs = append(errs, "matcher.weights values must be >= 0")
	} else if w.Time+w.Content+w.Keyword+w.Prior == 0 {
		errs = append(errs, "matcher.weights must not all be zero")
	}
	return errs
}

func (c *Config) validateProcessor() []string {
	var errs []string
	p := c.Processor
	if !unit(p.ReviewThreshold) {
		errs = append(errs, "processor.review_threshold must be between 0 and 1")
	}
	if !unit(p.RelevanceFloor) {
		errs = append(errs, "processor.relevance_floor must be between 0 and 1")
	}
	if p.DriftCeiling < 0 {
		errs = append(errs, "processor.drift_ceiling must be >= 0")
	}
	if p.RegenerationWindowDays < 0 || p.PriorWindowDays < 0 {
		errs = append(errs, "processor window days must be >= 0")
	}
	return errs
}

func unit(v float64) bool { return v >= 0 && v <= 1 }

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
