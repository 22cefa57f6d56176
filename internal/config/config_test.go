package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "activity.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Anthropic.Enabled)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 2, cfg.Tagger.RetryAttempts)
	assert.Equal(t, 4, cfg.Tagger.Concurrency)
	assert.Equal(t, 1, cfg.Matcher.WindowDays)
	assert.Equal(t, 45, cfg.Matcher.SessionGapMinutes)
	assert.Equal(t, "tfidf", cfg.Matcher.Similarity)
	assert.InDelta(t, 0.4, cfg.Matcher.Weights.Time, 0.001)
	assert.InDelta(t, 0.1, cfg.Matcher.Weights.Prior, 0.001)
	assert.InDelta(t, 0.5, cfg.Processor.ReviewThreshold, 0.001)
	assert.InDelta(t, 0.2, cfg.Processor.RelevanceFloor, 0.001)
	assert.InDelta(t, 1.5, cfg.Processor.DriftCeiling, 0.001)
	assert.Equal(t, 90, cfg.Processor.RegenerationWindowDays)
	assert.Equal(t, 120, cfg.Processor.StaleSessionMinutes)
	assert.Equal(t, "config/taxonomy/tags.yaml", cfg.Taxonomy.Path)
	assert.Equal(t, "config/taxonomy/synonyms.yaml", cfg.Taxonomy.SynonymsPath)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/activity
matcher:
  window_days: 2
  weights:
    prior: 0.3
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/activity", cfg.Store.DatabaseURL)
	assert.Equal(t, 2, cfg.Matcher.WindowDays)
	assert.InDelta(t, 0.3, cfg.Matcher.Weights.Prior, 0.001)
	assert.InDelta(t, 0.4, cfg.Matcher.Weights.Time, 0.001, "unset nested keys keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ACTIVITY_STORE_DRIVER", "sqlite")
	t.Setenv("ACTIVITY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ACTIVITY_SERVER_PORT", "3000")
	t.Setenv("ACTIVITY_ANTHROPIC_KEY", "sk-ant-test")
	t.Setenv("ACTIVITY_PROCESSOR_DRIFT_CEILING", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
	assert.InDelta(t, 2.5, cfg.Processor.DriftCeiling, 0.001)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "activity.db"
	cfg.Anthropic.Enabled = false
	cfg.Tagger.Concurrency = 4
	cfg.Tagger.RetryAttempts = 2
	cfg.Matcher.WindowDays = 1
	cfg.Matcher.Similarity = "tfidf"
	cfg.Matcher.MinScore = 0.5
	cfg.Matcher.Weights = MatcherWeights{Time: 0.4, Content: 0.3, Keyword: 0.2, Prior: 0.1}
	cfg.Processor.ReviewThreshold = 0.5
	cfg.Processor.RelevanceFloor = 0.2
	cfg.Processor.DriftCeiling = 1.5
	cfg.Taxonomy.Path = "taxonomy.yaml"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateProcess_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("process"))
	assert.NoError(t, cfg.Validate("regenerate"))
}

func TestValidateProcess_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	cfg.Taxonomy.Path = ""
	cfg.Anthropic.Enabled = true

	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "taxonomy.path is required")
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateImport_IgnoresTagging(t *testing.T) {
	cfg := validDefaults()
	cfg.Taxonomy.Path = ""
	cfg.Matcher.WindowDays = 0

	assert.NoError(t, cfg.Validate("import"))
	assert.NoError(t, cfg.Validate("read"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateWindowDaysBounds(t *testing.T) {
	cfg := validDefaults()

	for _, days := range []int{0, 4} {
		cfg.Matcher.WindowDays = days
		err := cfg.Validate("process")
		require.Error(t, err, "window_days=%d", days)
		assert.Contains(t, err.Error(), "matcher.window_days must be between 1 and 3")
	}

	cfg.Matcher.WindowDays = 3
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateThresholds(t *testing.T) {
	cfg := validDefaults()

	cfg.Processor.ReviewThreshold = 1.1
	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review_threshold")

	cfg.Processor.ReviewThreshold = 0.5
	cfg.Processor.RelevanceFloor = -0.1
	err = cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relevance_floor")

	cfg.Processor.RelevanceFloor = 0.2
	cfg.Matcher.MinScore = 2
	err = cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_score")
}

func TestValidateMatcherWeights(t *testing.T) {
	cfg := validDefaults()

	cfg.Matcher.Weights.Content = -0.1
	err := cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matcher.weights values must be >= 0")

	cfg.Matcher.Weights = MatcherWeights{}
	err = cfg.Validate("process")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not all be zero")

	cfg.Matcher.Weights = MatcherWeights{Content: 1}
	assert.NoError(t, cfg.Validate("process"))
}

func TestValidateSimilarity(t *testing.T) {
	cfg := validDefaults()
	cfg.Matcher.Similarity = "cosine"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matcher.similarity")
}
