package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/textsim"
)

func TestMatcherConfig(t *testing.T) {
	c := testConfig("x.db")
	c.Matcher.Similarity = "jaccard"
	c.Matcher.SessionGapMinutes = 30

	m := matcherConfig(c)
	assert.Equal(t, 1, m.WindowDays)
	assert.Equal(t, 30*time.Minute, m.SessionGap)
	assert.Equal(t, textsim.KindJaccard, m.Similarity)
	assert.InDelta(t, 0.3, m.Weights.Content, 0.001)
}

func TestServiceConfig(t *testing.T) {
	c := testConfig("x.db")
	c.Anthropic.Model = "claude-test"
	c.Anthropic.MaxTokens = 256
	c.Tagger.TimeoutSecs = 5
	c.Tagger.RetryBackoffMs = 100
	c.Tagger.FailureThreshold = 3
	c.Tagger.CooldownSecs = 10

	sc := serviceConfig(c)
	assert.Equal(t, "claude-test", sc.Model)
	assert.Equal(t, int64(256), sc.MaxTokens)
	assert.Equal(t, 5*time.Second, sc.Timeout)
	assert.Equal(t, 2, sc.Retry.Attempts)
	assert.Equal(t, 100*time.Millisecond, sc.Retry.Initial)
	assert.Equal(t, 3, sc.Breaker.Threshold)
	assert.Equal(t, 10*time.Second, sc.Breaker.Cooldown)
}

func TestProcessorConfig(t *testing.T) {
	pc := processorConfig(testConfig("x.db"))
	assert.InDelta(t, 1.5, pc.DriftCeiling, 0.001)
	assert.Equal(t, 2*time.Hour, pc.StaleSessionAfter)
	assert.Equal(t, 90, pc.RegenerationWindowDays)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	_, err := initStore(context.Background(), config.StoreConfig{Driver: "mysql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestLoadTaxonomy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`tags:
  - name: work
    keywords: [work]
  - name: meetings
    parent: work
    keywords: [meeting, standup]
`), 0o644))

	tax, err := loadTaxonomy(config.TaxonomyConfig{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, tax.Len())
	assert.True(t, tax.Has("meetings"))

	_, err = loadTaxonomy(config.TaxonomyConfig{Path: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadTaxonomy_ShippedDocuments(t *testing.T) {
	dir := filepath.Join("..", "config", "taxonomy")
	tax, err := loadTaxonomy(config.TaxonomyConfig{
		Path:            filepath.Join(dir, "tags.yaml"),
		SynonymsPath:    filepath.Join(dir, "synonyms.yaml"),
		CalibrationPath: filepath.Join(dir, "calibration.yaml"),
	})
	require.NoError(t, err)
	assert.True(t, tax.Has("meetings"))
	assert.NotEmpty(t, tax.Version())
}
