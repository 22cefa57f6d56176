package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
	"github.com/sells-group/activity-cli/internal/taxonomy/taxonomytest"
)

// testConfig mirrors the loaded defaults with the tagging service off.
func testConfig(dbPath string) *config.Config {
	c := &config.Config{}
	c.Store = config.StoreConfig{Driver: "sqlite", DatabaseURL: dbPath}
	c.Tagger.Concurrency = 2
	c.Tagger.RetryAttempts = 2
	c.Matcher = config.MatcherConfig{
		WindowDays:        1,
		SessionGapMinutes: 45,
		Similarity:        "tfidf",
		MinScore:          0.5,
		Weights:           config.MatcherWeights{Time: 0.4, Content: 0.3, Keyword: 0.2, Prior: 0.1},
	}
	c.Processor = config.ProcessorConfig{
		ReviewThreshold:        0.5,
		RelevanceFloor:         0.2,
		DriftCeiling:           1.5,
		RegenerationWindowDays: 90,
		PriorWindowDays:        30,
		PriorMinCount:          2,
		StaleSessionMinutes:    120,
	}
	c.Taxonomy.Path = "taxonomy.yaml"
	c.Server.Port = 8080
	return c
}

// newTestEnv builds an appEnv over a temporary SQLite database with drift
// detection off.
func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	c := testConfig(filepath.Join(t.TempDir(), "activity.db"))
	c.Processor.DriftCeiling = 0
	st, err := initStore(context.Background(), c.Store)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	tax := taxonomytest.Store(t)
	return &appEnv{Store: st, Taxonomy: tax, Processor: newProcessor(st, tax, nil, c)}
}

func strp(s string) *string { return &s }

func seedRaw(t *testing.T, st store.Store) {
	t.Helper()
	_, err := st.InsertRawActivities(context.Background(), []model.RawActivity{
		{ID: "cal-1", Date: "2024-03-04", Time: strp("14:00"), DurationMinutes: 60, Details: "Team standup", Source: "calendar"},
		{ID: "note-1", Date: "2024-03-04", Time: strp("14:05"), DurationMinutes: 10, Details: "standup notes", Source: "notes"},
		{ID: "git-1", Date: "2024-03-04", Time: strp("16:00"), DurationMinutes: 90, Details: "Refactor code review", Source: "github"},
	})
	require.NoError(t, err)
}
