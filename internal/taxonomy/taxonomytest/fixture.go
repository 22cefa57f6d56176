// Package taxonomytest provides a small taxonomy snapshot for tests.
package taxonomytest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/taxonomy"
)

// Nodes is the fixture vocabulary.
func Nodes() []taxonomy.Node {
	return []taxonomy.Node{
		{Name: "work", Keywords: []string{"work"}},
		{Name: "meetings", Parent: "work", Keywords: []string{"meeting", "standup", "sync", "call"}},
		{Name: "planning", Parent: "work", Keywords: []string{"planning", "roadmap", "sprint plan"}},
		{Name: "coding", Parent: "work", Keywords: []string{"code", "coding", "programming", "debugging", "pull request"}},
		{Name: "writing", Keywords: []string{"writing", "draft", "blog post"}},
		{Name: "exercise", Keywords: []string{"gym", "workout", "run"}},
		{Name: "learning", Keywords: []string{"course", "reading", "study"}},
	}
}

// Synonyms is the fixture synonym map.
func Synonyms() taxonomy.SynonymMap {
	return taxonomy.SynonymMap{
		"meetings": {"huddle", "scrum", "standup", "one on one"},
		"coding":   {"refactor", "bugfix"},
		"exercise": {"jog", "yoga"},
	}
}

// Calibration is the fixture calibration.
func Calibration() taxonomy.Calibration {
	return taxonomy.Calibration{
		Threshold: 0.3,
		MaxTags:   3,
		Weights: taxonomy.Weights{
			Synonym:    0.4,
			Taxonomy:   0.2,
			Duration:   0.2,
			TitleBonus: 0.2,
		},
		Downweight: map[string]float64{"work": 0.5},
		SourceBias: map[string]map[string]float64{
			"calendar": {"meetings": 0.1},
		},
		DurationRanges: map[string]taxonomy.DurationRange{
			"meetings": {Min: 10, Max: 90},
			"coding":   {Min: 30, Max: 240},
			"exercise": {Min: 20, Max: 120},
		},
	}
}

// Store builds the fixture snapshot.
func Store(t testing.TB) *taxonomy.Store {
	t.Helper()
	st, err := taxonomy.New(Nodes(), Synonyms(), Calibration())
	require.NoError(t, err)
	return st
}

// StoreWith builds the fixture vocabulary with a custom calibration.
func StoreWith(t testing.TB, cal taxonomy.Calibration) *taxonomy.Store {
	t.Helper()
	st, err := taxonomy.New(Nodes(), Synonyms(), cal)
	require.NoError(t, err)
	return st
}
