package textsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"basic", "Team standup", []string{"team", "standup"}},
		{"punctuation and stopwords", "standup notes: discussed the sprint plan", []string{"standup", "notes", "discussed", "sprint", "plan"}},
		{"accents folded", "Café réunion", []string{"cafe", "reunion"}},
		{"single chars dropped", "a b c 1:1 go", []string{"go"}},
		{"cyrillic kept", "Встреча команды", []string{"встреча", "команды"}},
		{"han kept", "团队站会 讨论冲刺计划", []string{"团队站会", "讨论冲刺计划"}},
		{"greek lowercased", "ΣΥΝΑΝΤΗΣΗ ομάδας", []string{"συναντηση", "ομαδας"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJaccard_NonLatinText(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"团队站会 讨论冲刺计划", "Встреча команды"} {
		assert.InDelta(t, 1.0, Jaccard{}.Score(s, s), 1e-9, s)
	}
	assert.Greater(t, Jaccard{}.Score("Встреча команды", "заметки встреча"), 0.0)
}

func TestContainsPhrase(t *testing.T) {
	t.Parallel()

	tokens := Tokenize("quarterly sprint planning review")
	assert.True(t, ContainsPhrase(tokens, []string{"sprint", "planning"}))
	assert.True(t, ContainsPhrase(tokens, []string{"review"}))
	assert.False(t, ContainsPhrase(tokens, []string{"planning", "sprint"}))
	assert.False(t, ContainsPhrase(tokens, nil))
	assert.False(t, ContainsPhrase([]string{"a"}, []string{"a", "b"}))
}

func TestLeadingSentence(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Team standup", LeadingSentence("Team standup\nstandup notes"))
	assert.Equal(t, "Fixed bug", LeadingSentence("  Fixed bug. Deployed later"))
	assert.Equal(t, "no terminator", LeadingSentence("no terminator"))
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	j := Jaccard{}
	assert.Equal(t, KindJaccard, j.Kind())
	assert.InDelta(t, 1.0, j.Score("team standup", "standup team"), 1e-9)
	assert.InDelta(t, 1.0/6.0, j.Score("Team standup", "standup notes: discussed sprint plan"), 1e-9)
	assert.Equal(t, 0.0, j.Score("", "anything"))
	assert.Equal(t, 0.0, j.Score("alpha", "beta"))
}

func TestOverlap(t *testing.T) {
	t.Parallel()

	a := map[string]bool{"team": true, "standup": true, "meetings": true}
	b := map[string]bool{"standup": true, "notes": true, "meetings": true, "sprint": true}
	assert.InDelta(t, 2.0/3.0, Overlap(a, b), 1e-9)
	assert.Equal(t, 0.0, Overlap(a, nil))
}

func TestTFIDF(t *testing.T) {
	t.Parallel()

	corpus := []string{"Team standup", "standup notes: discussed sprint plan", "gym workout"}
	sim := New(KindTFIDF, corpus)
	assert.Equal(t, KindTFIDF, sim.Kind())

	same := sim.Score("Team standup", "Team standup")
	assert.InDelta(t, 1.0, same, 1e-9)

	related := sim.Score("Team standup", "standup notes: discussed sprint plan")
	unrelated := sim.Score("Team standup", "gym workout")
	assert.Greater(t, related, 0.0)
	assert.Less(t, related, 1.0)
	assert.Equal(t, 0.0, unrelated)

	// Symmetric and repeatable.
	assert.Equal(t, related, sim.Score("standup notes: discussed sprint plan", "Team standup"))
	assert.Equal(t, related, sim.Score("Team standup", "standup notes: discussed sprint plan"))
}

func TestNew_FallsBackToJaccard(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindJaccard, New(KindTFIDF, nil).Kind())
	assert.Equal(t, KindJaccard, New(KindJaccard, []string{"x"}).Kind())
}
