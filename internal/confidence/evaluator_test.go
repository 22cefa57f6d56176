package confidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/activity-cli/internal/model"
)

func TestEvaluate(t *testing.T) {
	e := New(DefaultReviewThreshold, DefaultRelevanceFloor)
	pair := model.MatchGroup{MemberIDs: []string{"a", "b"}, MatchConfidence: 0.8}

	tests := []struct {
		name      string
		group     model.MatchGroup
		tags      []model.TagScore
		composite float64
		review    bool
		reasons   []model.ReviewReason
	}{
		{
			name:      "confident",
			group:     pair,
			tags:      []model.TagScore{{Tag: "meetings", Confidence: 0.9}, {Tag: "planning", Confidence: 0.7}},
			composite: 0.8,
		},
		{
			name:      "tags drag composite down",
			group:     pair,
			tags:      []model.TagScore{{Tag: "meetings", Confidence: 0.4}, {Tag: "planning", Confidence: 0.3}},
			composite: 0.35,
			review:    true,
			reasons:   []model.ReviewReason{model.ReviewLowConfidence},
		},
		{
			name:    "no tags",
			group:   pair,
			review:  true,
			reasons: []model.ReviewReason{model.ReviewNoTags},
		},
		{
			name:      "fallback tag",
			group:     pair,
			tags:      []model.TagScore{{Tag: "team-rituals", Confidence: 0.9, Fallback: true}},
			composite: 0.8,
			review:    true,
			reasons:   []model.ReviewReason{model.ReviewFallbackTag},
		},
		{
			name:      "lonely singleton is trusted",
			group:     model.MatchGroup{MemberIDs: []string{"a"}, MatchConfidence: 1, Singleton: true},
			tags:      []model.TagScore{{Tag: "exercise", Confidence: 0.7}},
			composite: 0.7,
		},
		{
			name: "orphaned singleton",
			group: model.MatchGroup{
				MemberIDs: []string{"a"}, MatchConfidence: 1, Singleton: true,
				CandidateCount: 3, BestSimilarity: 0.05,
			},
			tags:      []model.TagScore{{Tag: "exercise", Confidence: 0.7}},
			composite: 0.7,
			review:    true,
			reasons:   []model.ReviewReason{model.ReviewOrphanedSingleton},
		},
		{
			name: "singleton with a close candidate",
			group: model.MatchGroup{
				MemberIDs: []string{"a"}, MatchConfidence: 1, Singleton: true,
				CandidateCount: 1, BestSimilarity: 0.6,
			},
			tags:      []model.TagScore{{Tag: "exercise", Confidence: 0.7}},
			composite: 0.7,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(tt.group, tt.tags)
			assert.InDelta(t, tt.composite, d.Composite, 1e-9)
			assert.Equal(t, tt.review, d.ReviewNeeded)
			assert.Equal(t, tt.reasons, d.Reasons)
		})
	}
}

func TestEvaluate_CompositeBounded(t *testing.T) {
	e := New(0.5, 0.2)
	d := e.Evaluate(model.MatchGroup{MatchConfidence: 1.4}, []model.TagScore{{Confidence: 1.2}})
	assert.Equal(t, 1.0, d.Composite)
}

func TestTaggingFailed(t *testing.T) {
	d := TaggingFailed()
	assert.True(t, d.ReviewNeeded)
	assert.Equal(t, 0.0, d.Composite)
	assert.Contains(t, d.Reasons, model.ReviewTaggingFailed)
}
