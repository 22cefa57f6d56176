package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/model"
)

func TestTagEventRatio(t *testing.T) {
	assert.Equal(t, 0.0, TagEventRatio(5, 0))
	assert.Equal(t, 0.5, TagEventRatio(2, 4))
	assert.Equal(t, 2.0, TagEventRatio(6, 3))
}

func TestDrifted(t *testing.T) {
	assert.True(t, Drifted(2, 1.5))
	assert.False(t, Drifted(1.5, 1.5), "the ceiling itself is not drift")
	assert.False(t, Drifted(10, 0), "zero ceiling disables detection")
}

func TestActivityRatio(t *testing.T) {
	acts := []model.ProcessedActivity{
		{Tags: []model.ActivityTag{{TagName: "meetings"}, {TagName: "planning"}}},
		{Tags: []model.ActivityTag{{TagName: "meetings"}}},
		{},
		{Tags: []model.ActivityTag{{TagName: "coding"}}},
	}
	assert.Equal(t, 0.75, activityRatio(acts))
}

func TestRegenerationWindow(t *testing.T) {
	p := &Processor{cfg: Config{RegenerationWindowDays: 7}}
	r, err := model.ParseDateRange("2024-03-10", "2024-03-10")
	require.NoError(t, err)
	w := p.regenerationWindow(r)
	assert.Equal(t, "2024-03-04", w.From())
	assert.Equal(t, "2024-03-10", w.To())

	long, _ := model.ParseDateRange("2024-01-01", "2024-03-10")
	w = p.regenerationWindow(long)
	assert.Equal(t, "2024-01-01", w.From(), "the processed range is always covered")

	p.cfg.RegenerationWindowDays = 0
	w = p.regenerationWindow(r)
	assert.Equal(t, r, w)
}

func TestUnchanged(t *testing.T) {
	a := model.ProcessedActivity{
		CompositeConfidence: 0.7,
		Tags:                []model.ActivityTag{{TagName: "meetings", Confidence: 0.7}},
	}
	tags := []model.TagScore{{Tag: "meetings", Confidence: 0.7}}
	assert.True(t, unchanged(a, tags, 0.7, false, nil))
	assert.False(t, unchanged(a, tags, 0.7, true, []model.ReviewReason{model.ReviewLowConfidence}))
	assert.False(t, unchanged(a, []model.TagScore{{Tag: "planning", Confidence: 0.7}}, 0.7, false, nil))
	assert.False(t, unchanged(a, nil, 0, true, []model.ReviewReason{model.ReviewNoTags}))
}
