package processor

import (
	"github.com/sells-group/activity-cli/internal/model"
)

// TagEventRatio is unique tags used divided by processed activities. It
// is zero when nothing was processed.
func TagEventRatio(uniqueTags, processed int) float64 {
	if processed <= 0 {
		return 0
	}
	return float64(uniqueTags) / float64(processed)
}

// Drifted reports whether ratio exceeds ceiling. A non-positive ceiling
// disables drift detection.
func Drifted(ratio, ceiling float64) bool {
	return ceiling > 0 && ratio > ceiling
}

// tagSet collects distinct tag names.
type tagSet map[string]struct{}

func (s tagSet) addScores(tags []model.TagScore) {
	for _, t := range tags {
		s[t.Tag] = struct{}{}
	}
}

func (s tagSet) addLinks(tags []model.ActivityTag) {
	for _, t := range tags {
		s[t.TagName] = struct{}{}
	}
}

// activityRatio is the tag-event ratio of already persisted activities.
func activityRatio(acts []model.ProcessedActivity) float64 {
	used := make(tagSet)
	for _, a := range acts {
		used.addLinks(a.Tags)
	}
	return TagEventRatio(len(used), len(acts))
}
