// Package model defines the domain types shared by the matcher, tagger,
// processor and store packages.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the wire format for activity dates.
const DateLayout = "2006-01-02"

// timeLayouts are the accepted wire formats for the optional start time.
var timeLayouts = []string{"15:04", "15:04:05"}

// RawActivity is one source-provided activity record before correlation.
// Records are immutable once ingested.
type RawActivity struct {
	ID              string            `json:"id" validate:"required"`
	Date            string            `json:"date" validate:"required,datetime=2006-01-02"`
	Time            *string           `json:"time,omitempty"`
	DurationMinutes int               `json:"duration_minutes" validate:"gte=0"`
	Details         string            `json:"details"`
	Source          string            `json:"source" validate:"required"`
	OriginLink      string            `json:"origin_link,omitempty"`
	Context         map[string]string `json:"context,omitempty"`
}

// Start parses the record's date and optional time. A record without a
// time starts at midnight of its date.
func (r RawActivity) Start() (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(r.Date), time.UTC)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "model: parse date %q of %s", r.Date, r.ID)
	}
	if r.Time == nil || strings.TrimSpace(*r.Time) == "" {
		return day, nil
	}
	raw := strings.TrimSpace(*r.Time)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return day.Add(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return time.Time{}, eris.Errorf("model: parse time %q of %s", raw, r.ID)
}

// End returns Start plus the record's duration. Negative durations are
// treated as zero.
func (r RawActivity) End() (time.Time, error) {
	start, err := r.Start()
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(max(r.DurationMinutes, 0)) * time.Minute), nil
}

// MatchGroup is a set of raw records judged to describe one real activity.
// It only lives for the duration of a run.
type MatchGroup struct {
	MemberIDs       []string `json:"member_ids"`
	MatchConfidence float64  `json:"match_confidence"`
	MergedText      string   `json:"merged_text"`
	MergedDuration  int      `json:"merged_duration"`
	Sources         []string `json:"sources"`
	Date            string   `json:"date"`
	Time            *string  `json:"time,omitempty"`

	// Singleton marks a group that never joined a cross-source pair. Its
	// MatchConfidence of 1.0 means "no corroboration needed or possible",
	// not a strong content match.
	Singleton bool `json:"singleton"`

	// CandidateCount and BestSimilarity describe the cross-source pairs a
	// singleton was scored against before assignment.
	CandidateCount int     `json:"candidate_count"`
	BestSimilarity float64 `json:"best_similarity"`

	// Context is the union of member contexts; earlier members win on
	// conflicting keys.
	Context map[string]string `json:"context,omitempty"`
}

// Size returns the number of raw records in the group.
func (g MatchGroup) Size() int {
	return len(g.MemberIDs)
}
