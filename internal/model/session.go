package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// SessionStatus is the lifecycle state of a processing session.
type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is one processing invocation over a date range. A session in the
// started state doubles as the exclusive marker for its range.
type Session struct {
	ID             string        `json:"id"`
	RangeStart     string        `json:"range_start"`
	RangeEnd       string        `json:"range_end"`
	Status         SessionStatus `json:"status"`
	RawCount       int           `json:"raw_count"`
	ProcessedCount int           `json:"processed_count"`
	TagsCreated    int           `json:"tags_created"`
	ReviewFlagged  int           `json:"review_flagged"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
}

// SessionResult holds the counts recorded when a session completes.
type SessionResult struct {
	RawCount       int `json:"raw_count"`
	ProcessedCount int `json:"processed_count"`
	TagsCreated    int `json:"tags_created"`
	ReviewFlagged  int `json:"review_flagged"`
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseDateRange builds a range from two YYYY-MM-DD strings.
func ParseDateRange(from, to string) (DateRange, error) {
	start, err := time.ParseInLocation(DateLayout, from, time.UTC)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "model: parse range start %q", from)
	}
	end, err := time.ParseInLocation(DateLayout, to, time.UTC)
	if err != nil {
		return DateRange{}, eris.Wrapf(err, "model: parse range end %q", to)
	}
	r := DateRange{Start: start, End: end}
	return r, r.Validate()
}

// Validate rejects ranges whose end precedes their start.
func (r DateRange) Validate() error {
	if r.End.Before(r.Start) {
		return eris.Errorf("model: range end %s before start %s", r.To(), r.From())
	}
	return nil
}

// From returns the start day in wire format.
func (r DateRange) From() string { return r.Start.Format(DateLayout) }

// To returns the end day in wire format.
func (r DateRange) To() string { return r.End.Format(DateLayout) }

// Overlaps reports whether two inclusive ranges share at least one day.
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.End.Before(o.Start) && !o.End.Before(r.Start)
}

// Contains reports whether the given wire-format date lies in the range.
func (r DateRange) Contains(date string) bool {
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return false
	}
	return !d.Before(r.Start) && !d.After(r.End)
}

// Extend widens the range by the given number of days on both sides.
func (r DateRange) Extend(days int) DateRange {
	return DateRange{Start: r.Start.AddDate(0, 0, -days), End: r.End.AddDate(0, 0, days)}
}

// ProcessResult is the invocation contract returned to callers.
type ProcessResult struct {
	SessionID          string               `json:"session_id"`
	ProcessedCount     int                  `json:"processed_count"`
	RawCount           int                  `json:"raw_count"`
	SkippedCount       int                  `json:"skipped_count"`
	TagsCreated        int                  `json:"tags_created"`
	ReviewFlaggedCount int                  `json:"review_flagged_count"`
	TaggingFailures    int                  `json:"tagging_failures"`
	TagEventRatio      float64              `json:"tag_event_ratio"`
	Regeneration       *TagGenerationRecord `json:"regeneration,omitempty"`
}
