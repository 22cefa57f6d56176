package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/activity-cli/internal/model"
)

func TestFormatSessionsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(2 * time.Minute)
	sessions := []model.Session{
		{
			ID:             "abc12345-6789-0000-0000-000000000000",
			RangeStart:     "2025-06-09",
			RangeEnd:       "2025-06-15",
			Status:         model.SessionCompleted,
			RawCount:       40,
			ProcessedCount: 31,
			ReviewFlagged:  4,
			StartedAt:      now,
			CompletedAt:    &done,
		},
		{
			ID:         "def12345-6789-0000-0000-000000000000",
			RangeStart: "2025-06-16",
			RangeEnd:   "2025-06-16",
			Status:     model.SessionStarted,
			StartedAt:  now,
		},
	}

	var buf bytes.Buffer
	formatSessionsList(&buf, sessions)

	out := buf.String()
	assert.Contains(t, out, "RANGE")
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "2025-06-09..2025-06-15")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2m0s")
	assert.Contains(t, out, "started")
	assert.NotContains(t, out, "2025-06-16..", "single-day ranges print one date")
}

func TestFormatProcessResult(t *testing.T) {
	res := &model.ProcessResult{
		SessionID:          "sess-1",
		RawCount:           12,
		SkippedCount:       2,
		ProcessedCount:     7,
		ReviewFlaggedCount: 3,
		TaggingFailures:    1,
		TagsCreated:        4,
		TagEventRatio:      1.71,
		Regeneration: &model.TagGenerationRecord{
			TotalActivities: 50,
			TagsUpdated:     9,
			TriggerReason:   "drift",
		},
	}

	var buf bytes.Buffer
	formatProcessResult(&buf, res)

	out := buf.String()
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "Tagging failures:")
	assert.Contains(t, out, "1.71")
	assert.Contains(t, out, "9 of 50 activities (drift)")
}

func TestFormatProcessResult_NoFailures(t *testing.T) {
	var buf bytes.Buffer
	formatProcessResult(&buf, &model.ProcessResult{SessionID: "s"})
	assert.NotContains(t, buf.String(), "Tagging failures")
	assert.NotContains(t, buf.String(), "Regenerated")
}

func TestFormatTagsAndHistory(t *testing.T) {
	var buf bytes.Buffer
	formatTagsList(&buf, []model.Tag{{Name: "meetings", UsageCount: 12}, {Name: "coding", UsageCount: 3}})
	assert.Contains(t, buf.String(), "meetings")
	assert.Contains(t, buf.String(), "12")

	buf.Reset()
	formatGenerationRecords(&buf, []model.TagGenerationRecord{{
		GenerationType:  model.GenerationSystemWide,
		TriggerReason:   "drift",
		TotalActivities: 20,
		TagsUpdated:     5,
		TagsBefore:      14,
		TagsAfter:       9,
		TagEventRatio:   1.8,
		CreatedAt:       time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "system_wide")
	assert.Contains(t, out, "14->9")
	assert.Contains(t, out, "1.80")
}

func TestFormatActivitiesList(t *testing.T) {
	acts := []model.ProcessedActivity{
		{
			Date:                 "2025-06-15",
			Time:                 strp("14:00"),
			TotalDurationMinutes: 60,
			CombinedDetails:      "Team standup | standup notes: discussed the sprint plan in detail",
			CompositeConfidence:  0.42,
			IsReviewNeeded:       true,
			ReviewReasons:        []model.ReviewReason{model.ReviewLowConfidence},
			Tags:                 []model.ActivityTag{{TagName: "meetings", Confidence: 0.42}},
		},
	}

	var buf bytes.Buffer
	formatActivitiesList(&buf, acts)

	out := buf.String()
	assert.Contains(t, out, "meetings(0.42)")
	assert.Contains(t, out, "low_confidence")
	assert.Contains(t, out, "...")
}

func TestReviewQueue(t *testing.T) {
	acts := []model.ProcessedActivity{{ID: "a", IsReviewNeeded: true}, {ID: "b"}, {ID: "c", IsReviewNeeded: true}}
	got := reviewQueue(acts)
	assert.Len(t, got, 2)
	assert.Equal(t, "c", got[1].ID)
	assert.Len(t, acts, 3)
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
