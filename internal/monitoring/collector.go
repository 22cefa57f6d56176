// Package monitoring watches processing sessions and tag generation for
// unhealthy trends and reports them to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/model"
)

// scanLimit bounds how many sessions and generation records one
// collection reads.
const scanLimit = 1000

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	// Session metrics (within lookback window).
	SessionsTotal     int     `json:"sessions_total"`
	SessionsCompleted int     `json:"sessions_completed"`
	SessionsFailed    int     `json:"sessions_failed"`
	SessionsActive    int     `json:"sessions_active"`
	SessionFailRate   float64 `json:"session_fail_rate"`

	// Activity metrics from completed sessions.
	RawActivities       int     `json:"raw_activities"`
	ProcessedActivities int     `json:"processed_activities"`
	ReviewFlagged       int     `json:"review_flagged"`
	ReviewRate          float64 `json:"review_rate"`
	TagsCreated         int     `json:"tags_created"`

	// Tag generation metrics.
	Regenerations      int     `json:"regenerations"`
	DriftRegenerations int     `json:"drift_regenerations"`
	LatestEventRatio   float64 `json:"latest_event_ratio"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the read side of the store the collector depends on.
type Source interface {
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)
	ListGenerationRecords(ctx context.Context, limit int) ([]model.TagGenerationRecord, error)
}

// Collector gathers metrics from the session and generation history.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	sessions, err := c.src.ListSessions(ctx, scanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list sessions")
	}
	for _, s := range sessions {
		if s.StartedAt.Before(cutoff) {
			continue
		}
		snap.SessionsTotal++
		switch s.Status {
		case model.SessionCompleted:
			snap.SessionsCompleted++
			snap.RawActivities += s.RawCount
			snap.ProcessedActivities += s.ProcessedCount
			snap.ReviewFlagged += s.ReviewFlagged
			snap.TagsCreated += s.TagsCreated
		case model.SessionFailed:
			snap.SessionsFailed++
		case model.SessionStarted:
			snap.SessionsActive++
		}
	}
	if finished := snap.SessionsCompleted + snap.SessionsFailed; finished > 0 {
		snap.SessionFailRate = float64(snap.SessionsFailed) / float64(finished)
	}
	if snap.ProcessedActivities > 0 {
		snap.ReviewRate = float64(snap.ReviewFlagged) / float64(snap.ProcessedActivities)
	}

	// Records come back newest first.
	recs, err := c.src.ListGenerationRecords(ctx, scanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list generation records")
	}
	for i, r := range recs {
		if i == 0 {
			snap.LatestEventRatio = r.TagEventRatio
		}
		if r.CreatedAt.Before(cutoff) || r.GenerationType == model.GenerationIncremental {
			continue
		}
		snap.Regenerations++
		if r.GenerationType == model.GenerationSystemWide {
			snap.DriftRegenerations++
		}
	}

	return snap, nil
}
