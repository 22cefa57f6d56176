package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/model"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// fakeSource serves canned history for the collector.
type fakeSource struct {
	sessions []model.Session
	records  []model.TagGenerationRecord
	err      error
}

func (f *fakeSource) ListSessions(context.Context, int) ([]model.Session, error) {
	return f.sessions, f.err
}

func (f *fakeSource) ListGenerationRecords(context.Context, int) ([]model.TagGenerationRecord, error) {
	return f.records, nil
}

func newTestCollector(src Source) *Collector {
	c := NewCollector(src)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	hourAgo := fixedNow.Add(-time.Hour)
	src := &fakeSource{
		sessions: []model.Session{
			{Status: model.SessionCompleted, RawCount: 20, ProcessedCount: 12, ReviewFlagged: 3, TagsCreated: 2, StartedAt: hourAgo},
			{Status: model.SessionCompleted, RawCount: 10, ProcessedCount: 8, ReviewFlagged: 1, StartedAt: hourAgo},
			{Status: model.SessionFailed, StartedAt: hourAgo},
			{Status: model.SessionStarted, StartedAt: fixedNow},
			// Outside the window.
			{Status: model.SessionFailed, StartedAt: fixedNow.Add(-48 * time.Hour)},
		},
		records: []model.TagGenerationRecord{
			{GenerationType: model.GenerationSystemWide, TagEventRatio: 1.9, CreatedAt: hourAgo},
			{GenerationType: model.GenerationIncremental, TagEventRatio: 1.2, CreatedAt: hourAgo},
			{GenerationType: model.GenerationManual, CreatedAt: hourAgo},
			{GenerationType: model.GenerationSystemWide, CreatedAt: fixedNow.Add(-72 * time.Hour)},
		},
	}

	snap, err := newTestCollector(src).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.SessionsTotal)
	assert.Equal(t, 2, snap.SessionsCompleted)
	assert.Equal(t, 1, snap.SessionsFailed)
	assert.Equal(t, 1, snap.SessionsActive)
	assert.InDelta(t, 1.0/3.0, snap.SessionFailRate, 0.001)
	assert.Equal(t, 30, snap.RawActivities)
	assert.Equal(t, 20, snap.ProcessedActivities)
	assert.Equal(t, 4, snap.ReviewFlagged)
	assert.InDelta(t, 0.2, snap.ReviewRate, 0.001)
	assert.Equal(t, 2, snap.TagsCreated)
	assert.Equal(t, 2, snap.Regenerations)
	assert.Equal(t, 1, snap.DriftRegenerations)
	assert.InDelta(t, 1.9, snap.LatestEventRatio, 0.001)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&fakeSource{}).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.SessionFailRate)
	assert.Zero(t, snap.ReviewRate)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollector_SourceError(t *testing.T) {
	_, err := newTestCollector(&fakeSource{err: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list sessions")
}
