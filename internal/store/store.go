// Package store persists raw activities, processed activities, tags,
// sessions and tag generation records.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/model"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrRangeLocked is returned by AcquireSession when a started session
	// already covers part of the requested range.
	ErrRangeLocked = eris.New("store: date range locked by an active session")
)

// DefaultListLimit caps list queries that were given no limit.
const DefaultListLimit = 100

// TagUpdate replaces the tag set of one processed activity and records
// the re-evaluated review decision.
type TagUpdate struct {
	ActivityID   string
	Tags         []model.ActivityTag
	Composite    float64
	ReviewNeeded bool
	Reasons      []model.ReviewReason
}

// Store defines the persistence interface for the activity pipeline.
type Store interface {
	// Raw activities
	InsertRawActivities(ctx context.Context, acts []model.RawActivity) (int, error)
	ListRawActivities(ctx context.Context, r model.DateRange) ([]model.RawActivity, error)
	ProcessedRawIDs(ctx context.Context, r model.DateRange) (map[string]bool, error)

	// Processed activities. CommitGroup and ReplaceActivityTags are atomic
	// and keep tag usage counts in step with the links they create or
	// remove. Both return the number of tags they created.
	CommitGroup(ctx context.Context, p *model.ProcessedActivity) (int, error)
	ReplaceActivityTags(ctx context.Context, u TagUpdate) (int, error)
	ListProcessed(ctx context.Context, r model.DateRange) ([]model.ProcessedActivity, error)

	// Tags
	ListTags(ctx context.Context) ([]model.Tag, error)
	CountTags(ctx context.Context) (int, error)

	// Tag generation audit log
	InsertGenerationRecord(ctx context.Context, rec *model.TagGenerationRecord) error
	ListGenerationRecords(ctx context.Context, limit int) ([]model.TagGenerationRecord, error)

	// Sessions. AcquireSession fails any started session older than
	// staleAfter, then creates a started session for r unless one still
	// overlaps it, in which case it returns ErrRangeLocked.
	AcquireSession(ctx context.Context, r model.DateRange, staleAfter time.Duration) (*model.Session, error)
	CompleteSession(ctx context.Context, id string, res model.SessionResult) error
	FailSession(ctx context.Context, id string, msg string) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, limit int) ([]model.Session, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
