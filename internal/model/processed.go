package model

import "time"

// ReviewReason explains why a processed activity was flagged for review.
type ReviewReason string

const (
	ReviewLowConfidence     ReviewReason = "low_confidence"
	ReviewFallbackTag       ReviewReason = "fallback_tag"
	ReviewNoTags            ReviewReason = "no_tags"
	ReviewOrphanedSingleton ReviewReason = "orphaned_singleton"
	ReviewTaggingFailed     ReviewReason = "tagging_failed"
)

// ProcessedActivity is the persisted, aggregated and tagged result of one
// MatchGroup.
type ProcessedActivity struct {
	ID                   string            `json:"id"`
	Date                 string            `json:"date"`
	Time                 *string           `json:"time,omitempty"`
	TotalDurationMinutes int               `json:"total_duration_minutes"`
	CombinedDetails      string            `json:"combined_details"`
	RawActivityIDs       []string          `json:"raw_activity_ids"`
	Sources              []string          `json:"sources"`
	MatchConfidence      float64           `json:"match_confidence"`
	Singleton            bool              `json:"singleton"`
	CandidateCount       int               `json:"candidate_count"`
	BestSimilarity       float64           `json:"best_similarity"`
	CompositeConfidence  float64           `json:"composite_confidence"`
	IsReviewNeeded       bool              `json:"is_review_needed"`
	ReviewReasons        []ReviewReason    `json:"review_reasons,omitempty"`
	Context              map[string]string `json:"context,omitempty"`
	Tags                 []ActivityTag     `json:"tags,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Group rebuilds the match-level view of a processed activity so it can
// be re-evaluated during regeneration.
func (p ProcessedActivity) Group() MatchGroup {
	return MatchGroup{
		MemberIDs:       p.RawActivityIDs,
		MatchConfidence: p.MatchConfidence,
		MergedText:      p.CombinedDetails,
		MergedDuration:  p.TotalDurationMinutes,
		Sources:         p.Sources,
		Date:            p.Date,
		Time:            p.Time,
		Singleton:       p.Singleton,
		CandidateCount:  p.CandidateCount,
		BestSimilarity:  p.BestSimilarity,
		Context:         p.Context,
	}
}

// Tag is a controlled-vocabulary (or fallback) label.
type Tag struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UsageCount int    `json:"usage_count"`
}

// ActivityTag links a processed activity to a tag with a confidence.
type ActivityTag struct {
	ProcessedActivityID string  `json:"processed_activity_id"`
	TagID               string  `json:"tag_id,omitempty"`
	TagName             string  `json:"tag_name"`
	Confidence          float64 `json:"confidence"`
	Fallback            bool    `json:"fallback,omitempty"`
	Rationale           string  `json:"rationale,omitempty"`
}

// TagOrigin records which scorer produced a tag.
type TagOrigin string

const (
	TagOriginRules   TagOrigin = "rules"
	TagOriginService TagOrigin = "service"
)

// TagScore is one ranked tag produced by the tag generator.
type TagScore struct {
	Tag        string    `json:"tag"`
	Confidence float64   `json:"confidence"`
	Fallback   bool      `json:"fallback,omitempty"`
	Rationale  string    `json:"rationale,omitempty"`
	Origin     TagOrigin `json:"origin"`
}

// GenerationType classifies a tag generation run.
type GenerationType string

const (
	GenerationIncremental GenerationType = "incremental"
	GenerationSystemWide  GenerationType = "system_wide"
	GenerationManual      GenerationType = "manual"
)

// TagGenerationRecord is an append-only audit row written whenever tags
// are generated in bulk.
type TagGenerationRecord struct {
	ID              string         `json:"id"`
	GenerationType  GenerationType `json:"generation_type"`
	TriggerReason   string         `json:"trigger_reason"`
	TotalActivities int            `json:"total_activities"`
	TagsCreated     int            `json:"tags_created"`
	TagsUpdated     int            `json:"tags_updated"`
	TagsBefore      int            `json:"tags_before"`
	TagsAfter       int            `json:"tags_after"`
	TagEventRatio   float64        `json:"tag_event_ratio"`
	TaxonomyVersion string         `json:"taxonomy_version"`
	CreatedAt       time.Time      `json:"created_at"`
}
