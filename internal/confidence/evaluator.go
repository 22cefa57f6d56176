// Package confidence turns match and tag confidences into a review
// decision.
package confidence

import (
	"github.com/sells-group/activity-cli/internal/model"
)

// Defaults for Evaluator.
const (
	DefaultReviewThreshold = 0.5
	DefaultRelevanceFloor  = 0.2
)

// Evaluator decides whether a processed activity needs human review.
type Evaluator struct {
	// ReviewThreshold is the composite confidence below which review is
	// required.
	ReviewThreshold float64
	// RelevanceFloor is the content similarity below which a singleton
	// that had candidates counts as orphaned.
	RelevanceFloor float64
}

// New returns an Evaluator with the given thresholds.
func New(reviewThreshold, relevanceFloor float64) Evaluator {
	return Evaluator{ReviewThreshold: reviewThreshold, RelevanceFloor: relevanceFloor}
}

// Decision is the outcome of evaluating one activity.
type Decision struct {
	Composite    float64
	ReviewNeeded bool
	Reasons      []model.ReviewReason
}

// Evaluate combines the group's match confidence with its tags.
// Composite is min(match, mean tag confidence), or 0 without tags.
func (e Evaluator) Evaluate(g model.MatchGroup, tags []model.TagScore) Decision {
	var d Decision

	if len(tags) == 0 {
		d.Reasons = append(d.Reasons, model.ReviewNoTags)
	} else {
		sum := 0.0
		for _, t := range tags {
			sum += t.Confidence
		}
		d.Composite = min(g.MatchConfidence, sum/float64(len(tags)))
	}
	d.Composite = min(max(d.Composite, 0), 1)

	if d.Composite < e.ReviewThreshold && len(tags) > 0 {
		d.Reasons = append(d.Reasons, model.ReviewLowConfidence)
	}
	for _, t := range tags {
		if t.Fallback {
			d.Reasons = append(d.Reasons, model.ReviewFallbackTag)
			break
		}
	}
	if e.Orphaned(g) {
		d.Reasons = append(d.Reasons, model.ReviewOrphanedSingleton)
	}

	d.ReviewNeeded = len(d.Reasons) > 0
	return d
}

// Orphaned reports whether g is a singleton that had cross-source
// candidates but resembled none of them. Its 1.0 match confidence then
// means "nothing matched", not "certain".
func (e Evaluator) Orphaned(g model.MatchGroup) bool {
	return g.Singleton && g.CandidateCount > 0 && g.BestSimilarity < e.RelevanceFloor
}

// TaggingFailed is the decision for an activity whose tagging failed
// outright: no tags and a forced review.
func TaggingFailed() Decision {
	return Decision{
		ReviewNeeded: true,
		Reasons:      []model.ReviewReason{model.ReviewTaggingFailed, model.ReviewNoTags},
	}
}
