package processor

import (
	"context"
	"errors"
	"slices"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
	"github.com/sells-group/activity-cli/internal/tagger"
)

// Regenerate re-tags every processed activity in r under the current
// taxonomy snapshot and writes one generation record. It holds a session
// on r like Process does. Running it twice without data changes leaves
// the second run with nothing to update.
func (p *Processor) Regenerate(ctx context.Context, r model.DateRange, genType model.GenerationType, reason string) (*model.TagGenerationRecord, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sess, err := p.store.AcquireSession(ctx, r, p.cfg.StaleSessionAfter)
	if err != nil {
		return nil, eris.Wrapf(err, "processor: acquire session for %s..%s", r.From(), r.To())
	}
	log := zap.L().With(zap.String("session", sess.ID), zap.String("from", r.From()), zap.String("to", r.To()))

	acts, err := p.store.ListProcessed(ctx, r)
	if err != nil {
		err = eris.Wrap(err, "processor: load processed activities")
		p.fail(ctx, sess.ID, err, log)
		return nil, err
	}
	rec, err := p.regenerate(ctx, acts, genType, reason, activityRatio(acts))
	if err != nil {
		p.fail(ctx, sess.ID, err, log)
		return nil, err
	}

	if err := p.store.CompleteSession(context.WithoutCancel(ctx), sess.ID, model.SessionResult{
		ProcessedCount: rec.TagsUpdated,
		TagsCreated:    rec.TagsCreated,
	}); err != nil {
		return rec, eris.Wrap(err, "processor: complete session")
	}
	return rec, nil
}

// regenerateAfterBatch re-tags the regeneration window after a batch over
// r. The batch session covers r; the older days get a session of their
// own. When another session holds any of them only r is re-tagged.
func (p *Processor) regenerateAfterBatch(ctx context.Context, r model.DateRange, reason string, ratio float64, log *zap.Logger) (*model.TagGenerationRecord, error) {
	w := p.regenerationWindow(r)
	var hist *model.Session
	if w.Start.Before(r.Start) {
		older := model.DateRange{Start: w.Start, End: r.Start.AddDate(0, 0, -1)}
		sess, err := p.store.AcquireSession(ctx, older, p.cfg.StaleSessionAfter)
		switch {
		case errors.Is(err, store.ErrRangeLocked):
			log.Warn("processor: regeneration history locked, re-tagging batch range only",
				zap.String("history_from", older.From()), zap.String("history_to", older.To()))
			w = r
		case err != nil:
			return nil, eris.Wrapf(err, "processor: acquire session for %s..%s", older.From(), older.To())
		default:
			hist = sess
		}
	}

	rec, err := p.regenerateWindow(ctx, w, reason, ratio)
	if hist == nil {
		return rec, err
	}
	if err != nil {
		p.fail(ctx, hist.ID, err, log.With(zap.String("history_session", hist.ID)))
		return nil, err
	}
	if err := p.store.CompleteSession(context.WithoutCancel(ctx), hist.ID, model.SessionResult{}); err != nil {
		return rec, eris.Wrap(err, "processor: complete history session")
	}
	return rec, nil
}

func (p *Processor) regenerateWindow(ctx context.Context, w model.DateRange, reason string, ratio float64) (*model.TagGenerationRecord, error) {
	acts, err := p.store.ListProcessed(ctx, w)
	if err != nil {
		return nil, eris.Wrap(err, "processor: load regeneration window")
	}
	return p.regenerate(ctx, acts, model.GenerationSystemWide, reason, ratio)
}

func (p *Processor) regenerate(ctx context.Context, acts []model.ProcessedActivity, genType model.GenerationType, reason string, ratio float64) (*model.TagGenerationRecord, error) {
	before, err := p.store.CountTags(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "processor: count tags")
	}

	inputs := make([]tagger.Input, len(acts))
	for i, a := range acts {
		inputs[i] = tagger.InputFromGroup(a.Group())
	}
	results, err := p.newTagger().TagAll(ctx, inputs)
	if err != nil {
		return nil, err
	}

	rec := &model.TagGenerationRecord{
		GenerationType:  genType,
		TriggerReason:   reason,
		TotalActivities: len(acts),
		TagsBefore:      before,
		TagEventRatio:   ratio,
		TaxonomyVersion: p.gen.Taxonomy().Version(),
	}
	for i, a := range acts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tags := results[i]
		d := p.eval.Evaluate(a.Group(), tags)
		if unchanged(a, tags, d.Composite, d.ReviewNeeded, d.Reasons) {
			continue
		}
		created, err := p.store.ReplaceActivityTags(ctx, store.TagUpdate{
			ActivityID:   a.ID,
			Tags:         activityTags(tags),
			Composite:    d.Composite,
			ReviewNeeded: d.ReviewNeeded,
			Reasons:      d.Reasons,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "processor: replace tags of %s", a.ID)
		}
		rec.TagsCreated += created
		rec.TagsUpdated++
	}

	if rec.TagsAfter, err = p.store.CountTags(ctx); err != nil {
		return nil, eris.Wrap(err, "processor: count tags")
	}
	if err := p.store.InsertGenerationRecord(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "processor: record generation")
	}
	zap.L().Info("processor: tags regenerated",
		zap.String("type", string(genType)),
		zap.String("reason", reason),
		zap.Int("activities", rec.TotalActivities),
		zap.Int("updated", rec.TagsUpdated),
		zap.Int("tags_before", rec.TagsBefore),
		zap.Int("tags_after", rec.TagsAfter),
		zap.Float64("tag_event_ratio", ratio),
	)
	return rec, nil
}

// unchanged reports whether a's persisted tags and review state already
// match a fresh evaluation.
func unchanged(a model.ProcessedActivity, tags []model.TagScore, composite float64, review bool, reasons []model.ReviewReason) bool {
	if a.CompositeConfidence != composite || a.IsReviewNeeded != review || !slices.Equal(a.ReviewReasons, reasons) {
		return false
	}
	if len(a.Tags) != len(tags) {
		return false
	}
	for i, t := range tags {
		have := a.Tags[i]
		if have.TagName != t.Tag || have.Confidence != t.Confidence || have.Fallback != t.Fallback {
			return false
		}
	}
	return true
}
