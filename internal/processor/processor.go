// Package processor runs the batch pipeline: match raw activities, tag
// and evaluate each group, persist it, then watch the tag vocabulary for
// drift and re-tag history when it has proliferated.
package processor

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/activity-cli/internal/confidence"
	"github.com/sells-group/activity-cli/internal/matcher"
	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/store"
	"github.com/sells-group/activity-cli/internal/tagger"
)

// ErrRangeLocked is returned when another session holds an overlapping
// date range.
var ErrRangeLocked = store.ErrRangeLocked

// Tagger tags activities for one batch. *tagger.Run implements it.
type Tagger interface {
	Tag(ctx context.Context, in tagger.Input) ([]model.TagScore, error)
	TagAll(ctx context.Context, inputs []tagger.Input) ([][]model.TagScore, error)
}

// Config tunes the processor.
type Config struct {
	ReviewThreshold float64
	RelevanceFloor  float64
	// DriftCeiling is the tag-event ratio above which history is re-tagged.
	// Zero disables drift detection.
	DriftCeiling float64
	// RegenerationWindowDays is how far back a system-wide regeneration
	// reaches, counted from the end of the processed range.
	RegenerationWindowDays int
	// PriorWindowDays and PriorMinCount control the vocabulary built from
	// recent history for the matcher's prior bonus.
	PriorWindowDays int
	PriorMinCount   int
	// StaleSessionAfter expires started sessions left behind by a crash.
	StaleSessionAfter time.Duration
}

// DefaultConfig returns the standard processor tuning.
func DefaultConfig() Config {
	return Config{
		ReviewThreshold:        confidence.DefaultReviewThreshold,
		RelevanceFloor:         confidence.DefaultRelevanceFloor,
		DriftCeiling:           1.5,
		RegenerationWindowDays: 90,
		PriorWindowDays:        30,
		PriorMinCount:          2,
		StaleSessionAfter:      2 * time.Hour,
	}
}

// Options select per-invocation behavior.
type Options struct {
	// Regenerate forces a system-wide regeneration after the batch.
	Regenerate bool
	// Reason is recorded on the generation record of a forced run.
	Reason string
}

// Processor orchestrates matching, tagging, evaluation and persistence.
type Processor struct {
	store     store.Store
	matcher   *matcher.Matcher
	gen       *tagger.Generator
	eval      confidence.Evaluator
	cfg       Config
	newTagger func() Tagger
}

// Option configures a Processor.
type Option func(*Processor)

// WithTaggerFactory replaces the per-batch tagger. The default is
// gen.Begin.
func WithTaggerFactory(f func() Tagger) Option {
	return func(p *Processor) { p.newTagger = f }
}

// New creates a Processor.
func New(st store.Store, m *matcher.Matcher, gen *tagger.Generator, cfg Config, opts ...Option) *Processor {
	p := &Processor{
		store:   st,
		matcher: m,
		gen:     gen,
		eval:    confidence.New(cfg.ReviewThreshold, cfg.RelevanceFloor),
		cfg:     cfg,
	}
	p.newTagger = func() Tagger { return gen.Begin() }
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs one batch over r. It holds a session on r for the whole
// run; an overlapping active session makes it return ErrRangeLocked
// without doing any work.
func (p *Processor) Process(ctx context.Context, r model.DateRange, opts Options) (*model.ProcessResult, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sess, err := p.store.AcquireSession(ctx, r, p.cfg.StaleSessionAfter)
	if err != nil {
		return nil, eris.Wrapf(err, "processor: acquire session for %s..%s", r.From(), r.To())
	}

	log := zap.L().With(zap.String("session", sess.ID), zap.String("from", r.From()), zap.String("to", r.To()))
	log.Info("processor: session started")

	res := &model.ProcessResult{SessionID: sess.ID}
	if err := p.run(ctx, r, opts, res, log); err != nil {
		p.fail(ctx, sess.ID, err, log)
		return res, err
	}

	if err := p.store.CompleteSession(context.WithoutCancel(ctx), sess.ID, model.SessionResult{
		RawCount:       res.RawCount,
		ProcessedCount: res.ProcessedCount,
		TagsCreated:    res.TagsCreated,
		ReviewFlagged:  res.ReviewFlaggedCount,
	}); err != nil {
		return res, eris.Wrap(err, "processor: complete session")
	}
	log.Info("processor: session completed",
		zap.Int("raw", res.RawCount),
		zap.Int("processed", res.ProcessedCount),
		zap.Int("skipped", res.SkippedCount),
		zap.Int("tags_created", res.TagsCreated),
		zap.Int("review_flagged", res.ReviewFlaggedCount),
		zap.Int("tagging_failures", res.TaggingFailures),
		zap.Float64("tag_event_ratio", res.TagEventRatio),
	)
	return res, nil
}

func (p *Processor) fail(ctx context.Context, sessionID string, cause error, log *zap.Logger) {
	msg := cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = "cancelled: " + msg
	}
	if err := p.store.FailSession(context.WithoutCancel(ctx), sessionID, msg); err != nil {
		log.Error("processor: mark session failed", zap.Error(err))
	}
	log.Warn("processor: session failed", zap.Error(cause))
}

func (p *Processor) run(ctx context.Context, r model.DateRange, opts Options, res *model.ProcessResult, log *zap.Logger) error {
	tagsBefore, err := p.store.CountTags(ctx)
	if err != nil {
		return eris.Wrap(err, "processor: count tags")
	}

	raws, err := p.store.ListRawActivities(ctx, r)
	if err != nil {
		return eris.Wrap(err, "processor: load raw activities")
	}
	res.RawCount = len(raws)

	done, err := p.store.ProcessedRawIDs(ctx, r)
	if err != nil {
		return eris.Wrap(err, "processor: load processed raw ids")
	}
	pending := raws[:0:0]
	for _, a := range raws {
		if done[a.ID] {
			res.SkippedCount++
			continue
		}
		pending = append(pending, a)
	}

	prior, err := p.priorVocabulary(ctx, r)
	if err != nil {
		return err
	}
	groups, err := p.matcher.Match(ctx, pending, prior)
	if err != nil {
		return eris.Wrap(err, "processor: match")
	}

	tg := p.newTagger()
	used := make(tagSet)
	for _, g := range groups {
		tags, decision, err := p.tagGroup(ctx, tg, g, log)
		if err != nil {
			return err
		}
		// Groups already committed stay; nothing new is persisted once
		// cancelled.
		if err := ctx.Err(); err != nil {
			return err
		}
		if slices.Contains(decision.Reasons, model.ReviewTaggingFailed) {
			res.TaggingFailures++
		}

		pa := newProcessed(g, tags, decision)
		created, err := p.store.CommitGroup(ctx, pa)
		if err != nil {
			return eris.Wrapf(err, "processor: persist group %v", g.MemberIDs)
		}
		res.ProcessedCount++
		res.TagsCreated += created
		if decision.ReviewNeeded {
			res.ReviewFlaggedCount++
		}
		used.addScores(tags)
	}
	if f, ok := tg.(interface{ Fallbacks() int }); ok && f.Fallbacks() > 0 {
		log.Info("processor: tagging service fell back to rules", zap.Int("activities", f.Fallbacks()))
	}

	res.TagEventRatio = TagEventRatio(len(used), res.ProcessedCount)
	if opts.Regenerate || Drifted(res.TagEventRatio, p.cfg.DriftCeiling) {
		reason := opts.Reason
		if reason == "" {
			reason = "drift"
			if opts.Regenerate {
				reason = "requested"
			}
		}
		rec, err := p.regenerateAfterBatch(ctx, r, reason, res.TagEventRatio, log)
		if err != nil {
			return err
		}
		res.Regeneration = rec
		res.TagsCreated += rec.TagsCreated
		return nil
	}

	if res.ProcessedCount == 0 {
		return nil
	}
	tagsAfter, err := p.store.CountTags(ctx)
	if err != nil {
		return eris.Wrap(err, "processor: count tags")
	}
	return eris.Wrap(p.store.InsertGenerationRecord(ctx, &model.TagGenerationRecord{
		GenerationType:  model.GenerationIncremental,
		TriggerReason:   "batch " + r.From() + ".." + r.To(),
		TotalActivities: res.ProcessedCount,
		TagsCreated:     res.TagsCreated,
		TagsBefore:      tagsBefore,
		TagsAfter:       tagsAfter,
		TagEventRatio:   res.TagEventRatio,
		TaxonomyVersion: p.gen.Taxonomy().Version(),
	}), "processor: record incremental generation")
}

// tagGroup tags and evaluates one group. A tagging failure is isolated to
// the group: it gets no tags and a forced review. Only cancellation is
// returned as an error.
func (p *Processor) tagGroup(ctx context.Context, tg Tagger, g model.MatchGroup, log *zap.Logger) ([]model.TagScore, confidence.Decision, error) {
	tags, err := tg.Tag(ctx, tagger.InputFromGroup(g))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, confidence.Decision{}, ctxErr
		}
		log.Warn("processor: tagging failed, flagging for review",
			zap.Strings("members", g.MemberIDs), zap.Error(err))
		return nil, confidence.TaggingFailed(), nil
	}
	return tags, p.eval.Evaluate(g, tags), nil
}

// priorVocabulary collects recurring terms from the days before r.
func (p *Processor) priorVocabulary(ctx context.Context, r model.DateRange) (matcher.Vocabulary, error) {
	if p.cfg.PriorWindowDays <= 0 {
		return nil, nil
	}
	history := model.DateRange{
		Start: r.Start.AddDate(0, 0, -p.cfg.PriorWindowDays),
		End:   r.Start.AddDate(0, 0, -1),
	}
	acts, err := p.store.ListProcessed(ctx, history)
	if err != nil {
		return nil, eris.Wrap(err, "processor: load history")
	}
	texts := make([]string, len(acts))
	for i, a := range acts {
		texts[i] = a.CombinedDetails
	}
	return matcher.BuildVocabulary(texts, max(p.cfg.PriorMinCount, 1)), nil
}

// regenerationWindow reaches RegenerationWindowDays back from the end of
// r and always covers r itself.
func (p *Processor) regenerationWindow(r model.DateRange) model.DateRange {
	w := model.DateRange{Start: r.Start, End: r.End}
	if p.cfg.RegenerationWindowDays > 0 {
		if s := r.End.AddDate(0, 0, -(p.cfg.RegenerationWindowDays - 1)); s.Before(w.Start) {
			w.Start = s
		}
	}
	return w
}

func newProcessed(g model.MatchGroup, tags []model.TagScore, d confidence.Decision) *model.ProcessedActivity {
	return &model.ProcessedActivity{
		Date:                 g.Date,
		Time:                 g.Time,
		TotalDurationMinutes: g.MergedDuration,
		CombinedDetails:      g.MergedText,
		RawActivityIDs:       g.MemberIDs,
		Sources:              g.Sources,
		MatchConfidence:      g.MatchConfidence,
		Singleton:            g.Singleton,
		CandidateCount:       g.CandidateCount,
		BestSimilarity:       g.BestSimilarity,
		CompositeConfidence:  d.Composite,
		IsReviewNeeded:       d.ReviewNeeded,
		ReviewReasons:        d.Reasons,
		Context:              g.Context,
		Tags:                 activityTags(tags),
	}
}

func activityTags(tags []model.TagScore) []model.ActivityTag {
	out := make([]model.ActivityTag, len(tags))
	for i, t := range tags {
		out[i] = model.ActivityTag{
			TagName:    t.Tag,
			Confidence: t.Confidence,
			Fallback:   t.Fallback,
			Rationale:  t.Rationale,
		}
	}
	return out
}
