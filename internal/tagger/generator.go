package tagger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/taxonomy"
)

// Generator combines the rule scorer with an optional external service.
type Generator struct {
	tax         *taxonomy.Store
	rules       *RuleScorer
	service     Service
	concurrency int
}

// Option configures a Generator.
type Option func(*Generator)

// WithService enables external-service augmentation.
func WithService(s Service) Option {
	return func(g *Generator) { g.service = s }
}

// WithConcurrency bounds TagAll fan-out. Default GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

// NewGenerator creates a Generator over a taxonomy snapshot.
func NewGenerator(tax *taxonomy.Store, opts ...Option) *Generator {
	g := &Generator{
		tax:         tax,
		rules:       NewRuleScorer(tax),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Taxonomy returns the snapshot the generator scores against.
func (g *Generator) Taxonomy() *taxonomy.Store { return g.tax }

// ServiceEnabled reports whether an external service is configured.
func (g *Generator) ServiceEnabled() bool { return g.service != nil }

// Begin starts a batch. Service failures are logged once per batch.
func (g *Generator) Begin() *Run {
	return &Run{g: g}
}

// Run tags the activities of one batch.
type Run struct {
	g         *Generator
	warnOnce  sync.Once
	fallbacks atomic.Int64
}

// Tag returns ranked tags for one activity. Service problems never
// surface here; the only error is cancellation of ctx.
func (r *Run) Tag(ctx context.Context, in Input) ([]model.TagScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ranked := r.g.rules.ranked(in)
	maxTags := r.g.tax.Calibration().MaxTags

	if r.g.service == nil {
		return truncate(ranked, maxTags), nil
	}

	suggestions, err := r.g.service.Suggest(ctx, in)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.fallback(err)
		return truncate(ranked, maxTags), nil
	}
	return truncate(r.g.merge(ranked, suggestions), maxTags), nil
}

// TagAll tags many activities concurrently. Results are in input order
// and equal to calling Tag on each input.
func (r *Run) TagAll(ctx context.Context, inputs []Input) ([][]model.TagScore, error) {
	out := make([][]model.TagScore, len(inputs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.g.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			tags, err := r.Tag(gCtx, in)
			if err != nil {
				return err
			}
			out[i] = tags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Fallbacks returns how many activities in this batch fell back to the
// rule-based scorer because the service failed.
func (r *Run) Fallbacks() int {
	return int(r.fallbacks.Load())
}

func (r *Run) fallback(err error) {
	r.fallbacks.Add(1)
	logged := false
	r.warnOnce.Do(func() {
		logged = true
		zap.L().Warn("tagger: external service failed, using rule-based scoring for this batch",
			zap.Error(err),
		)
	})
	if !logged {
		zap.L().Debug("tagger: external service failed", zap.Error(err))
	}
}

// merge folds service suggestions into the rule ranking. Names outside
// the vocabulary are mapped to the nearest tag; unmappable names are kept
// as fallback tags. Each tag keeps its highest confidence.
func (g *Generator) merge(ranked []model.TagScore, suggestions []Suggestion) []model.TagScore {
	threshold := g.tax.Calibration().Threshold
	byTag := make(map[string]model.TagScore, len(ranked)+len(suggestions))
	for _, s := range ranked {
		byTag[s.Tag] = s
	}

	for _, s := range suggestions {
		score := model.TagScore{
			Confidence: clamp01(s.Confidence),
			Rationale:  s.Rationale,
			Origin:     model.TagOriginService,
		}
		slug := taxonomy.Slugify(s.Tag)
		switch {
		case g.tax.Has(slug):
			score.Tag = slug
		default:
			if nearest, ok := g.tax.Nearest(s.Tag); ok {
				score.Tag = nearest
			} else if slug != "" {
				score.Tag = slug
				score.Fallback = true
			} else {
				continue
			}
		}
		if score.Confidence < threshold {
			continue
		}
		if prev, ok := byTag[score.Tag]; ok && prev.Confidence >= score.Confidence {
			continue
		}
		byTag[score.Tag] = score
	}

	out := make([]model.TagScore, 0, len(byTag))
	for _, s := range byTag {
		out = append(out, s)
	}
	sortScores(out)
	return out
}
