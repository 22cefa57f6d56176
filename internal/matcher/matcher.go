// Package matcher groups raw activity records from different sources that
// describe the same real activity.
package matcher

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/taxonomy"
	"github.com/sells-group/activity-cli/internal/textsim"
)

// Weights are the multipliers of the pair score components. The score is
// divided by their sum so it always lies in [0,1].
type Weights struct {
	Time    float64 `yaml:"time" mapstructure:"time"`
	Content float64 `yaml:"content" mapstructure:"content"`
	Keyword float64 `yaml:"keyword" mapstructure:"keyword"`
	Prior   float64 `yaml:"prior" mapstructure:"prior"`
}

func (w Weights) sum() float64 {
	return w.Time + w.Content + w.Keyword + w.Prior
}

// Config controls matching.
type Config struct {
	// WindowDays is how many days apart two records may be and still be
	// compared. Default 1.
	WindowDays int
	// SessionGap is the largest gap between same-source records that are
	// merged into one session. Default 45m.
	SessionGap time.Duration
	Weights    Weights
	Similarity textsim.Kind
	// MinScore is the lowest pair score accepted during assignment.
	MinScore float64
}

// DefaultConfig returns the default matching configuration.
func DefaultConfig() Config {
	return Config{
		WindowDays: 1,
		SessionGap: 45 * time.Minute,
		Weights:    Weights{Time: 0.4, Content: 0.3, Keyword: 0.2, Prior: 0.1},
		Similarity: textsim.KindTFIDF,
		MinScore:   0.5,
	}
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = def.WindowDays
	}
	if cfg.SessionGap <= 0 {
		cfg.SessionGap = def.SessionGap
	}
	if cfg.Weights.sum() <= 0 {
		cfg.Weights = def.Weights
	}
	if cfg.Similarity == "" {
		cfg.Similarity = def.Similarity
	}
	return cfg
}

// Vocabulary is a set of terms observed in previously processed
// activities. Matches on these terms earn the prior bonus.
type Vocabulary map[string]bool

// BuildVocabulary collects the tokens that occur in at least minCount of
// the given texts.
func BuildVocabulary(texts []string, minCount int) Vocabulary {
	counts := make(map[string]int)
	for _, t := range texts {
		for tok := range textsim.TokenSet(t) {
			counts[tok]++
		}
	}
	vocab := make(Vocabulary)
	for tok, n := range counts {
		if n >= minCount {
			vocab[tok] = true
		}
	}
	return vocab
}

// Matcher partitions raw records into match groups.
type Matcher struct {
	cfg Config
	tax *taxonomy.Store
}

// New creates a Matcher. tax supplies the synonym map used for keyword
// overlap; it may be nil, in which case overlap uses raw tokens only.
func New(cfg Config, tax *taxonomy.Store) *Matcher {
	return &Matcher{cfg: applyDefaults(cfg), tax: tax}
}

// Config returns the effective configuration.
func (m *Matcher) Config() Config { return m.cfg }

// Match partitions records into groups so every record appears in exactly
// one group. Output order is deterministic: by date, time, then first
// member id.
func (m *Matcher) Match(ctx context.Context, records []model.RawActivity, prior Vocabulary) ([]model.MatchGroup, error) {
	if len(records) == 0 {
		return nil, nil
	}

	units, invalid := sessionize(records, m.cfg.SessionGap)

	corpus := make([]string, len(units))
	for i, u := range units {
		corpus[i] = u.text
		u.tokens = m.expand(u.text)
	}
	sim := textsim.New(m.cfg.Similarity, corpus)

	pairs, stats, err := m.scorePairs(ctx, units, sim, prior)
	if err != nil {
		return nil, err
	}

	builders := assign(pairs, len(units), m.cfg.MinScore)

	var groups []model.MatchGroup
	grouped := make([]bool, len(units))
	for _, b := range builders {
		var members []member
		for _, u := range b.units {
			grouped[u.idx] = true
			members = append(members, u.members...)
		}
		groups = append(groups, buildGroup(members, b.confidence(), false, unitStats{}))
	}
	for _, u := range units {
		if grouped[u.idx] {
			continue
		}
		groups = append(groups, buildGroup(u.members, 1.0, true, stats[u.idx]))
	}
	for _, rec := range invalid {
		groups = append(groups, invalidGroup(rec))
	}

	sortGroups(groups)

	zap.L().Debug("matcher: partitioned records",
		zap.Int("records", len(records)),
		zap.Int("sessions", len(units)),
		zap.Int("candidate_pairs", len(pairs)),
		zap.Int("groups", len(groups)),
		zap.Int("invalid", len(invalid)),
	)
	return groups, nil
}

func (m *Matcher) expand(text string) map[string]bool {
	if m.tax == nil {
		return textsim.TokenSet(text)
	}
	return m.tax.Expand(text)
}

// pair is a scored candidate between two units of different sources;
// a always holds the unit with the lexically smaller first id.
type pair struct {
	a, b    *unit
	score   float64
	content float64
}

type unitStats struct {
	candidates     int
	bestSimilarity float64
}

// scorePairs scores every cross-source unit pair inside the date window.
// Rows are scored concurrently and flattened in index order, so the
// result does not depend on scheduling.
func (m *Matcher) scorePairs(ctx context.Context, units []*unit, sim textsim.Similarity, prior Vocabulary) ([]pair, []unitStats, error) {
	rows := make([][]pair, len(units))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range units {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < len(units); j++ {
				a, b := units[i], units[j]
				if a.source == b.source || !m.withinWindow(a, b) {
					continue
				}
				if b.firstID < a.firstID {
					a, b = b, a
				}
				p := m.score(a, b, sim, prior)
				rows[i] = append(rows[i], p)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, eris.Wrap(err, "matcher: score pairs")
	}

	stats := make([]unitStats, len(units))
	var pairs []pair
	for _, row := range rows {
		for _, p := range row {
			pairs = append(pairs, p)
			for _, u := range []*unit{p.a, p.b} {
				stats[u.idx].candidates++
				if p.content > stats[u.idx].bestSimilarity {
					stats[u.idx].bestSimilarity = p.content
				}
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if pairs[i].score != pairs[j].score {
			return pairs[i].score > pairs[j].score
		}
		if pairs[i].a.firstID != pairs[j].a.firstID {
			return pairs[i].a.firstID < pairs[j].a.firstID
		}
		return pairs[i].b.firstID < pairs[j].b.firstID
	})
	return pairs, stats, nil
}

func (m *Matcher) window() time.Duration {
	return time.Duration(m.cfg.WindowDays) * 24 * time.Hour
}

// withinWindow compares calendar days, so records on adjacent days are
// candidates under a one-day window regardless of clock time.
func (m *Matcher) withinWindow(a, b *unit) bool {
	dayA := a.start.Truncate(24 * time.Hour)
	dayB := b.start.Truncate(24 * time.Hour)
	diff := dayA.Sub(dayB)
	if diff < 0 {
		diff = -diff
	}
	return diff <= m.window()
}

func (m *Matcher) score(a, b *unit, sim textsim.Similarity, prior Vocabulary) pair {
	w := m.cfg.Weights
	tp := timeProximity(gapBetween(a, b), m.window())
	content := sim.Score(a.text, b.text)
	keyword := textsim.Overlap(a.tokens, b.tokens)
	bonus := priorBonus(a.text, b.text, prior)

	total := w.Time*tp + w.Content*content + w.Keyword*keyword + w.Prior*bonus
	return pair{a: a, b: b, score: clamp01(total / w.sum()), content: content}
}

// gapBetween is zero for overlapping intervals and otherwise the distance
// between the nearer endpoints.
func gapBetween(a, b *unit) time.Duration {
	switch {
	case a.end.Before(b.start):
		return b.start.Sub(a.end)
	case b.end.Before(a.start):
		return a.start.Sub(b.end)
	default:
		return 0
	}
}

// timeProximity decays linearly from 1 at zero gap to 0 at the window edge.
func timeProximity(gap, window time.Duration) float64 {
	if window <= 0 || gap >= window {
		return 0
	}
	return 1 - float64(gap)/float64(window)
}

// priorBonus is the share of tokens common to both texts that belong to
// the prior vocabulary.
func priorBonus(a, b string, prior Vocabulary) float64 {
	if len(prior) == 0 {
		return 0
	}
	ta, tb := textsim.TokenSet(a), textsim.TokenSet(b)
	shared, known := 0, 0
	for tok := range ta {
		if !tb[tok] {
			continue
		}
		shared++
		if prior[tok] {
			known++
		}
	}
	if shared == 0 {
		return 0
	}
	return float64(known) / float64(shared)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
