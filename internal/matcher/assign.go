package matcher

import (
	"sort"

	"github.com/sells-group/activity-cli/internal/model"
)

// builder accumulates the units of one multi-source group.
type builder struct {
	units []*unit
	edges []float64
}

func newBuilder(a, b *unit, score float64) *builder {
	return &builder{
		units: []*unit{a, b},
		edges: []float64{score},
	}
}

func (b *builder) add(u *unit, score float64) {
	b.units = append(b.units, u)
	b.edges = append(b.edges, score)
}

// confidence is the weakest accepted link in the group.
func (b *builder) confidence() float64 {
	lowest := 1.0
	for _, e := range b.edges {
		if e < lowest {
			lowest = e
		}
	}
	return lowest
}

// assign walks pairs in descending score order and links units greedily.
// A pair opens a new group when both units are free. A pair with one free
// unit chains it into the partner's group, so A-B then B-C yields one
// group. Two existing groups are never merged.
func assign(pairs []pair, n int, minScore float64) []*builder {
	owner := make([]*builder, n)
	var builders []*builder

	for _, p := range pairs {
		if p.score < minScore {
			break
		}
		ga, gb := owner[p.a.idx], owner[p.b.idx]
		switch {
		case ga == nil && gb == nil:
			b := newBuilder(p.a, p.b, p.score)
			owner[p.a.idx], owner[p.b.idx] = b, b
			builders = append(builders, b)
		case ga != nil && gb == nil:
			ga.add(p.b, p.score)
			owner[p.b.idx] = ga
		case ga == nil && gb != nil:
			gb.add(p.a, p.score)
			owner[p.a.idx] = gb
		}
	}
	return builders
}

// buildGroup assembles a MatchGroup from member records.
func buildGroup(members []member, confidence float64, singleton bool, stats unitStats) model.MatchGroup {
	sorted := append([]member(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].start.Equal(sorted[j].start) {
			return sorted[i].start.Before(sorted[j].start)
		}
		return sorted[i].rec.ID < sorted[j].rec.ID
	})

	first := sorted[0].rec
	g := model.MatchGroup{
		MatchConfidence: confidence,
		MergedText:      mergeText(sorted),
		MergedDuration:  coveredMinutes(sorted),
		Date:            first.Date,
		Time:            first.Time,
		Singleton:       singleton,
		CandidateCount:  stats.candidates,
		BestSimilarity:  stats.bestSimilarity,
	}

	sources := make(map[string]bool)
	for _, m := range sorted {
		g.MemberIDs = append(g.MemberIDs, m.rec.ID)
		sources[normalizeSource(m.rec.Source)] = true
		for k, v := range m.rec.Context {
			if g.Context == nil {
				g.Context = make(map[string]string)
			}
			if _, taken := g.Context[k]; !taken {
				g.Context[k] = v
			}
		}
	}
	sort.Strings(g.MemberIDs)
	for src := range sources {
		g.Sources = append(g.Sources, src)
	}
	sort.Strings(g.Sources)
	return g
}

// invalidGroup wraps a record whose timing cannot be parsed. It never
// had candidates, so it is not treated as an orphan.
func invalidGroup(rec model.RawActivity) model.MatchGroup {
	d := rec.DurationMinutes
	if d < 0 {
		d = 0
	}
	g := model.MatchGroup{
		MemberIDs:       []string{rec.ID},
		MatchConfidence: 1.0,
		MergedText:      rec.Details,
		MergedDuration:  d,
		Sources:         []string{normalizeSource(rec.Source)},
		Date:            rec.Date,
		Time:            rec.Time,
		Singleton:       true,
	}
	if len(rec.Context) > 0 {
		g.Context = make(map[string]string, len(rec.Context))
		for k, v := range rec.Context {
			g.Context[k] = v
		}
	}
	return g
}

func sortGroups(groups []model.MatchGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		ta, tb := timeKey(a.Time), timeKey(b.Time)
		if ta != tb {
			return ta < tb
		}
		return a.MemberIDs[0] < b.MemberIDs[0]
	})
}

func timeKey(t *string) string {
	if t == nil {
		return ""
	}
	return *t
}
