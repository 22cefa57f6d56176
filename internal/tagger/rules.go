// Package tagger assigns controlled-vocabulary tags with confidences to
// aggregated activities.
package tagger

import (
	"sort"
	"strings"

	"github.com/sells-group/activity-cli/internal/model"
	"github.com/sells-group/activity-cli/internal/taxonomy"
	"github.com/sells-group/activity-cli/internal/textsim"
)

// Input is one aggregated activity to tag.
type Input struct {
	Text            string
	DurationMinutes int
	Sources         []string
	Context         map[string]string
}

// InputFromGroup builds the tagger input for a match group.
func InputFromGroup(g model.MatchGroup) Input {
	return Input{
		Text:            g.MergedText,
		DurationMinutes: g.MergedDuration,
		Sources:         g.Sources,
		Context:         g.Context,
	}
}

// RuleScorer is the deterministic, always-available scorer.
type RuleScorer struct {
	tax *taxonomy.Store
}

// NewRuleScorer creates a RuleScorer over a taxonomy snapshot.
func NewRuleScorer(tax *taxonomy.Store) *RuleScorer {
	return &RuleScorer{tax: tax}
}

// Score returns the tags at or above the calibration threshold, best
// first, truncated to max_tags.
func (r *RuleScorer) Score(in Input) []model.TagScore {
	return truncate(r.ranked(in), r.tax.Calibration().MaxTags)
}

// ranked scores every tag and returns those passing the threshold,
// sorted but not truncated.
func (r *RuleScorer) ranked(in Input) []model.TagScore {
	cal := r.tax.Calibration()
	tokens := textsim.Tokenize(in.Text)
	lead := textsim.Tokenize(textsim.LeadingSentence(in.Text))

	syn := make(map[string]float64)
	for _, name := range r.tax.Names() {
		kws := r.tax.Keywords(name)
		hits := 0
		for _, kw := range kws {
			if textsim.ContainsPhrase(tokens, kw.Tokens) {
				hits++
			}
		}
		if hits > 0 {
			syn[name] = float64(hits) / float64(max(1, len(kws)))
		}
	}

	var out []model.TagScore
	for _, name := range r.tax.Names() {
		f := features{synonym: syn[name], taxonomy: r.inherited(name, syn)}
		if f.synonym == 0 && f.taxonomy == 0 {
			continue
		}
		if rng, ok := cal.DurationRanges[name]; ok {
			f.hasDuration = true
			f.duration = durationFit(in.DurationMinutes, rng)
		}
		if r.inLead(name, lead) {
			f.title = 1
		}
		f.bias = sourceBias(cal.SourceBias, in.Sources, name)
		f.hasRelatives = r.tax.HasRelatives(name)

		conf := f.normalized(cal.Weights)
		if d, ok := cal.Downweight[name]; ok {
			conf *= d
		}
		if conf < cal.Threshold || conf <= 0 {
			continue
		}
		out = append(out, model.TagScore{
			Tag:        name,
			Confidence: conf,
			Origin:     model.TagOriginRules,
		})
	}
	sortScores(out)
	return out
}

// inherited is the taxonomy credit a tag earns from matched relatives:
// a matched descendant d levels below gives 0.5^(d-1), a matched ancestor
// d levels above gives half of that. The best single credit counts.
func (r *RuleScorer) inherited(name string, matched map[string]float64) float64 {
	best := 0.0
	for desc, depth := range r.tax.Descendants(name) {
		if matched[desc] > 0 {
			best = max(best, pow(0.5, depth-1))
		}
	}
	for i, anc := range r.tax.Ancestors(name) {
		if matched[anc] > 0 {
			best = max(best, 0.5*pow(0.5, i))
		}
	}
	return min(best, 1)
}

func (r *RuleScorer) inLead(name string, lead []string) bool {
	if len(lead) == 0 {
		return false
	}
	for _, kw := range r.tax.Keywords(name) {
		if textsim.ContainsPhrase(lead, kw.Tokens) {
			return true
		}
	}
	return false
}

type features struct {
	synonym, taxonomy, duration, title, bias float64
	hasDuration, hasRelatives                bool
}

// normalized divides the weighted sum by the best score this tag could
// reach with the same feature set, so tags without a duration range or
// without relatives are not penalized for it.
func (f features) normalized(w taxonomy.Weights) float64 {
	raw := w.Synonym*f.synonym + w.Taxonomy*f.taxonomy + w.TitleBonus*f.title + f.bias
	attainable := w.Synonym + w.TitleBonus + max(0, f.bias)
	if f.hasRelatives {
		attainable += w.Taxonomy
	}
	if f.hasDuration {
		raw += w.Duration * f.duration
		attainable += w.Duration
	}
	if attainable <= 0 {
		return 0
	}
	return clamp01(raw / attainable)
}

// durationFit is 1 inside the tag's typical range and decays
// proportionally outside it.
func durationFit(minutes int, rng taxonomy.DurationRange) float64 {
	d := float64(minutes)
	switch {
	case d <= 0:
		return 0
	case d < float64(rng.Min):
		return d / float64(rng.Min)
	case rng.Max > 0 && d > float64(rng.Max):
		return float64(rng.Max) / d
	default:
		return 1
	}
}

// sourceBias averages the per-source additive bias across the activity's
// sources.
func sourceBias(bias map[string]map[string]float64, sources []string, tag string) float64 {
	if len(sources) == 0 || len(bias) == 0 {
		return 0
	}
	total := 0.0
	for _, src := range sources {
		total += bias[strings.ToLower(strings.TrimSpace(src))][tag]
	}
	return total / float64(len(sources))
}

func sortScores(s []model.TagScore) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Confidence != s[j].Confidence {
			return s[i].Confidence > s[j].Confidence
		}
		return s[i].Tag < s[j].Tag
	})
}

func truncate(s []model.TagScore, n int) []model.TagScore {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

func pow(base float64, exp int) float64 {
	out := 1.0
	for range exp {
		out *= base
	}
	return out
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
