package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"

	"github.com/sells-group/activity-cli/internal/textsim"
)

// Keyword is a normalized keyword phrase and its token sequence.
type Keyword struct {
	Phrase string
	Tokens []string
}

// Store is an immutable taxonomy snapshot: vocabulary, synonyms and
// calibration. All names are slugified on construction.
type Store struct {
	nodes     map[string]Node
	names     []string
	children  map[string][]string
	keywords  map[string][]Keyword
	canonical map[string][]string
	synonyms  SynonymMap
	cal       Calibration
	version   string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// New validates the inputs and builds a Store.
func New(nodes []Node, synonyms SynonymMap, cal Calibration) (*Store, error) {
	if err := validate.Struct(Document{Tags: nodes}); err != nil {
		return nil, eris.Wrap(err, "taxonomy: invalid vocabulary")
	}
	if err := validate.Struct(cal); err != nil {
		return nil, eris.Wrap(err, "taxonomy: invalid calibration")
	}

	s := &Store{
		nodes:     make(map[string]Node, len(nodes)),
		children:  make(map[string][]string),
		keywords:  make(map[string][]Keyword, len(nodes)),
		canonical: make(map[string][]string),
		synonyms:  make(SynonymMap, len(synonyms)),
	}

	var errs []string
	for _, n := range nodes {
		name := Slugify(n.Name)
		if name == "" {
			errs = append(errs, fmt.Sprintf("tag %q has an empty slug", n.Name))
			continue
		}
		if _, dup := s.nodes[name]; dup {
			errs = append(errs, fmt.Sprintf("duplicate tag %q", name))
			continue
		}
		s.nodes[name] = Node{Name: name, Parent: Slugify(n.Parent), Keywords: n.Keywords}
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)

	for _, name := range s.names {
		parent := s.nodes[name].Parent
		if parent == "" {
			continue
		}
		if _, ok := s.nodes[parent]; !ok {
			errs = append(errs, fmt.Sprintf("tag %q has unknown parent %q", name, parent))
			continue
		}
		s.children[parent] = append(s.children[parent], name)
	}
	errs = append(errs, s.checkCycles()...)

	for tag, words := range synonyms {
		slug := Slugify(tag)
		if _, ok := s.nodes[slug]; !ok {
			errs = append(errs, fmt.Sprintf("synonyms reference unknown tag %q", tag))
			continue
		}
		s.synonyms[slug] = append(s.synonyms[slug], words...)
	}

	normalized, calErrs := s.normalizeCalibration(cal)
	errs = append(errs, calErrs...)

	if len(errs) > 0 {
		sort.Strings(errs)
		return nil, eris.Errorf("taxonomy: validation failed: %s", strings.Join(errs, "; "))
	}
	s.cal = normalized

	for _, name := range s.names {
		s.keywords[name] = s.buildKeywords(name)
		for _, kw := range s.keywords[name] {
			s.canonical[kw.Phrase] = append(s.canonical[kw.Phrase], name)
		}
	}

	s.version = s.computeVersion()
	return s, nil
}

func (s *Store) checkCycles() []string {
	var errs []string
	for _, name := range s.names {
		seen := map[string]bool{name: true}
		for cur := s.nodes[name].Parent; cur != ""; cur = s.nodes[cur].Parent {
			if seen[cur] {
				errs = append(errs, fmt.Sprintf("tag %q is part of a parent cycle", name))
				break
			}
			if _, ok := s.nodes[cur]; !ok {
				break
			}
			seen[cur] = true
		}
	}
	return errs
}

func (s *Store) normalizeCalibration(cal Calibration) (Calibration, []string) {
	var errs []string
	if cal.Weights.Sum() <= 0 {
		errs = append(errs, "calibration weights must sum to a positive number")
	}

	out := cal
	out.Downweight = make(map[string]float64, len(cal.Downweight))
	for tag, f := range cal.Downweight {
		slug := Slugify(tag)
		if !s.Has(slug) {
			errs = append(errs, fmt.Sprintf("downweight references unknown tag %q", tag))
			continue
		}
		out.Downweight[slug] = f
	}

	out.DurationRanges = make(map[string]DurationRange, len(cal.DurationRanges))
	for tag, r := range cal.DurationRanges {
		slug := Slugify(tag)
		if !s.Has(slug) {
			errs = append(errs, fmt.Sprintf("duration range references unknown tag %q", tag))
			continue
		}
		out.DurationRanges[slug] = r
	}

	out.SourceBias = make(map[string]map[string]float64, len(cal.SourceBias))
	for source, biases := range cal.SourceBias {
		key := strings.ToLower(strings.TrimSpace(source))
		m := make(map[string]float64, len(biases))
		for tag, b := range biases {
			slug := Slugify(tag)
			if !s.Has(slug) {
				errs = append(errs, fmt.Sprintf("source bias for %q references unknown tag %q", source, tag))
				continue
			}
			m[slug] = b
		}
		out.SourceBias[key] = m
	}
	return out, errs
}

// buildKeywords merges the tag's own name, its node keywords and its
// synonyms into a deduplicated, phrase-sorted list.
func (s *Store) buildKeywords(name string) []Keyword {
	raw := []string{strings.ReplaceAll(name, "-", " ")}
	raw = append(raw, s.nodes[name].Keywords...)
	raw = append(raw, s.synonyms[name]...)

	seen := make(map[string]bool)
	var out []Keyword
	for _, w := range raw {
		tokens := textsim.Tokenize(w)
		if len(tokens) == 0 {
			continue
		}
		phrase := strings.Join(tokens, " ")
		if seen[phrase] {
			continue
		}
		seen[phrase] = true
		out = append(out, Keyword{Phrase: phrase, Tokens: tokens})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Phrase < out[j].Phrase })
	return out
}

func (s *Store) computeVersion() string {
	nodes := make([]Node, 0, len(s.names))
	for _, name := range s.names {
		nodes = append(nodes, s.nodes[name])
	}
	// encoding/json sorts map keys, so the digest is stable.
	data, _ := json.Marshal(struct {
		Nodes       []Node      `json:"nodes"`
		Synonyms    SynonymMap  `json:"synonyms"`
		Calibration Calibration `json:"calibration"`
	}{nodes, s.synonyms, s.cal})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Has reports whether name (already slugified) is in the vocabulary.
func (s *Store) Has(name string) bool {
	_, ok := s.nodes[name]
	return ok
}

// Names returns all tag names in sorted order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Len returns the vocabulary size.
func (s *Store) Len() int { return len(s.names) }

// Node returns the node for a tag.
func (s *Store) Node(name string) (Node, bool) {
	n, ok := s.nodes[name]
	return n, ok
}

// Parent returns the tag's parent, or "" for a root.
func (s *Store) Parent(name string) string {
	return s.nodes[name].Parent
}

// Ancestors returns the tag's ancestors, nearest first.
func (s *Store) Ancestors(name string) []string {
	var out []string
	for cur := s.nodes[name].Parent; cur != ""; cur = s.nodes[cur].Parent {
		out = append(out, cur)
	}
	return out
}

// Children returns the tag's direct children in sorted order.
func (s *Store) Children(name string) []string {
	return append([]string(nil), s.children[name]...)
}

// Descendants returns every descendant of name with its depth below it.
func (s *Store) Descendants(name string) map[string]int {
	out := make(map[string]int)
	frontier := []string{name}
	for depth := 1; len(frontier) > 0; depth++ {
		var next []string
		for _, n := range frontier {
			for _, c := range s.children[n] {
				if _, seen := out[c]; seen {
					continue
				}
				out[c] = depth
				next = append(next, c)
			}
		}
		frontier = next
	}
	return out
}

// HasRelatives reports whether the tag has a parent or children, i.e.
// whether taxonomy inheritance can contribute to its score.
func (s *Store) HasRelatives(name string) bool {
	return s.nodes[name].Parent != "" || len(s.children[name]) > 0
}

// Keywords returns the normalized keywords of a tag.
func (s *Store) Keywords(name string) []Keyword {
	return s.keywords[name]
}

// Synonyms returns the normalized synonym map.
func (s *Store) Synonyms() SynonymMap {
	out := make(SynonymMap, len(s.synonyms))
	for k, v := range s.synonyms {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Canonical returns the tags a keyword phrase implies, sorted.
func (s *Store) Canonical(term string) []string {
	return s.canonical[textsim.Phrase(term)]
}

// Calibration returns the snapshot's calibration.
func (s *Store) Calibration() Calibration { return s.cal }

// Version is a short digest identifying this snapshot.
func (s *Store) Version() string { return s.version }

// Expand returns the token set of text extended with the canonical tag of
// every keyword phrase found in it.
func (s *Store) Expand(text string) map[string]bool {
	tokens := textsim.Tokenize(text)
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		set[tok] = true
	}
	for _, name := range s.names {
		for _, kw := range s.keywords[name] {
			if textsim.ContainsPhrase(tokens, kw.Tokens) {
				set[name] = true
				break
			}
		}
	}
	return set
}

// Nearest maps an arbitrary tag name onto the vocabulary: exact slug,
// singular/plural variant, synonym keyword, then best token overlap with
// a tag's name and keywords. Ties resolve to the alphabetically first tag.
func (s *Store) Nearest(name string) (string, bool) {
	slug := Slugify(name)
	if slug == "" {
		return "", false
	}
	if s.Has(slug) {
		return slug, true
	}
	for _, variant := range []string{slug + "s", strings.TrimSuffix(slug, "s")} {
		if variant != slug && s.Has(variant) {
			return variant, true
		}
	}
	if tags := s.Canonical(name); len(tags) > 0 {
		return tags[0], true
	}

	query := textsim.TokenSet(name)
	if len(query) == 0 {
		return "", false
	}
	best, bestScore := "", 0.0
	for _, tag := range s.names {
		vocab := make(map[string]bool)
		for _, kw := range s.keywords[tag] {
			for _, tok := range kw.Tokens {
				vocab[tok] = true
			}
		}
		hits := 0
		for tok := range query {
			if vocab[tok] {
				hits++
			}
		}
		score := float64(hits) / float64(len(query))
		if score > bestScore {
			best, bestScore = tag, score
		}
	}
	if bestScore >= 0.5 {
		return best, true
	}
	return "", false
}

// Snapshot renders the vocabulary and synonyms as prompt-ready text.
func (s *Store) Snapshot() string {
	var b strings.Builder
	for _, name := range s.names {
		b.WriteString("- ")
		b.WriteString(name)
		if p := s.nodes[name].Parent; p != "" {
			b.WriteString(" (parent: ")
			b.WriteString(p)
			b.WriteString(")")
		}
		phrases := make([]string, 0, len(s.keywords[name]))
		for _, kw := range s.keywords[name] {
			phrases = append(phrases, kw.Phrase)
		}
		if len(phrases) > 0 {
			b.WriteString(": ")
			b.WriteString(strings.Join(phrases, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
