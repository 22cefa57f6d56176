package textsim

import (
	"math"
	"sort"
)

// Kind selects a similarity implementation.
type Kind string

const (
	KindTFIDF   Kind = "tfidf"
	KindJaccard Kind = "jaccard"
)

// Similarity scores the content similarity of two texts in [0,1].
type Similarity interface {
	Score(a, b string) float64
	Kind() Kind
}

// New returns the requested similarity. TF-IDF needs a fitted corpus; with
// an empty corpus it degrades to Jaccard.
func New(kind Kind, corpus []string) Similarity {
	if kind == KindTFIDF && len(corpus) > 0 {
		return NewTFIDF(corpus)
	}
	return Jaccard{}
}

// Jaccard scores |A∩B| / |A∪B| over token sets.
type Jaccard struct{}

// Kind implements Similarity.
func (Jaccard) Kind() Kind { return KindJaccard }

// Score implements Similarity.
func (Jaccard) Score(a, b string) float64 {
	return JaccardSets(TokenSet(a), TokenSet(b))
}

// JaccardSets scores two precomputed token sets.
func JaccardSets(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Overlap scores |A∩B| / min(|A|,|B|). It is used for keyword overlap
// where one side is usually much shorter than the other.
func Overlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	return float64(inter) / float64(min(len(a), len(b)))
}

// TFIDF scores cosine similarity over smoothed tf-idf vectors fitted on a
// corpus of documents.
type TFIDF struct {
	docs int
	df   map[string]int
}

// NewTFIDF fits document frequencies on the corpus.
func NewTFIDF(corpus []string) *TFIDF {
	df := make(map[string]int)
	for _, doc := range corpus {
		for tok := range TokenSet(doc) {
			df[tok]++
		}
	}
	return &TFIDF{docs: len(corpus), df: df}
}

// Kind implements Similarity.
func (t *TFIDF) Kind() Kind { return KindTFIDF }

// idf uses the smoothed form ln((1+N)/(1+df)) + 1 so terms shared by every
// document still carry weight.
func (t *TFIDF) idf(tok string) float64 {
	return math.Log(float64(1+t.docs)/float64(1+t.df[tok])) + 1
}

type term struct {
	tok    string
	weight float64
}

// vector returns the tf-idf weights of s sorted by token so sums are
// accumulated in a fixed order.
func (t *TFIDF) vector(s string) []term {
	counts := make(map[string]int)
	for _, tok := range Tokenize(s) {
		counts[tok]++
	}
	vec := make([]term, 0, len(counts))
	for tok, n := range counts {
		vec = append(vec, term{tok: tok, weight: float64(n) * t.idf(tok)})
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].tok < vec[j].tok })
	return vec
}

// Score implements Similarity.
func (t *TFIDF) Score(a, b string) float64 {
	va, vb := t.vector(a), t.vector(b)
	if len(va) == 0 || len(vb) == 0 {
		return 0
	}
	var dot, na, nb float64
	i, j := 0, 0
	for i < len(va) && j < len(vb) {
		switch {
		case va[i].tok == vb[j].tok:
			dot += va[i].weight * vb[j].weight
			i++
			j++
		case va[i].tok < vb[j].tok:
			i++
		default:
			j++
		}
	}
	for _, x := range va {
		na += x.weight * x.weight
	}
	for _, x := range vb {
		nb += x.weight * x.weight
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
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
