package taxonomy_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/activity-cli/internal/taxonomy"
	"github.com/sells-group/activity-cli/internal/taxonomy/taxonomytest"
)

func testdataPaths() taxonomy.Paths {
	return taxonomy.Paths{
		Taxonomy:    filepath.Join("testdata", "tags.yaml"),
		Synonyms:    filepath.Join("testdata", "synonyms.yaml"),
		Calibration: filepath.Join("testdata", "calibration.yaml"),
	}
}

func TestLoadFiles(t *testing.T) {
	st, err := taxonomy.LoadFiles(testdataPaths())
	require.NoError(t, err)

	assert.Equal(t, []string{"deep-work", "exercise", "meetings", "work"}, st.Names())
	assert.Equal(t, 4, st.Len())
	assert.Equal(t, "work", st.Parent("deep-work"))
	assert.Equal(t, []string{"deep-work", "meetings"}, st.Children("work"))

	cal := st.Calibration()
	assert.Equal(t, 0.25, cal.Threshold)
	assert.Equal(t, 4, cal.MaxTags)
	// Weights absent from the document keep their defaults.
	assert.Equal(t, taxonomy.DefaultCalibration().Weights, cal.Weights)
	assert.Equal(t, 0.5, cal.Downweight["work"])
	assert.Equal(t, 0.1, cal.SourceBias["calendar"]["meetings"])
	assert.Equal(t, taxonomy.DurationRange{Min: 10, Max: 90}, cal.DurationRanges["meetings"])

	assert.Equal(t, []string{"meetings"}, st.Canonical("Huddle"))
}

func TestLoadFiles_OptionalDocuments(t *testing.T) {
	st, err := taxonomy.LoadFiles(taxonomy.Paths{Taxonomy: filepath.Join("testdata", "tags.yaml")})
	require.NoError(t, err)
	assert.Equal(t, taxonomy.DefaultCalibration().Threshold, st.Calibration().Threshold)
	assert.Empty(t, st.Synonyms())
}

func TestLoadFiles_Errors(t *testing.T) {
	_, err := taxonomy.LoadFiles(taxonomy.Paths{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vocabulary path is required")

	_, err = taxonomy.LoadFiles(taxonomy.Paths{Taxonomy: filepath.Join("testdata", "missing.yaml")})
	require.Error(t, err)

	_, err = taxonomy.LoadFiles(taxonomy.Paths{Taxonomy: filepath.Join("testdata", "cycle.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNew_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []taxonomy.Node
		synonyms taxonomy.SynonymMap
		cal      func(c *taxonomy.Calibration)
		want     string
	}{
		{
			name:  "empty vocabulary",
			nodes: nil,
			want:  "invalid vocabulary",
		},
		{
			name:  "duplicate after slug",
			nodes: []taxonomy.Node{{Name: "Deep Work"}, {Name: "deep-work"}},
			want:  "duplicate tag",
		},
		{
			name:  "unknown parent",
			nodes: []taxonomy.Node{{Name: "meetings", Parent: "work"}},
			want:  "unknown parent",
		},
		{
			name:     "synonym for unknown tag",
			nodes:    []taxonomy.Node{{Name: "work"}},
			synonyms: taxonomy.SynonymMap{"play": {"games"}},
			want:     "synonyms reference unknown tag",
		},
		{
			name:  "downweight for unknown tag",
			nodes: []taxonomy.Node{{Name: "work"}},
			cal:   func(c *taxonomy.Calibration) { c.Downweight = map[string]float64{"play": 0.5} },
			want:  "downweight references unknown tag",
		},
		{
			name:  "downweight out of range",
			nodes: []taxonomy.Node{{Name: "work"}},
			cal:   func(c *taxonomy.Calibration) { c.Downweight = map[string]float64{"work": 1.5} },
			want:  "invalid calibration",
		},
		{
			name:  "threshold out of range",
			nodes: []taxonomy.Node{{Name: "work"}},
			cal:   func(c *taxonomy.Calibration) { c.Threshold = 1.2 },
			want:  "invalid calibration",
		},
		{
			name:  "zero weights",
			nodes: []taxonomy.Node{{Name: "work"}},
			cal:   func(c *taxonomy.Calibration) { c.Weights = taxonomy.Weights{} },
			want:  "weights must sum",
		},
		{
			name:  "inverted duration range",
			nodes: []taxonomy.Node{{Name: "work"}},
			cal: func(c *taxonomy.Calibration) {
				c.DurationRanges = map[string]taxonomy.DurationRange{"work": {Min: 60, Max: 10}}
			},
			want: "invalid calibration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := taxonomy.DefaultCalibration()
			if tt.cal != nil {
				tt.cal(&cal)
			}
			_, err := taxonomy.New(tt.nodes, tt.synonyms, cal)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestStore_Hierarchy(t *testing.T) {
	st := taxonomytest.Store(t)

	assert.Equal(t, []string{"work"}, st.Ancestors("meetings"))
	assert.Empty(t, st.Ancestors("work"))
	assert.Equal(t, map[string]int{"coding": 1, "meetings": 1, "planning": 1}, st.Descendants("work"))
	assert.True(t, st.HasRelatives("meetings"))
	assert.True(t, st.HasRelatives("work"))
	assert.False(t, st.HasRelatives("exercise"))
}

func TestStore_Keywords(t *testing.T) {
	st := taxonomytest.Store(t)

	var phrases []string
	for _, kw := range st.Keywords("meetings") {
		phrases = append(phrases, kw.Phrase)
	}
	// Own name, node keywords and synonyms, deduplicated and sorted.
	assert.Equal(t, []string{"call", "huddle", "meeting", "meetings", "one one", "scrum", "standup", "sync"}, phrases)
}

func TestStore_Expand(t *testing.T) {
	st := taxonomytest.Store(t)

	got := st.Expand("Team standup")
	assert.Equal(t, map[string]bool{"team": true, "standup": true, "meetings": true}, got)

	got = st.Expand("standup notes: discussed sprint plan")
	assert.True(t, got["meetings"])
	assert.True(t, got["planning"])
	assert.False(t, got["coding"])
}

func TestStore_Nearest(t *testing.T) {
	st := taxonomytest.Store(t)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Meetings", "meetings", true},
		{"meeting", "meetings", true},
		{"Huddle", "meetings", true},
		{"standup call", "meetings", true},
		{"refactor", "coding", true},
		{"gardening", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := st.Nearest(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStore_Version(t *testing.T) {
	a := taxonomytest.Store(t)
	b := taxonomytest.Store(t)
	assert.Equal(t, a.Version(), b.Version())
	assert.Len(t, a.Version(), 16)

	cal := taxonomytest.Calibration()
	cal.Threshold = 0.4
	c := taxonomytest.StoreWith(t, cal)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestStore_Snapshot(t *testing.T) {
	st := taxonomytest.Store(t)
	snap := st.Snapshot()
	assert.Contains(t, snap, "- meetings (parent: work): ")
	assert.Contains(t, snap, "huddle")
	assert.Contains(t, snap, "- exercise: ")
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "deep-work", taxonomy.Slugify("Deep Work"))
	assert.Equal(t, "1-1-meetings", taxonomy.Slugify("1:1 Meetings"))
	assert.Equal(t, "cafe", taxonomy.Slugify("  Café  "))
	assert.Equal(t, "", taxonomy.Slugify("!!!"))
	assert.Equal(t, "встречи-команды", taxonomy.Slugify("Встречи Команды"))
	assert.Equal(t, "会议", taxonomy.Slugify(" 会议! "))
}
