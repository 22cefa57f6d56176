// Package taxonomy loads and validates the controlled tag vocabulary, the
// synonym map and the scoring calibration. A Store is immutable once built
// and is shared by reference between the matcher and the tag generator.
package taxonomy

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Node is one entry of the tag hierarchy.
type Node struct {
	Name     string   `yaml:"name" json:"name" validate:"required"`
	Parent   string   `yaml:"parent,omitempty" json:"parent,omitempty"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Document is the on-disk shape of the tag vocabulary.
type Document struct {
	Tags []Node `yaml:"tags" json:"tags" validate:"required,min=1,dive"`
}

// SynonymMap maps a canonical tag to extra keywords that imply it.
type SynonymMap map[string][]string

// synonymDocument is the on-disk shape of the synonym map.
type synonymDocument struct {
	Synonyms SynonymMap `yaml:"synonyms"`
}

// Weights are the per-feature multipliers of the rule-based scorer.
type Weights struct {
	Synonym    float64 `yaml:"synonym" json:"synonym" validate:"gte=0"`
	Taxonomy   float64 `yaml:"taxonomy" json:"taxonomy" validate:"gte=0"`
	Duration   float64 `yaml:"duration" json:"duration" validate:"gte=0"`
	TitleBonus float64 `yaml:"title_bonus" json:"title_bonus" validate:"gte=0"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Synonym + w.Taxonomy + w.Duration + w.TitleBonus
}

// DurationRange is the typical length of an activity carrying a tag.
type DurationRange struct {
	Min int `yaml:"min" json:"min" validate:"gte=0"`
	Max int `yaml:"max" json:"max" validate:"gtefield=Min"`
}

// Calibration holds the tunable weights and thresholds of tag scoring.
type Calibration struct {
	Threshold      float64                       `yaml:"threshold" json:"threshold" validate:"gte=0,lte=1"`
	MaxTags        int                           `yaml:"max_tags" json:"max_tags" validate:"gte=1,lte=50"`
	Weights        Weights                       `yaml:"weights" json:"weights"`
	Downweight     map[string]float64            `yaml:"downweight" json:"downweight" validate:"dive,gt=0,lte=1"`
	SourceBias     map[string]map[string]float64 `yaml:"source_bias" json:"source_bias" validate:"dive,dive,gte=-1,lte=1"`
	DurationRanges map[string]DurationRange      `yaml:"duration_ranges" json:"duration_ranges" validate:"dive"`
}

// DefaultCalibration returns the calibration used when no document is
// supplied. Weights sum to 1.
func DefaultCalibration() Calibration {
	return Calibration{
		Threshold: 0.3,
		MaxTags:   5,
		Weights: Weights{
			Synonym:    0.4,
			Taxonomy:   0.2,
			Duration:   0.2,
			TitleBonus: 0.2,
		},
	}
}

// Paths names the three documents that make up a taxonomy snapshot.
type Paths struct {
	Taxonomy    string `yaml:"taxonomy" mapstructure:"taxonomy"`
	Synonyms    string `yaml:"synonyms" mapstructure:"synonyms"`
	Calibration string `yaml:"calibration" mapstructure:"calibration"`
}

// LoadFiles reads and validates the three documents. The synonym and
// calibration paths are optional; empty paths yield an empty synonym map
// and DefaultCalibration.
func LoadFiles(paths Paths) (*Store, error) {
	doc, err := readDocument(paths.Taxonomy)
	if err != nil {
		return nil, err
	}

	synonyms := SynonymMap{}
	if paths.Synonyms != "" {
		data, err := os.ReadFile(paths.Synonyms)
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy: read synonyms %s", paths.Synonyms)
		}
		var sd synonymDocument
		if err := yaml.Unmarshal(data, &sd); err != nil {
			return nil, eris.Wrap(err, "taxonomy: parse synonyms")
		}
		if sd.Synonyms != nil {
			synonyms = sd.Synonyms
		}
	}

	cal := DefaultCalibration()
	if paths.Calibration != "" {
		data, err := os.ReadFile(paths.Calibration)
		if err != nil {
			return nil, eris.Wrapf(err, "taxonomy: read calibration %s", paths.Calibration)
		}
		// Fields missing from the document keep their defaults.
		if err := yaml.Unmarshal(data, &cal); err != nil {
			return nil, eris.Wrap(err, "taxonomy: parse calibration")
		}
	}

	return New(doc.Tags, synonyms, cal)
}

func readDocument(path string) (*Document, error) {
	if path == "" {
		return nil, eris.New("taxonomy: vocabulary path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read vocabulary %s", path)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse vocabulary")
	}
	return &doc, nil
}
