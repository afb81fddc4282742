// Package feature assembles the labeled per-account frame used for training
// and scoring.
package feature

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Schema declares which projection columns are model predictors and how
// each is treated. Columns not named here never reach a model.
type Schema struct {
	Numeric     []string `yaml:"numeric"`
	Categorical []string `yaml:"categorical"`
}

// Columns returns every predictor column, numeric first.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s.Numeric)+len(s.Categorical))
	out = append(out, s.Numeric...)
	return append(out, s.Categorical...)
}

// Validate rejects empty schemas, duplicate columns and predictors that
// would leak identifiers or labels into the model.
func (s Schema) Validate() error {
	if len(s.Numeric)+len(s.Categorical) == 0 {
		return eris.New("feature: schema declares no predictor columns")
	}
	seen := make(map[string]bool)
	for _, c := range s.Columns() {
		if c == "" {
			return eris.New("feature: schema has a blank column name")
		}
		if reserved[c] {
			return eris.Errorf("feature: %q cannot be a predictor", c)
		}
		if seen[c] {
			return eris.Errorf("feature: column %q declared twice", c)
		}
		seen[c] = true
	}
	return nil
}

// Missing returns the schema columns absent from cols.
func (s Schema) Missing(cols []string) []string {
	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[c] = true
	}
	var out []string
	for _, c := range s.Columns() {
		if !have[c] {
			out = append(out, c)
		}
	}
	return out
}

// LoadSchema reads a YAML schema file of the form
//
//	numeric: [bed_count, interactions_90d]
//	categorical: [account_type]
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, eris.Wrapf(err, "feature: read schema %s", path)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, eris.Wrapf(err, "feature: parse schema %s", path)
	}
	return s, s.Validate()
}

var reserved = map[string]bool{
	ColAccountID:   true,
	ColT0Date:      true,
	ColAmount90:    true,
	ColAmount180:   true,
	ColCloseLabel:  true,
	ColAmountLabel: true,
}
