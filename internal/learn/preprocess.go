// Package learn fits and applies the conversion classifier and the deal-value
// regressor. Both share one preprocessing recipe: numeric columns are median
// imputed then standardized, categorical columns are most-frequent imputed
// then one-hot encoded with unseen categories mapped to all zeros.
package learn

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/leadscore/internal/feature"
)

// MissingCategory fills a categorical column that has no observed values.
const MissingCategory = "missing_value"

// NumericColumn holds the fitted imputation and scaling for one column.
type NumericColumn struct {
	Name   string  `json:"name"`
	Median float64 `json:"median"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// CategoricalColumn holds the fitted fill value and sorted vocabulary.
type CategoricalColumn struct {
	Name       string   `json:"name"`
	Fill       string   `json:"fill"`
	Categories []string `json:"categories"`
}

// Preprocessor turns frame rows into a dense design matrix.
type Preprocessor struct {
	Numeric     []NumericColumn     `json:"numeric"`
	Categorical []CategoricalColumn `json:"categorical"`
}

// FitPreprocessor learns imputation, scaling and vocabularies from rows.
func FitPreprocessor(schema feature.Schema, rows []feature.Row) *Preprocessor {
	p := &Preprocessor{}
	for _, name := range schema.Numeric {
		p.Numeric = append(p.Numeric, fitNumeric(name, rows))
	}
	for _, name := range schema.Categorical {
		p.Categorical = append(p.Categorical, fitCategorical(name, rows))
	}
	return p
}

func fitNumeric(name string, rows []feature.Row) NumericColumn {
	observed := make([]float64, 0, len(rows))
	for _, r := range rows {
		if v, ok := r.Float(name); ok {
			observed = append(observed, v)
		}
	}
	col := NumericColumn{Name: name, Median: median(observed), Scale: 1}
	if len(rows) == 0 {
		return col
	}

	imputed := make([]float64, len(rows))
	for i, r := range rows {
		imputed[i] = col.impute(r)
	}
	mean, std := stat.PopMeanStdDev(imputed, nil)
	col.Mean = mean
	if std > 0 {
		col.Scale = std
	}
	return col
}

func (c NumericColumn) impute(r feature.Row) float64 {
	if v, ok := r.Float(c.Name); ok {
		return v
	}
	return c.Median
}

func fitCategorical(name string, rows []feature.Row) CategoricalColumn {
	counts := make(map[string]int)
	for _, r := range rows {
		if v, ok := r.Text(name); ok {
			counts[v]++
		}
	}

	col := CategoricalColumn{Name: name, Fill: MissingCategory}
	best := 0
	for v, n := range counts {
		if n > best || (n == best && v < col.Fill) {
			col.Fill, best = v, n
		}
	}

	seen := make(map[string]bool)
	for _, r := range rows {
		v := col.impute(r)
		if !seen[v] {
			seen[v] = true
			col.Categories = append(col.Categories, v)
		}
	}
	sort.Strings(col.Categories)
	return col
}

func (c CategoricalColumn) impute(r feature.Row) string {
	if v, ok := r.Text(c.Name); ok {
		return v
	}
	return c.Fill
}

// Width is the number of encoded features per row.
func (p *Preprocessor) Width() int {
	w := len(p.Numeric)
	for _, c := range p.Categorical {
		w += len(c.Categories)
	}
	return w
}

// Schema returns the columns the preprocessor reads.
func (p *Preprocessor) Schema() feature.Schema {
	var s feature.Schema
	for _, c := range p.Numeric {
		s.Numeric = append(s.Numeric, c.Name)
	}
	for _, c := range p.Categorical {
		s.Categorical = append(s.Categorical, c.Name)
	}
	return s
}

// Transform encodes rows into a len(rows) x Width matrix. It returns nil
// for zero rows.
func (p *Preprocessor) Transform(rows []feature.Row) *mat.Dense {
	if len(rows) == 0 || p.Width() == 0 {
		return nil
	}
	x := mat.NewDense(len(rows), p.Width(), nil)
	for i, r := range rows {
		p.encode(r, x.RawRowView(i))
	}
	return x
}

func (p *Preprocessor) encode(r feature.Row, dst []float64) {
	j := 0
	for _, c := range p.Numeric {
		dst[j] = (c.impute(r) - c.Mean) / c.Scale
		j++
	}
	for _, c := range p.Categorical {
		v := c.impute(r)
		if k := sort.SearchStrings(c.Categories, v); k < len(c.Categories) && c.Categories[k] == v {
			dst[j+k] = 1
		}
		j += len(c.Categories)
	}
}

// median averages the two middle values of an even-length sample. An empty
// sample has median 0.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}
