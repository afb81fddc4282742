package feature

import (
	"github.com/sells-group/leadscore/internal/model"
)

// Identifier and label columns of a Frame.
const (
	ColAccountID   = "account_id"
	ColT0Date      = "t0_date"
	ColAmount90    = "amt90"
	ColAmount180   = "amt180"
	ColCloseLabel  = "y_close_90d"
	ColAmountLabel = "y_amount_180d"
)

// Row is one account in the frame. Values holds the raw projection columns
// other than the identifiers; labels are kept in dedicated fields so model
// input can never read them by accident.
type Row struct {
	AccountID   string
	T0Date      string
	Values      map[string]any
	Amount90    float64
	Amount180   float64
	CloseLabel  int
	AmountLabel float64
}

// Float returns col as a finite number. Missing or non-numeric values
// report false.
func (r Row) Float(col string) (float64, bool) {
	return model.ParseFloat(r.Values[col])
}

// Text returns col as a category string. Missing values report false.
func (r Row) Text(col string) (string, bool) {
	return model.Text(r.Values[col])
}

// Frame is the assembled, labeled table. Columns lists the projection
// columns in their original order.
type Frame struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// CloseLabels returns the binary conversion labels in row order.
func (f *Frame) CloseLabels() []int {
	out := make([]int, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.CloseLabel
	}
	return out
}

// AmountLabels returns the deal-value labels in row order.
func (f *Frame) AmountLabels() []float64 {
	out := make([]float64, len(f.Rows))
	for i, r := range f.Rows {
		out[i] = r.AmountLabel
	}
	return out
}

// Subset returns the rows at idx, in idx order.
func (f *Frame) Subset(idx []int) []Row {
	out := make([]Row, len(idx))
	for i, j := range idx {
		out[i] = f.Rows[j]
	}
	return out
}
