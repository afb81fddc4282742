package export

import (
	"math"
	"time"

	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadscore/internal/model"
)

type kind int

const (
	kindText kind = iota
	kindDate
	kindDateTime
	kindNumber
	kindInteger
	// kindFlag is an integer whose missing values become 0.
	kindFlag
)

type column struct {
	name string
	kind kind
}

type typedTable struct {
	columns []column
	rows    [][]any
}

var (
	opportunityKinds = map[string]kind{
		"expected_close_date": kindDateTime,
		"created_at":          kindDateTime,
		"closed_at":           kindDateTime,
		"amount_expected":     kindNumber,
	}
	orderKinds = map[string]kind{
		"order_date":   kindDateTime,
		"total_amount": kindNumber,
	}

	// tableKinds lists the typed columns per table. Unlisted columns stay text.
	tableKinds = map[string]map[string]kind{
		"accounts": {
			"created_at":         kindDateTime,
			"updated_at":         kindDateTime,
			"bed_count":          kindInteger,
			"annual_test_volume": kindInteger,
		},
		"bi_scores_daily": {
			"run_date":             kindDate,
			"t0_date":              kindDate,
			"p_win_90d":            kindNumber,
			"expected_amount_180d": kindNumber,
			"expected_value":       kindNumber,
			"is_priority":          kindInteger,
		},
		"orders":           orderKinds,
		"bi_orders":        orderKinds,
		"interactions":     {"occurred_at": kindDateTime},
		"opportunities":    opportunityKinds,
		"bi_opportunities": opportunityKinds,
		"products": {
			"requires_install": kindFlag,
			"list_price":       kindNumber,
		},
	}
)

// shape coerces t's cells by column kind and appends computed columns.
func shape(t *model.Table) *typedTable {
	kinds := tableKinds[t.Name]
	out := &typedTable{columns: make([]column, len(t.Columns))}
	for i, name := range t.Columns {
		out.columns[i] = column{name: name, kind: kinds[name]}
	}

	var derive func(vals []any) any
	switch t.Name {
	case "accounts":
		if i := t.Index("bed_count"); i >= 0 {
			out.columns = append(out.columns, column{name: ColSizeBucket})
			derive = func(vals []any) any { return SizeBucket(vals[i]) }
		}
	case "bi_scores_daily":
		if i := t.Index("p_win_90d"); i >= 0 {
			out.columns = append(out.columns, column{name: ColScoreGrade})
			derive = func(vals []any) any { return ScoreGrade(vals[i]) }
		}
	}

	out.rows = make([][]any, len(t.Rows))
	for r, vals := range t.Rows {
		row := make([]any, 0, len(out.columns))
		for i, v := range vals {
			row = append(row, coerce(out.columns[i].kind, v))
		}
		if derive != nil {
			row = append(row, derive(vals))
		}
		out.rows[r] = row
	}
	return out
}

// coerce converts v to the Go type for k. Unparseable values become nil,
// except flags, which become 0.
func coerce(k kind, v any) any {
	switch k {
	case kindDate, kindDateTime:
		if t, ok := model.ParseDate(v); ok {
			if k == kindDate {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			}
			return t
		}
		return nil
	case kindNumber:
		if f, ok := model.ParseFloat(v); ok {
			return f
		}
		return nil
	case kindInteger, kindFlag:
		if f, ok := model.ParseFloat(v); ok && f == math.Trunc(f) {
			return int64(f)
		}
		if k == kindFlag {
			return int64(0)
		}
		return nil
	}
	if s, ok := model.Text(v); ok {
		return s
	}
	return nil
}

// SizeBucket classifies an account by bed count: large at 200 or more,
// medium at 50 or more, otherwise small. Missing counts have no bucket.
func SizeBucket(bedCount any) any {
	b, ok := model.ParseFloat(bedCount)
	if !ok {
		return nil
	}
	switch {
	case b >= 200:
		return "large"
	case b >= 50:
		return "medium"
	}
	return "small"
}

// ScoreGrade grades a win probability: A at 0.7 or more, B at 0.4 or more,
// otherwise C.
func ScoreGrade(p any) any {
	v, ok := model.ParseFloat(p)
	if !ok {
		return nil
	}
	switch {
	case v >= 0.7:
		return "A"
	case v >= 0.4:
		return "B"
	}
	return "C"
}

func setCell(cell *xlsx.Cell, k kind, v any) {
	switch x := v.(type) {
	case nil:
	case time.Time:
		if k == kindDate {
			cell.SetDate(x)
		} else {
			cell.SetDateTime(x)
		}
	case float64:
		cell.SetFloat(x)
	case int64:
		cell.SetInt64(x)
	case string:
		cell.SetString(x)
	}
}
