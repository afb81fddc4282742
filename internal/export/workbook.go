// Package export writes store tables to a spreadsheet workbook and score
// batches to CSV for downstream reporting.
package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/model"
)

// DefaultTables is the workbook's sheet list, in order.
var DefaultTables = []string{
	"bi_scores_daily",
	"accounts",
	"bi_opportunities",
	"bi_orders",
	"interactions",
	"opportunities",
	"orders",
	"products",
}

// Computed column names.
const (
	ColSizeBucket = "size_bucket"
	ColScoreGrade = "score_grade"
)

// TableReader is the read side of the store the exporter needs.
type TableReader interface {
	TableExists(ctx context.Context, name string) (bool, error)
	Query(ctx context.Context, table string, columns ...string) (*model.Table, error)
}

// Workbook builds one sheet per table. Tables that do not exist produce an
// empty sheet.
func Workbook(ctx context.Context, src TableReader, tables []string) (*xlsx.File, error) {
	if len(tables) == 0 {
		tables = DefaultTables
	}
	log := zap.L().With(zap.String("component", "export.workbook"))

	f := xlsx.NewFile()
	for _, name := range tables {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "export: context cancelled")
		}
		sheet, err := f.AddSheet(sheetName(name))
		if err != nil {
			return nil, eris.Wrapf(err, "export: add sheet %s", name)
		}

		ok, err := src.TableExists(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: check %s", name)
		}
		if !ok {
			log.Warn("table missing, writing empty sheet", zap.String("table", name))
			continue
		}

		t, err := src.Query(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "export: read %s", name)
		}
		writeSheet(sheet, shape(t))
		log.Debug("sheet written", zap.String("table", name), zap.Int("rows", t.Len()))
	}
	return f, nil
}

// WriteWorkbook builds the workbook and saves it to path, creating parent
// directories as needed.
func WriteWorkbook(ctx context.Context, src TableReader, path string, tables []string) error {
	f, err := Workbook(ctx, src, tables)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("workbook exported", zap.String("path", path), zap.Int("sheets", len(f.Sheets)))
	return nil
}

func writeSheet(sheet *xlsx.Sheet, t *typedTable) {
	header := sheet.AddRow()
	for _, c := range t.columns {
		header.AddCell().SetString(c.name)
	}
	for _, vals := range t.rows {
		row := sheet.AddRow()
		for i, c := range t.columns {
			setCell(row.AddCell(), c.kind, vals[i])
		}
	}
}

// Excel caps sheet names at 31 characters and forbids a few symbols.
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
