package ingest

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/store"
)

// Loader writes parsed batches into their tables following each table's
// policy.
type Loader struct {
	log *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{log: zap.L().With(zap.String("component", "ingest.loader"))}
}

// Load ensures the table exists with the batch's columns and writes the
// batch inside tx. Strategies are tried in policy order; a store conflict
// rolls back the failed attempt and moves on to the next strategy. The
// number of rows written is returned.
func (l *Loader) Load(ctx context.Context, tx store.Tx, table Table, batch *Batch) (int64, error) {
	def := store.TableDef{Name: table.Name, Columns: batch.Header}
	rows := batch.Rows

	if table.Kind == Master {
		def.Key = keyColumn(table.Key, batch.Header)
		rows = dedupeByKey(rows, indexOf(batch.Header, def.Key))
	}

	if err := tx.EnsureTable(ctx, def); err != nil {
		return 0, err
	}

	strategies := table.Policy().Strategies()
	for i, strategy := range strategies {
		var n int64
		err := tx.Savepoint(ctx, "load_"+string(strategy), func() error {
			var err error
			n, err = apply(ctx, tx, strategy, def, rows)
			return err
		})
		if err == nil {
			return n, nil
		}
		if i == len(strategies)-1 || !eris.Is(err, store.ErrConflict) {
			return 0, eris.Wrapf(err, "ingest: %s %s", strategy, table.Name)
		}
		l.log.Warn("conflict during load, falling back",
			zap.String("table", table.Name),
			zap.String("strategy", string(strategy)),
			zap.String("next", string(strategies[i+1])),
			zap.Error(err),
		)
	}
	return 0, nil
}

func apply(ctx context.Context, tx store.Tx, strategy Strategy, def store.TableDef, rows [][]string) (int64, error) {
	switch strategy {
	case StrategyUpsert:
		return tx.Upsert(ctx, def, rows)
	case StrategyReload:
		return tx.Replace(ctx, def, rows)
	default:
		return 0, eris.Errorf("ingest: unknown strategy %q", strategy)
	}
}

// keyColumn returns the catalog key when the header carries it and the first
// header column otherwise.
func keyColumn(key string, header []string) string {
	if indexOf(header, key) >= 0 {
		return key
	}
	return header[0]
}

// dedupeByKey keeps the last row for each key value, in first-seen order.
func dedupeByKey(rows [][]string, keyIdx int) [][]string {
	pos := make(map[string]int, len(rows))
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		k := row[keyIdx]
		if i, ok := pos[k]; ok {
			out[i] = row
			continue
		}
		pos[k] = len(out)
		out = append(out, row)
	}
	return out
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
