// Package store persists the landed source tables, the content ledger and
// the daily score batches in SQLite or PostgreSQL.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/model"
)

// Well-known tables owned by the store itself.
const (
	LedgerTable = "ingest_log"
	ScoresTable = "bi_scores_daily"
)

var (
	// ErrConflict reports a constraint conflict during a bulk write:
	// a uniqueness violation, an ON CONFLICT target without a matching
	// unique constraint, or a key affected twice by one statement.
	ErrConflict = eris.New("store: constraint conflict")

	// ErrLocked is returned by Lock when another run holds the run lock.
	ErrLocked = eris.New("store: another run holds the lock")
)

// TableDef describes a landed table. Every column is stored as TEXT.
// Key names the natural key column for master tables and is empty for
// transactional tables.
type TableDef struct {
	Name    string
	Columns []string
	Key     string
}

// Store defines the persistence interface for ingestion and scoring.
type Store interface {
	// Lifecycle
	Migrate(ctx context.Context) error
	Lock(ctx context.Context) (unlock func(), err error)
	Close() error

	// Per-file ingestion unit of work
	Begin(ctx context.Context) (Tx, error)

	// Ledger
	ListLedger(ctx context.Context) ([]model.SourceFile, error)

	// Reads and scripts
	TableExists(ctx context.Context, name string) (bool, error)
	Query(ctx context.Context, table string, columns ...string) (*model.Table, error)
	ExecScript(ctx context.Context, script string) error

	// Scores
	AppendScores(ctx context.Context, records []model.ScoreRecord) error

	// Mirror replaces target with a copy of source.
	Mirror(ctx context.Context, source, target string) error
}

// Tx is one ingestion transaction: ledger lookups, table writes and the
// ledger record commit or roll back together.
type Tx interface {
	HasBeenLoaded(ctx context.Context, path, hash string) (bool, error)
	RecordLoad(ctx context.Context, f model.SourceFile) error

	// EnsureTable creates def.Name when absent and adds any header
	// columns the existing table lacks. The resulting column set is
	// remembered for later upserts in the same transaction.
	EnsureTable(ctx context.Context, def TableDef) error
	// Upsert inserts rows, replacing the whole row when its key already
	// exists: table columns absent from def.Columns become NULL.
	// Conflicts are reported as ErrConflict.
	Upsert(ctx context.Context, def TableDef, rows [][]string) (int64, error)
	// Replace deletes every row of def.Name and inserts rows.
	Replace(ctx context.Context, def TableDef, rows [][]string) (int64, error)

	// Savepoint runs fn inside a named savepoint, rolling back to it when
	// fn fails. The error from fn is returned unchanged.
	Savepoint(ctx context.Context, name string, fn func() error) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

func toAny(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		out[i] = vals
	}
	return out
}

// replaceColumns lists the columns an upsert overwrites on a key match:
// every known table column except the key, falling back to the batch
// header when the table's columns were not recorded.
func replaceColumns(def TableDef, known []string) []string {
	cols := known
	if len(cols) == 0 {
		cols = def.Columns
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != def.Key {
			out = append(out, c)
		}
	}
	return out
}

func classify(err error, isConflict func(error) bool, msg string) error {
	if isConflict(err) {
		return eris.Wrapf(ErrConflict, "%s: %v", msg, err)
	}
	return eris.Wrap(err, msg)
}
