package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sells-group/leadscore/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The handle is limited to one connection so a run owns a single session and
// the pragmas apply to every statement.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded SQLite migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s, "sqlite")
}

func (s *SQLiteStore) ensureMigrationTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`)
	return eris.Wrap(err, "sqlite: ensure migration table")
}

func (s *SQLiteStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query applied migrations")
	}
	defer rows.Close() //nolint:errcheck

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (s *SQLiteStore) applyMigration(ctx context.Context, name, body string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin migration")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return eris.Wrapf(err, "sqlite: apply migration %s", name)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (filename, applied_at) VALUES (?, ?)",
		name, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return eris.Wrapf(err, "sqlite: record migration %s", name)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit migration %s", name)
}

// Lock is a no-op: SQLite serializes writers itself and busy_timeout makes
// a second writer wait instead of failing.
func (s *SQLiteStore) Lock(_ context.Context) (func(), error) {
	return func() {}, nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Begin starts an ingestion transaction.
func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	return &sqliteTx{tx: tx, columns: make(map[string][]string)}, nil
}

// ListLedger returns every ledger entry, oldest first.
func (s *SQLiteStore) ListLedger(ctx context.Context) ([]model.SourceFile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, table_name, row_count, content_hash, loaded_at
		 FROM ingest_log ORDER BY loaded_at, file_path`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SourceFile
	for rows.Next() {
		var f model.SourceFile
		var loadedAt string
		if err := rows.Scan(&f.Path, &f.Table, &f.RowCount, &f.ContentHash, &loadedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger row")
		}
		if t, err := time.Parse(time.RFC3339Nano, loadedAt); err == nil {
			f.LoadedAt = t
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate ledger")
}

// TableExists reports whether a table or view with the given name exists.
func (s *SQLiteStore) TableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`,
		name,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: table exists %s", name)
	}
	return n > 0, nil
}

// Query reads the given columns (all when none are named) of a table or view.
func (s *SQLiteStore) Query(ctx context.Context, table string, columns ...string) (*model.Table, error) {
	cols := "*"
	if len(columns) > 0 {
		cols = quoteColumns(columns)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", cols, quoteIdent(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close() //nolint:errcheck

	names, err := rows.Columns()
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: columns of %s", table)
	}

	out := &model.Table{Name: table, Columns: names}
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

// ExecScript runs a multi-statement SQL script.
func (s *SQLiteStore) ExecScript(ctx context.Context, script string) error {
	_, err := s.db.ExecContext(ctx, script)
	return eris.Wrap(err, "sqlite: exec script")
}

// AppendScores inserts a scoring batch in one transaction.
func (s *SQLiteStore) AppendScores(ctx context.Context, records []model.ScoreRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin scores tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertSQL(ScoresTable, model.ScoreColumns))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare score insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.RunDate, r.AccountID, nullIfEmpty(r.T0Date),
			r.PWin90d, r.ExpectedAmount180d, r.ExpectedValue, r.IsPriority,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert score for %s", r.AccountID)
		}
	}

	if err := tx.Commit(); err != nil {
		return eris.Wrap(err, "sqlite: commit scores")
	}

	zap.L().Info("scores appended", zap.String("table", ScoresTable), zap.Int("count", len(records)))
	return nil
}

// Mirror replaces target with a snapshot of source.
func (s *SQLiteStore) Mirror(ctx context.Context, source, target string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin mirror tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(target)); err != nil {
		return eris.Wrapf(err, "sqlite: drop mirror %s", target)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", quoteIdent(target), quoteIdent(source))); err != nil {
		return eris.Wrapf(err, "sqlite: mirror %s into %s", source, target)
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit mirror %s", target)
}

// sqliteTx implements Tx over a database/sql transaction.
type sqliteTx struct {
	tx      *sql.Tx
	columns map[string][]string
}

func (t *sqliteTx) HasBeenLoaded(ctx context.Context, path, hash string) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM ingest_log WHERE file_path = ? AND content_hash = ? LIMIT 1`,
		path, hash,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: ledger lookup %s", path)
	}
	return true, nil
}

func (t *sqliteTx) RecordLoad(ctx context.Context, f model.SourceFile) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ingest_log (file_path, table_name, row_count, content_hash, loaded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		f.Path, f.Table, f.RowCount, f.ContentHash, f.LoadedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrapf(err, "sqlite: record load %s", f.Path)
}

func (t *sqliteTx) EnsureTable(ctx context.Context, def TableDef) error {
	defs := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		defs = append(defs, quoteIdent(c)+" TEXT")
	}
	if def.Key != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(def.Key)))
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(def.Name), strings.Join(defs, ", "))
	if _, err := t.tx.ExecContext(ctx, create); err != nil {
		return eris.Wrapf(err, "sqlite: create table %s", def.Name)
	}

	rows, err := t.tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", def.Name)
	if err != nil {
		return eris.Wrapf(err, "sqlite: table info %s", def.Name)
	}
	existing := make(map[string]bool)
	var all []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close() //nolint:errcheck
			return eris.Wrapf(err, "sqlite: scan table info %s", def.Name)
		}
		existing[name] = true
		all = append(all, name)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "sqlite: table info %s", def.Name)
	}

	for _, c := range def.Columns {
		if existing[c] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", quoteIdent(def.Name), quoteIdent(c))
		if _, err := t.tx.ExecContext(ctx, alter); err != nil {
			return eris.Wrapf(err, "sqlite: add column %s.%s", def.Name, c)
		}
		zap.L().Info("added column", zap.String("table", def.Name), zap.String("column", c))
		all = append(all, c)
	}
	t.columns[def.Name] = all
	return nil
}

func (t *sqliteTx) Upsert(ctx context.Context, def TableDef, rows [][]string) (int64, error) {
	if def.Key == "" {
		return 0, eris.Errorf("sqlite: upsert %s: no key column", def.Name)
	}

	var sets []string
	for _, c := range replaceColumns(def, t.columns[def.Name]) {
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	query := fmt.Sprintf("%s ON CONFLICT (%s) %s", insertSQL(def.Name, def.Columns), quoteIdent(def.Key), action)

	n, err := t.execRows(ctx, query, rows)
	if err != nil {
		return 0, classify(err, isSQLiteConflict, "sqlite: upsert "+def.Name)
	}
	return n, nil
}

func (t *sqliteTx) Replace(ctx context.Context, def TableDef, rows [][]string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(def.Name)); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear %s", def.Name)
	}
	n, err := t.execRows(ctx, insertSQL(def.Name, def.Columns), rows)
	if err != nil {
		return 0, classify(err, isSQLiteConflict, "sqlite: insert "+def.Name)
	}
	return n, nil
}

func (t *sqliteTx) execRows(ctx context.Context, query string, rows [][]string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := t.tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close() //nolint:errcheck

	for _, vals := range toAny(rows) {
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			return 0, err
		}
	}
	return int64(len(rows)), nil
}

func (t *sqliteTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+quoteIdent(name)); err != nil {
		return eris.Wrapf(err, "sqlite: savepoint %s", name)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+quoteIdent(name)); rbErr != nil {
			return eris.Wrapf(rbErr, "sqlite: rollback to savepoint %s", name)
		}
		if _, relErr := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+quoteIdent(name)); relErr != nil {
			return eris.Wrapf(relErr, "sqlite: release savepoint %s", name)
		}
		return err
	}
	_, err := t.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+quoteIdent(name))
	return eris.Wrapf(err, "sqlite: release savepoint %s", name)
}

func (t *sqliteTx) Commit(_ context.Context) error {
	return eris.Wrap(t.tx.Commit(), "sqlite: commit")
}

func (t *sqliteTx) Rollback(_ context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return eris.Wrap(err, "sqlite: rollback")
	}
	return nil
}

// isSQLiteConflict matches constraint failures (primary and extended codes)
// and upserts whose conflict target is not a unique index.
func isSQLiteConflict(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "does not match any PRIMARY KEY or UNIQUE constraint")
}

func insertSQL(table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quoteIdent(table), quoteColumns(columns), placeholders)
}

// quoteIdent quotes an identifier for SQLite, doubling embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
