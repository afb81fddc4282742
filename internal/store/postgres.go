package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/db"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/resilience"
)

// Advisory lock keys. The run lock serializes ingest/score runs; the
// migration lock serializes overlapping migrate invocations.
const (
	runLockKey       int64 = 7340521
	migrationLockKey int64 = 8675309
)

// PostgresStore implements Store over a single pgx connection, so one run is
// one database session and session-level advisory locks hold for the run.
type PostgresStore struct {
	conn    db.Conn
	closeFn func(context.Context) error
}

// NewPostgres connects to PostgreSQL, retrying transient connection errors.
func NewPostgres(ctx context.Context, connString string, retry resilience.RetryConfig) (*PostgresStore, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	retry.OnRetry = resilience.RetryLogger("postgres", "connect")
	conn, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgx.Conn, error) {
		return pgx.ConnectConfig(ctx, cfg)
	})
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx) //nolint:errcheck
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{conn: conn, closeFn: conn.Close}, nil
}

// Migrate applies the embedded PostgreSQL migrations under an advisory lock.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			zap.L().Warn("postgres: failed to release migration advisory lock", zap.Error(err))
		}
	}()
	return migrate(ctx, s, "postgres")
}

func (s *PostgresStore) ensureMigrationTable(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return eris.Wrap(err, "postgres: ensure migration table")
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.conn.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func (s *PostgresStore) applyMigration(ctx context.Context, name, body string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin migration")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, body); err != nil {
		return eris.Wrapf(err, "postgres: apply migration %s", name)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
		name,
	); err != nil {
		return eris.Wrapf(err, "postgres: record migration %s", name)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit migration %s", name)
}

// Lock takes the session-level run lock without waiting. ErrLocked is
// returned when another session holds it.
func (s *PostgresStore) Lock(ctx context.Context) (func(), error) {
	var ok bool
	if err := s.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", runLockKey).Scan(&ok); err != nil {
		return nil, eris.Wrap(err, "postgres: try advisory lock")
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		if _, err := s.conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", runLockKey); err != nil {
			zap.L().Warn("postgres: failed to release run lock", zap.Error(err))
		}
	}, nil
}

// Close closes the connection.
func (s *PostgresStore) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(context.Background())
}

// Begin starts an ingestion transaction.
func (s *PostgresStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	return &pgTx{tx: tx, columns: make(map[string][]string)}, nil
}

// ListLedger returns every ledger entry, oldest first.
func (s *PostgresStore) ListLedger(ctx context.Context) ([]model.SourceFile, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT file_path, table_name, row_count, content_hash, loaded_at
		 FROM ingest_log ORDER BY loaded_at, file_path`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger")
	}
	defer rows.Close()

	var out []model.SourceFile
	for rows.Next() {
		var f model.SourceFile
		if err := rows.Scan(&f.Path, &f.Table, &f.RowCount, &f.ContentHash, &f.LoadedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger row")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate ledger")
}

// TableExists reports whether a table or view is visible on the search path.
func (s *PostgresStore) TableExists(ctx context.Context, name string) (bool, error) {
	var ok bool
	if err := s.conn.QueryRow(ctx, "SELECT to_regclass($1) IS NOT NULL", db.QuoteTable(name)).Scan(&ok); err != nil {
		return false, eris.Wrapf(err, "postgres: table exists %s", name)
	}
	return ok, nil
}

// Query reads the given columns (all when none are named) of a table or view.
func (s *PostgresStore) Query(ctx context.Context, table string, columns ...string) (*model.Table, error) {
	cols := "*"
	if len(columns) > 0 {
		cols = db.QuoteColumns(columns)
	}
	rows, err := s.conn.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", cols, db.QuoteTable(table)))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", table)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := &model.Table{Name: table, Columns: make([]string, len(fields))}
	for i, f := range fields {
		out.Columns[i] = f.Name
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		out.Rows = append(out.Rows, vals)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}

// ExecScript runs a multi-statement SQL script over the simple protocol.
func (s *PostgresStore) ExecScript(ctx context.Context, script string) error {
	_, err := s.conn.Exec(ctx, script)
	return eris.Wrap(err, "postgres: exec script")
}

// AppendScores copies a scoring batch into the scores table in one transaction.
func (s *PostgresStore) AppendScores(ctx context.Context, records []model.ScoreRecord) error {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		runDate, err := time.Parse(model.DateLayout, r.RunDate)
		if err != nil {
			return eris.Wrapf(err, "postgres: run date %q", r.RunDate)
		}
		rows = append(rows, []any{
			runDate, r.AccountID, nullIfEmpty(r.T0Date),
			r.PWin90d, r.ExpectedAmount180d, r.ExpectedValue, int16(r.IsPriority),
		})
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin scores tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := db.CopyFrom(ctx, tx, ScoresTable, model.ScoreColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: append scores")
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit scores")
	}

	zap.L().Info("scores appended", zap.String("table", ScoresTable), zap.Int("count", len(records)))
	return nil
}

// Mirror replaces target with a snapshot of source.
func (s *PostgresStore) Mirror(ctx context.Context, source, target string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin mirror tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+db.QuoteTable(target)); err != nil {
		return eris.Wrapf(err, "postgres: drop mirror %s", target)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s", db.QuoteTable(target), db.QuoteTable(source))); err != nil {
		return eris.Wrapf(err, "postgres: mirror %s into %s", source, target)
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit mirror %s", target)
}

// pgTx implements Tx over a pgx transaction.
type pgTx struct {
	tx      pgx.Tx
	columns map[string][]string
}

func (t *pgTx) HasBeenLoaded(ctx context.Context, path, hash string) (bool, error) {
	var one int
	err := t.tx.QueryRow(ctx,
		`SELECT 1 FROM ingest_log WHERE file_path = $1 AND content_hash = $2 LIMIT 1`,
		path, hash,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: ledger lookup %s", path)
	}
	return true, nil
}

func (t *pgTx) RecordLoad(ctx context.Context, f model.SourceFile) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ingest_log (file_path, table_name, row_count, content_hash, loaded_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		f.Path, f.Table, f.RowCount, f.ContentHash, f.LoadedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record load %s", f.Path)
}

func (t *pgTx) EnsureTable(ctx context.Context, def TableDef) error {
	defs := make([]string, 0, len(def.Columns)+1)
	for _, c := range def.Columns {
		defs = append(defs, db.QuoteIdent(c)+" TEXT")
	}
	if def.Key != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", db.QuoteIdent(def.Key)))
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", db.QuoteTable(def.Name), strings.Join(defs, ", "))
	if _, err := t.tx.Exec(ctx, create); err != nil {
		return eris.Wrapf(err, "postgres: create table %s", def.Name)
	}

	rows, err := t.tx.Query(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = $1`,
		def.Name,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: columns of %s", def.Name)
	}
	existing, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return eris.Wrapf(err, "postgres: scan columns of %s", def.Name)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}

	for _, c := range def.Columns {
		if have[c] {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s TEXT", db.QuoteTable(def.Name), db.QuoteIdent(c))
		if _, err := t.tx.Exec(ctx, alter); err != nil {
			return eris.Wrapf(err, "postgres: add column %s.%s", def.Name, c)
		}
		zap.L().Info("added column", zap.String("table", def.Name), zap.String("column", c))
		existing = append(existing, c)
	}
	t.columns[def.Name] = existing
	return nil
}

func (t *pgTx) Upsert(ctx context.Context, def TableDef, rows [][]string) (int64, error) {
	n, err := db.BulkUpsert(ctx, t.tx, db.UpsertConfig{
		Table:        def.Name,
		Columns:      def.Columns,
		ConflictKeys: []string{def.Key},
		UpdateCols:   replaceColumns(def, t.columns[def.Name]),
	}, toAny(rows))
	if err != nil {
		return 0, classify(err, db.IsConflict, "postgres: upsert "+def.Name)
	}
	return n, nil
}

func (t *pgTx) Replace(ctx context.Context, def TableDef, rows [][]string) (int64, error) {
	if _, err := t.tx.Exec(ctx, "DELETE FROM "+db.QuoteTable(def.Name)); err != nil {
		return 0, eris.Wrapf(err, "postgres: clear %s", def.Name)
	}
	n, err := db.CopyFrom(ctx, t.tx, def.Name, def.Columns, toAny(rows))
	if err != nil {
		return 0, classify(err, db.IsConflict, "postgres: insert "+def.Name)
	}
	return n, nil
}

func (t *pgTx) Savepoint(ctx context.Context, name string, fn func() error) error {
	sp := db.QuoteIdent(name)
	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return eris.Wrapf(err, "postgres: savepoint %s", name)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return eris.Wrapf(rbErr, "postgres: rollback to savepoint %s", name)
		}
		if _, relErr := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); relErr != nil {
			return eris.Wrapf(relErr, "postgres: release savepoint %s", name)
		}
		return err
	}
	_, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+sp)
	return eris.Wrapf(err, "postgres: release savepoint %s", name)
}

func (t *pgTx) Commit(ctx context.Context) error {
	return eris.Wrap(t.tx.Commit(ctx), "postgres: commit")
}

func (t *pgTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "postgres: rollback")
	}
	return nil
}

// normalizeValue maps pgx decoded values onto the model.Table value set.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64, int64, time.Time:
		return x
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return fmt.Sprint(x)
	}
}
