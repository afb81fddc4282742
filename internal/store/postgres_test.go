package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscore/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxConnIface) {
	t.Helper()
	mock, err := pgxmock.NewConn(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close(context.Background()) }) //nolint:errcheck

	return &PostgresStore{conn: mock}, mock
}

func TestPostgresStore_LockAcquired(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(runLockKey).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(runLockKey).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	unlock, err := s.Lock(context.Background())
	require.NoError(t, err)
	unlock()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LockHeld(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(runLockKey).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	_, err := s.Lock(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLocked))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HasBeenLoaded(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM ingest_log WHERE file_path = \$1 AND content_hash = \$2`).
		WithArgs("2024-01-01/accounts.csv", "abc").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT 1 FROM ingest_log`).
		WithArgs("2024-01-01/accounts.csv", "def").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	ok, err := tx.HasBeenLoaded(ctx, "2024-01-01/accounts.csv", "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tx.HasBeenLoaded(ctx, "2024-01-01/accounts.csv", "def")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, tx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordLoad(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()
	loadedAt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ingest_log`).
		WithArgs("a.csv", "orders", int64(3), "h", loadedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.RecordLoad(ctx, model.SourceFile{Path: "a.csv", Table: "orders", RowCount: 3, ContentHash: "h", LoadedAt: loadedAt}))
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_EnsureTableAddsMissingColumns(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "accounts" \("account_id" TEXT, "city" TEXT, PRIMARY KEY \("account_id"\)\)`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT column_name FROM information_schema.columns`).
		WithArgs("accounts").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("account_id").AddRow("bed_count"))
	mock.ExpectExec(`ALTER TABLE "accounts" ADD COLUMN IF NOT EXISTS "city" TEXT`).
		WillReturnResult(pgxmock.NewResult("ALTER TABLE", 0))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.EnsureTable(ctx, accountsDef("account_id", "city")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertReplacesColumnsMissingFromHeader(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "accounts"`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT column_name FROM information_schema.columns`).
		WithArgs("accounts").
		WillReturnRows(pgxmock.NewRows([]string{"column_name"}).AddRow("account_id").AddRow("bed_count").AddRow("city"))
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_accounts"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_accounts"}, []string{"account_id", "bed_count"}).WillReturnResult(1)
	mock.ExpectExec(`ON CONFLICT \("account_id"\) DO UPDATE SET "bed_count" = EXCLUDED."bed_count", "city" = EXCLUDED."city"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	def := accountsDef("account_id", "bed_count")
	require.NoError(t, tx.EnsureTable(ctx, def))
	n, err := tx.Upsert(ctx, def, [][]string{{"A1", "350"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertConflictClassified(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`SAVEPOINT "load_upsert"`).WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_accounts"`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_accounts"}, []string{"account_id", "bed_count"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "accounts"`).WillReturnError(&pgconn.PgError{Code: "42P10", Message: "there is no unique or exclusion constraint matching the ON CONFLICT specification"})
	mock.ExpectExec(`ROLLBACK TO SAVEPOINT "load_upsert"`).WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	mock.ExpectExec(`RELEASE SAVEPOINT "load_upsert"`).WillReturnResult(pgxmock.NewResult("RELEASE", 0))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	def := accountsDef("account_id", "bed_count")
	err = tx.Savepoint(ctx, "load_upsert", func() error {
		_, err := tx.Upsert(ctx, def, [][]string{{"A1", "300"}})
		return err
	})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrConflict), err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Replace(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "orders"`).WillReturnResult(pgxmock.NewResult("DELETE", 5))
	mock.ExpectCopyFrom(pgx.Identifier{"orders"}, []string{"order_id", "account_id"}).WillReturnResult(2)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	n, err := tx.Replace(ctx, TableDef{Name: "orders", Columns: []string{"order_id", "account_id"}},
		[][]string{{"O1", "A1"}, {"O2", "A1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendScores(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectCopyFrom(pgx.Identifier{ScoresTable}, model.ScoreColumns).WillReturnResult(1)
	mock.ExpectCommit()

	err := s.AppendScores(context.Background(), []model.ScoreRecord{
		{RunDate: "2024-03-01", AccountID: "A1", PWin90d: 0.5, ExpectedValue: 3880, IsPriority: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendScoresBadRunDate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.AppendScores(context.Background(), []model.ScoreRecord{{RunDate: "yesterday", AccountID: "A1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run date")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_TableExists(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT to_regclass\(\$1\) IS NOT NULL`).
		WithArgs(`"feature_view"`).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(true))

	ok, err := s.TableExists(context.Background(), "feature_view")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListLedger(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	loadedAt := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT file_path, table_name, row_count, content_hash, loaded_at\s+FROM ingest_log`).
		WillReturnRows(pgxmock.NewRows([]string{"file_path", "table_name", "row_count", "content_hash", "loaded_at"}).
			AddRow("2024-01-01/accounts.csv", "accounts", int64(1), "abc", loadedAt))

	entries, err := s.ListLedger(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "accounts", entries[0].Table)
	assert.Equal(t, loadedAt, entries[0].LoadedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MigrateSkipsApplied(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock\(\$1\)`).WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectQuery(`SELECT filename FROM schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_ingest_log.sql").AddRow("002_bi_scores_daily.sql"))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).WithArgs(migrationLockKey).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, int64(3), normalizeValue(int32(3)))
	assert.Equal(t, float64(1.5), normalizeValue(float32(1.5)))
	assert.Equal(t, "x", normalizeValue([]byte("x")))
	assert.Nil(t, normalizeValue(nil))
}
