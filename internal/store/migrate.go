package store

import (
	"context"
	"embed"
	"io/fs"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// migrationTarget is the dialect-specific half of migrate.
type migrationTarget interface {
	ensureMigrationTable(ctx context.Context) error
	appliedMigrations(ctx context.Context) (map[string]bool, error)
	applyMigration(ctx context.Context, name, body string) error
}

// migrate applies every .sql file under migrations/<dialect> that is not yet
// recorded in schema_migrations, in lexicographic order.
func migrate(ctx context.Context, target migrationTarget, dialect string) error {
	log := zap.L().With(zap.String("component", "store.migrate"), zap.String("dialect", dialect))

	if err := target.ensureMigrationTable(ctx); err != nil {
		return err
	}

	dir := "migrations/" + dialect
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return eris.Wrapf(err, "store: read migration dir %s", dir)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := target.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile(dir + "/" + name)
		if err != nil {
			return eris.Wrapf(err, "store: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))
		if err := target.applyMigration(ctx, name, string(data)); err != nil {
			return err
		}
	}

	return nil
}
