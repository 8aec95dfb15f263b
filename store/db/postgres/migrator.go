package postgres

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/recall/internal/version"
)

//go:embed migrations/*/*.sql
var migrationFS embed.FS

// Migrate applies all pending schema migrations, oldest version first.
// Steps are keyed by file path in migration_history and applied at most
// once; the first failure aborts the process (no automatic rollback of
// earlier steps).
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migration_history (
			version TEXT NOT NULL PRIMARY KEY,
			created_ts BIGINT NOT NULL
		)
	`); err != nil {
		return errors.Wrap(err, "failed to create migration_history table")
	}

	applied, err := d.listAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	steps, err := listMigrationSteps(migrationFS)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if applied[step] {
			continue
		}

		buf, err := fs.ReadFile(migrationFS, "migrations/"+step)
		if err != nil {
			return errors.Wrapf(err, "failed to read migration file %q", step)
		}

		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "failed to begin migration transaction")
		}
		if _, err := tx.ExecContext(ctx, string(buf)); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to apply migration %q", step)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO migration_history (version, created_ts) VALUES ($1, $2)",
			step, time.Now().Unix(),
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to record migration %q", step)
		}
		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "failed to commit migration %q", step)
		}

		slog.Info("applied schema migration", "step", step)
	}

	return nil
}

func (d *DB) listAppliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT version FROM migration_history")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list applied migrations")
	}
	defer rows.Close()

	applied := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.Wrap(err, "failed to scan migration history")
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// listMigrationSteps returns every migration step path relative to the
// migrations root, ordered by semver minor version then file name.
func listMigrationSteps(fsys embed.FS) ([]string, error) {
	dirs, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migrations directory")
	}

	versions := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir.IsDir() {
			versions = append(versions, dir.Name())
		}
	}
	version.SortVersion(versions)

	var steps []string
	for _, v := range versions {
		entries, err := fs.ReadDir(fsys, "migrations/"+v)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read migrations for version %s", v)
		}
		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			steps = append(steps, v+"/"+name)
		}
	}
	return steps, nil
}
