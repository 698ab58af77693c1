package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// ApplyMigrations runs every pending *.up.sql file of migrationsDir in name order
// and returns the versions it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	return ApplyMigrationsFS(ctx, db, os.DirFS(migrationsDir))
}

func ApplyMigrationsFS(ctx context.Context, db *sql.DB, fsys fs.FS) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}

	files, err := upMigrations(fsys)
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0)
	for _, version := range files {
		migrated, err := isMigrated(ctx, db, version)
		if err != nil {
			return applied, err
		}
		if migrated {
			continue
		}

		contents, err := fs.ReadFile(fsys, version)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", version, err)
		}
		if err := applyMigration(ctx, db, version, string(contents)); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

func upMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			files = append(files, path.Clean(name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func applyMigration(ctx context.Context, db *sql.DB, version, contents string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, contents); err != nil {
		return fmt.Errorf("execute migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, version); err != nil {
		return fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}

// RollbackMigrations reverts the last steps applied migrations, newest first,
// using the matching *.down.sql files. steps <= 0 reverts all of them.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string, steps int) ([]string, error) {
	return RollbackMigrationsFS(ctx, db, os.DirFS(migrationsDir), steps)
}

func RollbackMigrationsFS(ctx context.Context, db *sql.DB, fsys fs.FS, steps int) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	versions, err := appliedVersions(ctx, db)
	if err != nil {
		return nil, err
	}
	if steps > 0 && steps < len(versions) {
		versions = versions[:steps]
	}

	reverted := make([]string, 0, len(versions))
	for _, version := range versions {
		name := downMigrationName(version)
		contents, err := fs.ReadFile(fsys, name)
		if err != nil {
			return reverted, fmt.Errorf("read down migration for %s: %w", version, err)
		}
		if err := revertMigration(ctx, db, version, string(contents)); err != nil {
			return reverted, err
		}
		reverted = append(reverted, version)
	}
	return reverted, nil
}

// downMigrationName maps "0001_items.up.sql" to "0001_items.down.sql".
func downMigrationName(version string) string {
	return strings.TrimSuffix(version, ".up.sql") + ".down.sql"
}

// appliedVersions lists recorded migrations, newest first.
func appliedVersions(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

func revertMigration(ctx context.Context, db *sql.DB, version, contents string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollback tx %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if strings.TrimSpace(contents) != "" {
		if _, err := tx.ExecContext(ctx, contents); err != nil {
			return fmt.Errorf("execute down migration %s: %w", version, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, version); err != nil {
		return fmt.Errorf("forget migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback %s: %w", version, err)
	}
	return nil
}
