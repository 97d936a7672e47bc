package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var EmbeddedMigrationsFS embed.FS

// MigrationFile represents a migration file with its metadata
type MigrationFile struct {
	FileName    string
	Version     int
	Description string
	FilePath    string
}

// parseMigrationFileName parses NNNN_main_description.sql
func parseMigrationFileName(fileName string) (*MigrationFile, error) {
	if !strings.HasSuffix(fileName, ".sql") {
		return nil, fmt.Errorf("migration file must have .sql extension: %s", fileName)
	}
	parts := strings.SplitN(strings.TrimSuffix(fileName, ".sql"), "_", 3)
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid migration file name format: %s (expected format: 0001_main_description.sql)", fileName)
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid version number in migration file %s: %w", fileName, err)
	}
	if parts[1] != "main" {
		return nil, fmt.Errorf("unknown migration type in filename %s: %s", fileName, parts[1])
	}

	return &MigrationFile{
		FileName:    fileName,
		Version:     version,
		Description: parts[2],
		FilePath:    path.Join("migrations", fileName),
	}, nil
}

// getMigrationFiles reads and sorts the migration files of fsys
func getMigrationFiles(fsys fs.FS) ([]*MigrationFile, error) {
	files, err := fs.ReadDir(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []*MigrationFile
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		migration, err := parseMigrationFileName(f.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// getAppliedMigrations returns a set of applied migration filenames
func getAppliedMigrations(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	applied := make(map[string]bool)

	rows, err := db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var fname string
		if err := rows.Scan(&fname); err != nil {
			return nil, fmt.Errorf("failed to scan migration filename: %w", err)
		}
		applied[fname] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migration rows: %w", err)
	}
	return applied, nil
}

// applyMigration applies a single migration and records it in one transaction
func applyMigration(ctx context.Context, db *sql.DB, fsys fs.FS, migration *MigrationFile) error {
	content, err := fs.ReadFile(fsys, migration.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file %s: %w", migration.FilePath, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", migration.FileName, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", migration.FileName, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES (?)`, migration.FileName); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", migration.FileName, err)
	}
	return tx.Commit()
}

// Migrate applies all pending embedded migrations
func (db *Database) Migrate(ctx context.Context) error {
	return db.migrateFrom(ctx, EmbeddedMigrationsFS)
}

func (db *Database) migrateFrom(ctx context.Context, fsys fs.FS) error {
	if err := ensureMigrationsTable(ctx, db.mainDB); err != nil {
		return err
	}
	migrations, err := getMigrationFiles(fsys)
	if err != nil {
		return err
	}
	applied, err := getAppliedMigrations(ctx, db.mainDB)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.FileName] {
			continue
		}
		if err := applyMigration(ctx, db.mainDB, fsys, migration); err != nil {
			return err
		}
		db.logger.Info("applied migration", zap.String("file", migration.FileName))
	}
	return nil
}
