// Package database provides the sqlite backed user store for checkweb
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"go.uber.org/zap"
)

// DBConfig represents database configuration
type DBConfig struct {
	// Path to the main database file
	Path string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Performance settings
	WALMode     bool // Write-Ahead Logging
	BusyTimeout time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig(path string) *DBConfig {
	return &DBConfig{
		Path:            path,
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
		WALMode:         true,
		BusyTimeout:     5 * time.Second,
	}
}

// Database wraps the main sqlite connection
type Database struct {
	mainDB   *sql.DB
	dbconfig *DBConfig
	logger   *zap.Logger
}

// OpenDatabase opens (and creates if needed) the database file
func OpenDatabase(dbconfig *DBConfig, logger *zap.Logger) (*Database, error) {
	if dbconfig == nil || dbconfig.Path == "" {
		return nil, fmt.Errorf("database path not configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(dbconfig.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", dbconfig.Path, dbconfig.BusyTimeout.Milliseconds())
	if dbconfig.WALMode {
		dsn += "&_journal_mode=WAL"
	}

	mainDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbconfig.Path, err)
	}
	mainDB.SetMaxOpenConns(dbconfig.MaxOpenConns)
	mainDB.SetMaxIdleConns(dbconfig.MaxIdleConns)
	mainDB.SetConnMaxLifetime(dbconfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mainDB.PingContext(ctx); err != nil {
		mainDB.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", dbconfig.Path, err)
	}

	logger.Info("database opened", zap.String("path", dbconfig.Path), zap.Bool("wal", dbconfig.WALMode))

	return &Database{
		mainDB:   mainDB,
		dbconfig: dbconfig,
		logger:   logger,
	}, nil
}

// GetMainDB returns the main database connection for direct access
// This should only be used by specialized tools
func (db *Database) GetMainDB() *sql.DB {
	return db.mainDB
}

// Shutdown closes the database
func (db *Database) Shutdown() error {
	if db == nil || db.mainDB == nil {
		return nil
	}
	if err := db.mainDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.logger.Info("database closed", zap.String("path", db.dbconfig.Path))
	return nil
}
