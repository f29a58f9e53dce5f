// Package settings is a SQLite-backed key-value store for application
// settings. The session uses it as an alternative credential store when the
// configuration selects credential_store = "sqlite".
package settings

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// opTimeout bounds each Get/Set. The store interface is synchronous, so the
// timeout is the only guard against a locked database.
const opTimeout = 5 * time.Second

// Store implements Get/Set over a single settings table.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	getStmt *sql.Stmt
	setStmt *sql.Stmt
}

// Open opens (or creates) the settings database at dbPath, applies
// migrations, and prepares statements. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening settings database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("settings: open sqlite: %w", err)
	}

	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: set pragma WAL mode: %w", err)
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if s.getStmt, err = db.PrepareContext(ctx, "SELECT value FROM settings WHERE key = ?"); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: prepare get: %w", err)
	}

	if s.setStmt, err = db.PrepareContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: prepare set: %w", err)
	}

	return s, nil
}

// runMigrations applies all pending schema migrations to the database.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("settings: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("settings: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("settings: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Get returns the value stored under key, or "" when absent.
func (s *Store) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var value string

	err := s.getStmt.QueryRowContext(ctx, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("settings: get %q: %w", key, err)
	}

	return value, nil
}

// Set upserts value under key.
func (s *Store) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := s.setStmt.ExecContext(ctx, key, value, time.Now().Unix()); err != nil {
		return fmt.Errorf("settings: set %q: %w", key, err)
	}

	s.logger.Debug("setting stored", slog.String("key", key))

	return nil
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	return errors.Join(s.getStmt.Close(), s.setStmt.Close(), s.db.Close())
}
