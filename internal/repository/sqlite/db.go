// Package sqlite is the embedded account store, built on the pure Go
// modernc.org/sqlite driver so the server ships as a single static binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/koor-fr/security-component/internal/config"
	"github.com/koor-fr/security-component/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// Options describes one SQLite database file and the pragmas set on each
// connection to it.
type Options struct {
	Path        string
	JournalMode string
	Synchronous string
	BusyTimeout int // milliseconds
	CacheSize   int // negative: KiB, positive: pages
}

// DefaultOptions returns WAL mode with a five second busy timeout.
func DefaultOptions(path string) Options {
	return Options{
		Path:        path,
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		BusyTimeout: 5000,
		CacheSize:   -2000,
	}
}

func optionsFrom(cfg config.DatabaseConfig) Options {
	o := DefaultOptions(cfg.Path)
	if cfg.JournalMode != "" {
		o.JournalMode = cfg.JournalMode
	}
	if cfg.SynchronousMode != "" {
		o.Synchronous = cfg.SynchronousMode
	}
	if cfg.BusyTimeout > 0 {
		o.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		o.CacheSize = cfg.CacheSize
	}
	return o
}

// DSN returns the modernc connection string. Journal and sync pragmas are
// meaningless for an in-memory database and are left out.
func (o Options) DSN() string {
	pragma := func(name, value string) string { return name + "(" + value + ")" }

	q := url.Values{}
	q.Add("_pragma", pragma("foreign_keys", "1"))
	q.Add("_pragma", pragma("busy_timeout", strconv.Itoa(o.BusyTimeout)))
	q.Add("_pragma", pragma("cache_size", strconv.Itoa(o.CacheSize)))
	if o.Path != memoryPath {
		q.Add("_pragma", pragma("journal_mode", strings.ToLower(o.JournalMode)))
		q.Add("_pragma", pragma("synchronous", strings.ToLower(o.Synchronous)))
	}
	return o.Path + "?" + q.Encode()
}

// DB is an open SQLite account store.
type DB struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// NewDB opens the database described by o. SQLite allows one writer at a
// time, so the pool holds a single connection; an in-memory database would
// otherwise be private to each connection.
func NewDB(ctx context.Context, o Options, logger zerolog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", o.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open SQLite database %s: %w", o.Path, err)
	}

	logger = logger.With().Str("store", "sqlite").Logger()
	logger.Info().
		Str("path", o.Path).
		Str("journal_mode", o.JournalMode).
		Msg("account store opened")

	return &DB{conn: sqlDB, logger: logger}, nil
}

// Open is the repository.Opener for the sqlite driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (repository.Store, error) {
	db, err := NewDB(ctx, optionsFrom(cfg), logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close closes the database.
func (db *DB) Close() error {
	db.logger.Info().Msg("account store closed")
	return db.conn.Close()
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Repositories returns repositories bound to this database.
func (db *DB) Repositories() *repository.Repositories {
	return &repository.Repositories{
		User: NewUserRepository(db),
		Role: NewRoleRepository(db),
	}
}

// MigrationProvider returns a goose provider over the embedded migrations.
func (db *DB) MigrationProvider() (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return goose.NewProvider(goose.DialectSQLite3, db.conn, fsys)
}

// Migrate applies pending migrations.
func (db *DB) Migrate(ctx context.Context) error {
	provider, err := db.MigrationProvider()
	if err != nil {
		return err
	}
	return repository.ApplyMigrations(ctx, provider, db.logger)
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ repository.Store = (*DB)(nil)
