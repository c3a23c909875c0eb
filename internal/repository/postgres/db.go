// Package postgres is the account store for deployments that share one
// PostgreSQL database between several servers.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/config"
	"github.com/koor-fr/security-component/internal/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const connectTimeout = 10 * time.Second

// DB is an open PostgreSQL account store.
type DB struct {
	pool *pgxpool.Pool

	// migrations is a database/sql view of pool for goose.
	migrations *sql.DB

	logger zerolog.Logger
}

// NewDB connects to the database described by cfg.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL settings: %w", err)
	}

	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	poolCfg.ConnConfig.ConnectTimeout = connectTimeout

	return connect(ctx, poolCfg, logger)
}

func connect(ctx context.Context, poolCfg *pgxpool.Config, logger zerolog.Logger) (*DB, error) {
	logger = logger.With().Str("store", "postgres").Logger()
	if logger.GetLevel() <= zerolog.DebugLevel {
		poolCfg.ConnConfig.Tracer = queryLogger{logger: logger}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach PostgreSQL at %s: %w", poolCfg.ConnConfig.Host, err)
	}

	logger.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("account store opened")

	return &DB{
		pool:       pool,
		migrations: stdlib.OpenDBFromPool(pool),
		logger:     logger,
	}, nil
}

// Open is the repository.Opener for the postgres driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (repository.Store, error) {
	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Close closes the pool.
func (db *DB) Close() error {
	// The database/sql handle keeps idle pool connections checked out.
	if err := db.migrations.Close(); err != nil {
		db.logger.Warn().Err(err).Msg("failed to close migration handle")
	}
	db.pool.Close()
	db.logger.Info().Msg("account store closed")
	return nil
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Repositories returns repositories bound to this pool.
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
	return goose.NewProvider(goose.DialectPostgres, db.migrations, fsys)
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
func (db *DB) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, db.pool, fn)
}

// queryLogger logs every statement at debug level.
type queryLogger struct {
	logger zerolog.Logger
}

type queryStartKey struct{}

type queryStart struct {
	sql string
	at  time.Time
}

func (q queryLogger) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, at: time.Now()})
}

func (q queryLogger) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	q.logger.Debug().
		Err(data.Err).
		Str("sql", start.sql).
		Dur("duration", time.Since(start.at)).
		Str("command_tag", data.CommandTag.String()).
		Msg("query")
}

var (
	_ repository.Store = (*DB)(nil)
	_ pgx.QueryTracer  = queryLogger{}
)
