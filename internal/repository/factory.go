package repository

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/config"
)

// Store is an open connection to the account store.
type Store interface {
	// Health pings the database.
	Health(ctx context.Context) error

	// Close releases the connection pool.
	Close() error

	// Repositories returns repositories bound to this connection.
	Repositories() *Repositories

	// MigrationProvider returns a goose provider over the driver's embedded migrations.
	MigrationProvider() (*goose.Provider, error)

	// Migrate applies pending migrations.
	Migrate(ctx context.Context) error
}

// Opener opens a Store for one database driver.
type Opener func(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (Store, error)

// Factory opens the store named by the configured driver. Drivers are
// registered by the caller so this package imports none of them.
type Factory struct {
	cfg     config.DatabaseConfig
	logger  zerolog.Logger
	openers map[string]Opener
}

// NewFactory creates a factory with no drivers registered.
func NewFactory(cfg config.DatabaseConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:     cfg,
		logger:  logger,
		openers: make(map[string]Opener),
	}
}

// Register adds an opener for a driver name.
func (f *Factory) Register(driver string, opener Opener) *Factory {
	f.openers[driver] = opener
	return f
}

// Open opens the configured store and, when migrate is set, brings its
// schema up to date. The store is closed again if migration fails.
func (f *Factory) Open(ctx context.Context, migrate bool) (Store, error) {
	opener, ok := f.openers[f.cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", f.cfg.Driver)
	}

	store, err := opener(ctx, f.cfg, f.logger)
	if err != nil {
		return nil, err
	}

	if migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to migrate %s store: %w", f.cfg.Driver, err)
		}
	}

	return store, nil
}

// ApplyMigrations runs every pending migration of provider and logs each
// applied version.
func ApplyMigrations(ctx context.Context, provider *goose.Provider, logger zerolog.Logger) error {
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, r := range results {
		logger.Info().
			Int64("version", r.Source.Version).
			Str("source", r.Source.Path).
			Dur("duration", r.Duration).
			Msg("applied migration")
	}
	return nil
}
