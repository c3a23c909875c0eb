// Package security assembles the account store, the directories and the
// credential verifier behind one Manager that owns their lifecycle.
package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	memcache "github.com/koor-fr/security-component/internal/cache/memory"
	rediscache "github.com/koor-fr/security-component/internal/cache/redis"
	"github.com/koor-fr/security-component/internal/config"
	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/lock"
	"github.com/koor-fr/security-component/internal/metrics"
	"github.com/koor-fr/security-component/internal/pkg/crypto"
	"github.com/koor-fr/security-component/internal/repository"
	"github.com/koor-fr/security-component/internal/repository/postgres"
	"github.com/koor-fr/security-component/internal/repository/sqlite"
	"github.com/koor-fr/security-component/internal/service"
)

// ErrManagerFault is returned when the store cannot be opened or the manager
// is used in the wrong state.
var ErrManagerFault = domain.ErrManagerFault

// redisKeyPrefix namespaces the role cache in a shared Redis database.
const redisKeyPrefix = "security:"

// Manager owns the connection to the account store and exposes the directories.
type Manager interface {
	// Open connects to the store and builds the directories.
	Open(ctx context.Context) error

	// Close releases the store and every resource built by Open.
	// Closing a manager that is not open returns nil.
	Close() error

	// Health reports whether the store answers.
	Health(ctx context.Context) error

	// Users returns the identity directory, or nil before Open.
	Users() *service.UserService

	// Roles returns the role directory, or nil before Open.
	Roles() *service.RoleService
}

// SQLManager implements Manager on a SQL account store.
type SQLManager struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.RWMutex
	store   repository.Store
	closers []io.Closer
	users   *service.UserService
	roles   *service.RoleService
}

// NewSQLManager creates a manager for cfg. Collectors are registered on reg;
// a nil reg leaves them unregistered.
func NewSQLManager(cfg *config.Config, reg prometheus.Registerer, logger zerolog.Logger) *SQLManager {
	return &SQLManager{
		cfg:     cfg,
		metrics: metrics.NewMetrics(reg),
		logger:  logger.With().Str("component", "security_manager").Logger(),
	}
}

// Metrics returns the collectors updated by the verifier.
func (m *SQLManager) Metrics() *metrics.Metrics {
	return m.metrics
}

// Open connects to the configured store, applies migrations when enabled and
// builds the directories.
func (m *SQLManager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil {
		return fmt.Errorf("%w: manager is already open", ErrManagerFault)
	}

	encoder, err := m.newEncoder()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManagerFault, err)
	}

	store, err := OpenStore(ctx, m.cfg.Database, m.cfg.Database.AutoMigrate, m.logger)
	if err != nil {
		m.logger.Error().Err(err).Str("driver", m.cfg.Database.Driver).Msg("failed to open account store")
		return fmt.Errorf("%w: %v", ErrManagerFault, err)
	}

	locker, cache, closers, err := m.newCoordination(ctx)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("%w: %v", ErrManagerFault, err)
	}

	repos := store.Repositories()
	sec := m.cfg.Security

	verifierCfg := service.VerifierConfig{
		LockoutThreshold: sec.LockoutThreshold,
		Lock: service.LockPolicy{
			TTL:        sec.LockTTL,
			Retries:    sec.LockRetries,
			RetryDelay: sec.LockRetryDelay,
		},
	}

	roles := service.NewRoleService(repos.Role, repos.User, cache, sec.RoleCacheTTL, m.logger)
	verifier := service.NewCredentialVerifier(repos.User, roles, encoder, locker, m.metrics, verifierCfg, m.logger)
	users := service.NewUserService(repos.User, roles, encoder, verifier, locker, verifierCfg.Lock, m.logger)

	m.store = store
	m.closers = closers
	m.users = users
	m.roles = roles

	m.logger.Info().
		Str("driver", m.cfg.Database.Driver).
		Bool("redis", m.cfg.Redis.Enabled).
		Int("lockout_threshold", sec.LockoutThreshold).
		Msg("security manager opened")

	return nil
}

// OpenStore opens the account store for the configured driver and, when
// migrate is set, applies pending migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, migrate bool, logger zerolog.Logger) (repository.Store, error) {
	return repository.NewFactory(cfg, logger).
		Register("sqlite", sqlite.Open).
		Register("postgres", postgres.Open).
		Open(ctx, migrate)
}

// newEncoder builds the password encoder from the configured pepper.
func (m *SQLManager) newEncoder() (*crypto.Argon2Encoder, error) {
	sec := m.cfg.Security

	pepper, err := crypto.ParseHexKey(sec.PasswordPepper)
	if err != nil {
		return nil, fmt.Errorf("invalid password pepper: %w", err)
	}
	if pepper == nil {
		m.logger.Warn().Msg("no password pepper configured, using the built-in salt")
	}

	return crypto.NewArgon2Encoder(pepper, crypto.Argon2Params{
		Time:    sec.Argon2Time,
		Memory:  sec.Argon2Memory,
		Threads: sec.Argon2Threads,
		KeyLen:  sec.Argon2KeyLen,
	}), nil
}

// newCoordination builds the per-login locker and the role cache, in Redis
// when enabled and in memory otherwise.
func (m *SQLManager) newCoordination(ctx context.Context) (lock.Locker, repository.Cache, []io.Closer, error) {
	if !m.cfg.Redis.Enabled {
		locker := lock.NewMemoryLocker()
		cache := memcache.NewCache()
		return locker, cache, []io.Closer{cache, locker}, nil
	}

	client, err := rediscache.NewClient(ctx, m.cfg.Redis, m.logger)
	if err != nil {
		return nil, nil, nil, err
	}

	var rc goredis.UniversalClient = client
	return rediscache.NewLocker(rc), rediscache.NewCache(rc, redisKeyPrefix), []io.Closer{client}, nil
}

// Close releases the store and the coordination resources.
func (m *SQLManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, err)
	}

	m.store = nil
	m.closers = nil
	m.users = nil
	m.roles = nil

	if err := errors.Join(errs...); err != nil {
		m.logger.Error().Err(err).Msg("failed to close security manager")
		return fmt.Errorf("%w: %v", ErrManagerFault, err)
	}

	m.logger.Info().Msg("security manager closed")
	return nil
}

// Health pings the store.
func (m *SQLManager) Health(ctx context.Context) error {
	m.mu.RLock()
	store := m.store
	m.mu.RUnlock()

	if store == nil {
		return fmt.Errorf("%w: manager is not open", ErrManagerFault)
	}
	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrManagerFault, err)
	}
	return nil
}

// Users returns the identity directory, or nil before Open.
func (m *SQLManager) Users() *service.UserService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users
}

// Roles returns the role directory, or nil before Open.
func (m *SQLManager) Roles() *service.RoleService {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roles
}

// Ensure SQLManager implements Manager.
var _ Manager = (*SQLManager)(nil)
