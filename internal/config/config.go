// Package config loads the security component settings from a YAML file and
// SECURITY_* environment variables with viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AdminRole, when set, restricts the user and role endpoints to callers
	// presenting HTTP Basic credentials of a user holding this role.
	AdminRole string `mapstructure:"admin_role"`
}

// Addr returns the listen address in host:port format.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds account store connection settings.
// Supports both PostgreSQL and SQLite backends.
type DatabaseConfig struct {
	// Driver specifies the database driver: "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`

	// AutoMigrate applies pending migrations when the store is opened.
	AutoMigrate bool `mapstructure:"auto_migrate"`

	// PostgreSQL settings (used when Driver is "postgres")
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`

	// SQLite settings (used when Driver is "sqlite")
	Path            string `mapstructure:"path"`             // Path to SQLite database file
	JournalMode     string `mapstructure:"journal_mode"`     // WAL, DELETE, TRUNCATE, etc.
	BusyTimeout     int    `mapstructure:"busy_timeout"`     // Milliseconds to wait for locks
	CacheSize       int    `mapstructure:"cache_size"`       // Page cache size (negative = KB)
	SynchronousMode string `mapstructure:"synchronous_mode"` // NORMAL, FULL, OFF
}

// DSN returns the PostgreSQL connection string.
// Only valid when Driver is "postgres".
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings.
// When enabled, Redis backs the role cache and the per-login lock so that
// several server instances sharing one store serialize on the same keys.
type RedisConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Enabled     bool          `mapstructure:"enabled"`
}

// Addr returns the Redis address in host:port format.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SecurityConfig holds credential verification settings.
type SecurityConfig struct {
	// LockoutThreshold is the consecutive error count that, once reached
	// before a new failure, disables the account on that failure.
	// The default of 2 disables the account on the 3rd consecutive failure.
	LockoutThreshold int `mapstructure:"lockout_threshold"`

	// LockTTL bounds how long a per-login lock may be held.
	LockTTL time.Duration `mapstructure:"lock_ttl"`

	// LockRetries is the number of extra attempts to take a busy per-login lock.
	LockRetries int `mapstructure:"lock_retries"`

	// LockRetryDelay is the pause between two lock attempts.
	LockRetryDelay time.Duration `mapstructure:"lock_retry_delay"`

	// PasswordPepper is the hex-encoded 32-byte secret used as the fixed
	// Argon2id salt. Encoded passwords depend on it.
	PasswordPepper string `mapstructure:"password_pepper"`

	// Argon2 cost parameters.
	Argon2Time    uint32 `mapstructure:"argon2_time"`
	Argon2Memory  uint32 `mapstructure:"argon2_memory"` // KiB
	Argon2Threads uint8  `mapstructure:"argon2_threads"`
	Argon2KeyLen  uint32 `mapstructure:"argon2_key_len"`

	// RoleCacheTTL is how long role rows stay cached. 0 disables expiry.
	RoleCacheTTL time.Duration `mapstructure:"role_cache_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled determines if metrics collection is active.
	Enabled bool `mapstructure:"enabled"`

	// Path is the URL path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// Load reads the configuration file at configPath, or config.yaml from the
// usual directories when configPath is empty, then applies SECURITY_*
// environment overrides. A missing default file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SECURITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range []string{".", "./configs", "/etc/security-component"} {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("default configuration does not unmarshal: %v", err))
	}
	return &cfg
}

var defaults = map[string]any{
	"server.host":             "0.0.0.0",
	"server.port":             8420,
	"server.read_timeout":     10 * time.Second,
	"server.write_timeout":    10 * time.Second,
	"server.idle_timeout":     60 * time.Second,
	"server.shutdown_timeout": 15 * time.Second,
	"server.admin_role":       "",

	"database.driver":             "sqlite",
	"database.auto_migrate":       true,
	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "security",
	"database.password":           "",
	"database.database":           "security",
	"database.ssl_mode":           "prefer",
	"database.max_open_conns":     10,
	"database.max_idle_conns":     2,
	"database.conn_max_lifetime":  5 * time.Minute,
	"database.conn_max_idle_time": 5 * time.Minute,
	"database.path":               "./data/security.db",
	"database.journal_mode":       "WAL",
	"database.busy_timeout":       5000,
	"database.cache_size":         -2000,
	"database.synchronous_mode":   "NORMAL",

	"redis.enabled":      false,
	"redis.host":         "localhost",
	"redis.port":         6379,
	"redis.password":     "",
	"redis.db":           0,
	"redis.pool_size":    10,
	"redis.dial_timeout": 5 * time.Second,

	"security.lockout_threshold": 2,
	"security.lock_ttl":          10 * time.Second,
	"security.lock_retries":      50,
	"security.lock_retry_delay":  20 * time.Millisecond,
	"security.password_pepper":   "",
	"security.argon2_time":       1,
	"security.argon2_memory":     64 * 1024,
	"security.argon2_threads":    4,
	"security.argon2_key_len":    32,
	"security.role_cache_ttl":    5 * time.Minute,

	"logging.level":       "info",
	"logging.format":      "json",
	"logging.output":      "stdout",
	"logging.time_format": time.RFC3339,

	"metrics.enabled": true,
	"metrics.path":    "/metrics",
}

// setDefaults registers every key so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

var logLevels = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port >= 1 && c.Server.Port <= 65535, "server.port must be between 1 and 65535")

	db := c.Database
	switch db.Driver {
	case "postgres":
		check(db.Host != "", "database.host is required for postgres driver")
		check(db.User != "", "database.user is required for postgres driver")
		check(db.Database != "", "database.database is required for postgres driver")
	case "sqlite":
		check(db.Path != "", "database.path is required for sqlite driver")
	default:
		errs = append(errs, fmt.Errorf("database.driver must be 'postgres' or 'sqlite', got %q", db.Driver))
	}

	sec := c.Security
	check(sec.LockoutThreshold >= 0, "security.lockout_threshold must not be negative")
	check(sec.LockRetries >= 0, "security.lock_retries must not be negative")
	check(sec.PasswordPepper == "" || len(sec.PasswordPepper) == 64, "security.password_pepper must be exactly 64 hex characters")
	check(sec.Argon2Time > 0 && sec.Argon2Memory > 0 && sec.Argon2Threads > 0,
		"security.argon2_time, argon2_memory and argon2_threads must be positive")
	check(sec.Argon2KeyLen >= 16, "security.argon2_key_len must be at least 16")

	check(slices.Contains(logLevels, strings.ToLower(c.Logging.Level)),
		"logging.level must be one of: %s", strings.Join(logLevels, ", "))

	return errors.Join(errs...)
}
