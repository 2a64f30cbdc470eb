package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Orders    OrdersConfig    `mapstructure:"orders"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type StoreConfig struct {
	Driver  string `mapstructure:"driver"` // postgres, memory
	Migrate bool   `mapstructure:"migrate"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName  string        `mapstructure:"application_name"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"` // 0 keeps the server default
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ClientName is sent with CLIENT SETNAME on every connection.
	ClientName string `mapstructure:"client_name"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LedgerConfig bounds optimistic commit retries.
type LedgerConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BaseBackoff    time.Duration `mapstructure:"base_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"` // Redis fast-path TTL
}

type WalletConfig struct {
	StartingBalance      int64  `mapstructure:"starting_balance"`
	AccountPrefix        string `mapstructure:"account_prefix"`
	AccountDigits        int    `mapstructure:"account_digits"`
	AllocationAttempts   int    `mapstructure:"allocation_attempts"`
	RegistrationAttempts int    `mapstructure:"registration_attempts"`
}

type OrdersConfig struct {
	TTL           time.Duration `mapstructure:"ttl"` // 0 disables expiry
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
}

type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int64         `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: QPG_ (QR Pay Gateway).
// Nested keys use underscore: QPG_DATABASE_HOST, QPG_LEDGER_MAX_ATTEMPTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.migrate", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "qrpay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.application_name", "qpg-api")
	v.SetDefault("database.statement_timeout", "5s")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.client_name", "qpg-api")
	v.SetDefault("ledger.max_attempts", 5)
	v.SetDefault("ledger.base_backoff", "5ms")
	v.SetDefault("ledger.max_backoff", "200ms")
	v.SetDefault("ledger.idempotency_ttl", "24h")
	v.SetDefault("wallet.starting_balance", 5_000_000)
	v.SetDefault("wallet.account_prefix", "10")
	v.SetDefault("wallet.account_digits", 8)
	v.SetDefault("wallet.allocation_attempts", 10)
	v.SetDefault("wallet.registration_attempts", 3)
	v.SetDefault("orders.ttl", "15m")
	v.SetDefault("orders.sweep_interval", "1m")
	v.SetDefault("orders.sweep_batch", 100)
	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "qrpay-gateway")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: QPG_DATABASE_HOST -> database.host
	v.SetEnvPrefix("QPG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects settings the ledger cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Driver != DriverPostgres && c.Store.Driver != DriverMemory {
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverPostgres, DriverMemory, c.Store.Driver))
	}
	if c.Ledger.MaxAttempts < 1 {
		errs = append(errs, errors.New("ledger.max_attempts must be at least 1"))
	}
	if c.Wallet.StartingBalance < 0 {
		errs = append(errs, errors.New("wallet.starting_balance must not be negative"))
	}
	if c.Wallet.AccountDigits < 1 || c.Wallet.AccountDigits > 16 {
		errs = append(errs, errors.New("wallet.account_digits must be between 1 and 16"))
	}
	if c.Wallet.AllocationAttempts < 1 {
		errs = append(errs, errors.New("wallet.allocation_attempts must be at least 1"))
	}
	if c.Wallet.RegistrationAttempts < 1 {
		errs = append(errs, errors.New("wallet.registration_attempts must be at least 1"))
	}
	if c.Orders.TTL > 0 && c.Orders.SweepInterval <= 0 {
		errs = append(errs, errors.New("orders.sweep_interval must be positive when orders.ttl is set"))
	}

	return errors.Join(errs...)
}
