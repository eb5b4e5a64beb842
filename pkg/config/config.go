package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/todo-acl/pkg/auth"
	"github.com/platinummonkey/todo-acl/pkg/storage"
)

// PlaceholderSecret is the signing secret used outside production when
// none is configured
const PlaceholderSecret = "change-me"

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config holds all application configuration
type Config struct {
	Environment string `yaml:"environment"`

	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Auth          AuthConfig          `yaml:"auth"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Redis         RedisConfig         `yaml:"redis"`
	Observability ObservabilityConfig `yaml:"observability"`

	// SecretIsPlaceholder is set when Auth.Secret fell back to
	// PlaceholderSecret
	SecretIsPlaceholder bool `yaml:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	CORSOrigins       []string `yaml:"cors_origins"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes"`
	TrustProxyHeaders bool     `yaml:"trust_proxy_headers"`
}

// DatabaseConfig selects the SQL backend
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
}

// StorageConfig converts to the storage layer's settings
func (d DatabaseConfig) StorageConfig() storage.Config {
	return storage.Config{
		Driver:          d.Driver,
		DSN:             d.URL,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		ConnectTimeout:  d.ConnectTimeout,
	}
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	Secret        string        `yaml:"secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	TokenIssuer   string        `yaml:"token_issuer"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
	HashCost      int           `yaml:"hash_cost"`
	UserCacheSize int           `yaml:"user_cache_size"`
	UserCacheTTL  time.Duration `yaml:"user_cache_ttl"`
}

// RateLimitConfig holds login throttling settings
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// RedisConfig enables the shared login limiter when URL is set
type RedisConfig struct {
	URL        string `yaml:"url"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// StorageConfig converts to the storage layer's settings
func (r RedisConfig) StorageConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        r.URL,
		Password:   r.Password,
		DB:         r.DB,
		MaxRetries: r.MaxRetries,
		PoolSize:   r.PoolSize,
	}
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	Version        string `yaml:"version"`
}

// Default returns the built-in configuration
func Default() *Config {
	db := storage.DefaultConfig()
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			CORSOrigins:     []string{"*"},
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Driver:          db.Driver,
			URL:             db.DSN,
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
			ConnMaxIdleTime: db.ConnMaxIdleTime,
			ConnectTimeout:  db.ConnectTimeout,
		},
		Auth: AuthConfig{
			TokenTTL:      auth.DefaultTokenTTL,
			TokenIssuer:   auth.DefaultTokenIssuer,
			ClockSkew:     30 * time.Second,
			HashCost:      auth.DefaultHashCost,
			UserCacheSize: 1024,
			UserCacheTTL:  30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Requests: 10,
			Window:   time.Minute,
			Burst:    5,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "text",
			MetricsEnabled: true,
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by TODOACL_CONFIG_FILE, a .env file and the environment, in
// increasing order of precedence
func LoadConfig() (*Config, error) {
	envFile := getEnv("TODOACL_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := Default()
	if path := os.Getenv("TODOACL_CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applySecretDefault()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the YAML file at path onto c
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides c with any TODOACL_* variables that are set
func (c *Config) applyEnv() {
	c.Environment = strings.ToLower(getEnv("TODOACL_ENV", c.Environment))

	c.Server.Host = getEnv("TODOACL_HOST", c.Server.Host)
	c.Server.Port = getEnv("TODOACL_PORT", getEnv("PORT", c.Server.Port))
	c.Server.ReadTimeout = getEnvDuration("TODOACL_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("TODOACL_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("TODOACL_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("TODOACL_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("TODOACL_HEALTH_PORT", c.Server.HealthPort)
	c.Server.CORSOrigins = getEnvList("TODOACL_CORS_ORIGINS", c.Server.CORSOrigins)
	c.Server.MaxBodyBytes = getEnvInt64("TODOACL_MAX_BODY_BYTES", c.Server.MaxBodyBytes)
	c.Server.TrustProxyHeaders = getEnvBool("TODOACL_TRUST_PROXY_HEADERS", c.Server.TrustProxyHeaders)

	if url := getEnv("TODOACL_DATABASE_URL", getEnv("DATABASE_URL", "")); url != "" {
		c.Database.URL = url
		if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
			c.Database.Driver = "postgres"
		}
	}
	c.Database.Driver = getEnv("TODOACL_DB_DRIVER", c.Database.Driver)
	c.Database.MaxOpenConns = getEnvInt("TODOACL_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("TODOACL_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("TODOACL_DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.ConnectTimeout = getEnvDuration("TODOACL_DB_CONNECT_TIMEOUT", c.Database.ConnectTimeout)

	c.Auth.Secret = getEnv("TODOACL_SECRET", c.Auth.Secret)
	c.Auth.TokenTTL = getEnvDuration("TODOACL_TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.TokenIssuer = getEnv("TODOACL_TOKEN_ISSUER", c.Auth.TokenIssuer)
	c.Auth.ClockSkew = getEnvDuration("TODOACL_CLOCK_SKEW", c.Auth.ClockSkew)
	c.Auth.HashCost = getEnvInt("TODOACL_HASH_COST", c.Auth.HashCost)
	c.Auth.UserCacheSize = getEnvInt("TODOACL_USER_CACHE_SIZE", c.Auth.UserCacheSize)
	c.Auth.UserCacheTTL = getEnvDuration("TODOACL_USER_CACHE_TTL", c.Auth.UserCacheTTL)

	c.RateLimit.Enabled = getEnvBool("TODOACL_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Requests = getEnvInt("TODOACL_RATE_LIMIT_REQUESTS", c.RateLimit.Requests)
	c.RateLimit.Window = getEnvDuration("TODOACL_RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Burst = getEnvInt("TODOACL_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Redis.URL = getEnv("TODOACL_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("TODOACL_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("TODOACL_REDIS_DB", c.Redis.DB)
	c.Redis.MaxRetries = getEnvInt("TODOACL_REDIS_MAX_RETRIES", c.Redis.MaxRetries)
	c.Redis.PoolSize = getEnvInt("TODOACL_REDIS_POOL_SIZE", c.Redis.PoolSize)

	c.Observability.LogLevel = getEnv("TODOACL_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("TODOACL_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("TODOACL_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.TracingEnabled = getEnvBool("TODOACL_TRACING_ENABLED", c.Observability.TracingEnabled)
	c.Observability.Version = getEnv("TODOACL_VERSION", c.Observability.Version)
}

// applySecretDefault substitutes PlaceholderSecret for a missing secret.
// Validate rejects the placeholder in production.
func (c *Config) applySecretDefault() {
	if c.Auth.Secret == "" {
		c.Auth.Secret = PlaceholderSecret
		c.SecretIsPlaceholder = true
	}
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("invalid environment: %s (must be development, production, or test)", c.Environment)
	}

	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate database config
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite3", "sqlite", "postgres", "postgresql", "pq":
	default:
		return fmt.Errorf("invalid database driver: %s (must be sqlite3 or postgres)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	// Validate auth config
	if c.Auth.Secret == "" {
		return fmt.Errorf("signing secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.IsProduction() {
		if c.SecretIsPlaceholder || c.Auth.Secret == PlaceholderSecret {
			return fmt.Errorf("TODOACL_SECRET must be set in production")
		}
		if c.Database.URL == ":memory:" {
			return fmt.Errorf("in-memory database is not allowed in production")
		}
	}

	// Validate rate limit config
	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			return fmt.Errorf("rate limit requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	// Validate observability config
	switch c.Observability.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
