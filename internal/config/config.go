package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

const minJWTSecretLength = 16

// Config holds all configuration for the application
type Config struct {
	DatabaseURL    string
	StoreDriver    string
	MigrationsPath string
	DBPool         PoolConfig
	LogLevel       string
	LogFormat      string
	PrometheusPort string
	Port           string

	JWTSecret  string
	JWTTTL     time.Duration
	BcryptCost int

	ClientOrigin string
	RedisURL     string

	AllowAuthenticatedIdentityOnReserve bool
	ClaimWriteTimeout                   time.Duration

	PublicRateLimitRPS   float64
	PublicRateLimitBurst int
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first when present; real environment variables
// take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var result *multierror.Error
	cfg := &Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoreDriver:    getEnvOrDefault("STORE_DRIVER", StoreDriverPostgres),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:      getEnvOrDefault("LOG_FORMAT", "text"),
		PrometheusPort: getEnvOrDefault("PROMETHEUS_PORT", "9090"),
		Port:           getEnvOrDefault("PORT", "8080"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		ClientOrigin:   getEnvOrDefault("CLIENT_ORIGIN", "*"),
		RedisURL:       os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.JWTTTL, err = getDurationOrDefault("JWT_TTL", 7*24*time.Hour); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.ClaimWriteTimeout, err = getDurationOrDefault("CLAIM_WRITE_TIMEOUT", 10*time.Second); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.DBPool.MaxOpenConns, err = getIntOrDefault("DB_MAX_OPEN_CONNS", 25); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.DBPool.MaxIdleConns, err = getIntOrDefault("DB_MAX_IDLE_CONNS", 5); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.DBPool.ConnMaxLifetime, err = getDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.BcryptCost, err = getIntOrDefault("BCRYPT_COST", 10); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.PublicRateLimitBurst, err = getIntOrDefault("PUBLIC_RATE_LIMIT_BURST", 10); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.PublicRateLimitRPS, err = getFloatOrDefault("PUBLIC_RATE_LIMIT_RPS", 5); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.AllowAuthenticatedIdentityOnReserve, err = getBoolOrDefault("ALLOW_AUTHENTICATED_IDENTITY_ON_RESERVE", false); err != nil {
		result = multierror.Append(result, err)
	}

	if err := cfg.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and their ranges.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_URL environment variable is required"))
		}
		if c.DBPool.MaxOpenConns <= 0 {
			result = multierror.Append(result, fmt.Errorf("DB_MAX_OPEN_CONNS must be positive"))
		}
		if c.DBPool.MaxIdleConns < 0 || c.DBPool.MaxIdleConns > c.DBPool.MaxOpenConns {
			result = multierror.Append(result, fmt.Errorf("DB_MAX_IDLE_CONNS must be between 0 and DB_MAX_OPEN_CONNS"))
		}
	case StoreDriverMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q",
			StoreDriverPostgres, StoreDriverMemory, c.StoreDriver))
	}

	if len(c.JWTSecret) < minJWTSecretLength {
		result = multierror.Append(result, fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength))
	}
	if c.JWTTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("JWT_TTL must be positive"))
	}
	if c.ClaimWriteTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("CLAIM_WRITE_TIMEOUT must be positive"))
	}
	if c.PublicRateLimitRPS <= 0 || c.PublicRateLimitBurst <= 0 {
		result = multierror.Append(result, fmt.Errorf("PUBLIC_RATE_LIMIT_RPS and PUBLIC_RATE_LIMIT_BURST must be positive"))
	}

	return result.ErrorOrNil()
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getBoolOrDefault(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return b, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
