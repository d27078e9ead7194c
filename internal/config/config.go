package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Store and session backends selectable through the environment.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port string `env:"PORT" env-default:"8000"`

	StoreDriver string `env:"STORE_DRIVER" env-default:"mongo"`
	MongoURI    string `env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	MongoDB     string `env:"MONGO_DB" env-default:"carbon_tracker"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	SessionDriver string        `env:"SESSION_DRIVER" env-default:"redis"`
	RedisAddr     string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	SessionTTL    time.Duration `env:"SESSION_TTL" env-default:"24h"`
	SessionCookie string        `env:"SESSION_COOKIE" env-default:"session"`
	CookieSecure  bool          `env:"COOKIE_SECURE" env-default:"false"`

	// An empty endpoint disables share reports.
	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" env-default:"share-reports"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`

	CORSOrigins []string `env:"CORS_ORIGINS" env-default:"http://localhost:5173" env-separator:","`

	LogLevel         string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat        string `env:"LOG_FORMAT" env-default:"text"`
	MetricsNamespace string `env:"METRICS_NAMESPACE" env-default:"carbon_tracker"`
}

// Load reads an optional .env file (ENV_FILE, default ".env") and then binds
// the process environment onto Config.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks driver names and the settings each driver depends on.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("config: MONGO_URI is required for the mongo store")
		}
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: POSTGRES_DSN is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.SessionDriver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("config: unknown SESSION_DRIVER %q", c.SessionDriver)
	}

	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.SessionCookie == "" {
		return errors.New("config: SESSION_COOKIE must not be empty")
	}
	return nil
}

// SharingEnabled reports whether an object store is configured for share reports.
func (c *Config) SharingEnabled() bool {
	return c.MinioEndpoint != ""
}
