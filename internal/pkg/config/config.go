package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Token store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

type Config struct {
	Port         string        `env:"PORT,          default=8080"`
	Env          string        `env:"ENV,           default=development"`
	LogLevel     string        `env:"LOG_LEVEL,     default=info"`
	Profile      string        `env:"PROFILE,       default=default"`
	PollInterval time.Duration `env:"POLL_INTERVAL, default=60s"`

	API   APIConfig
	Store StoreConfig
	Mongo MongoConfig
	Redis RedisConfig
}

type APIConfig struct {
	BaseURL string        `env:"API_BASE_URL, default=http://localhost:8081"`
	Timeout time.Duration `env:"API_TIMEOUT,  default=15s"`
}

type StoreConfig struct {
	Backend string `env:"TOKEN_STORE, default=file"`
	// Path defaults to the user config dir when empty (file backend only).
	Path string `env:"TOKEN_STORE_PATH"`
	// Key seals the file backend's credential when set.
	Key string        `env:"TOKEN_STORE_KEY"`
	TTL time.Duration `env:"TOKEN_STORE_TTL, default=0s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=resident_portal"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// IsDevelopment reports whether human-friendly logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := Parse(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// Parse reads configuration through l and validates it.
func Parse(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreFile, StoreRedis, StoreMongo:
	default:
		return fmt.Errorf("TOKEN_STORE must be one of memory, file, redis, mongo; got %q", c.Store.Backend)
	}
	if c.Profile == "" {
		return fmt.Errorf("PROFILE must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}
