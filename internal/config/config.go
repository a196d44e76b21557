package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds everything the server needs at startup. It is loaded once in
// main and passed down; nothing below cmd/ reads the environment.
type Config struct {
	Env      string `envconfig:"APP_ENV" default:"development"`
	Port     string `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL       string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	APIKey              string        `envconfig:"API_KEY" required:"true"`
	QuoteAPIURL         string        `envconfig:"QUOTE_API_URL" default:"https://cloud.iexapis.com/stable"`
	QuoteTimeout        time.Duration `envconfig:"QUOTE_TIMEOUT" default:"5s"`
	QuoteCacheTTL       time.Duration `envconfig:"QUOTE_CACHE_TTL" default:"15s"`
	QuoteStreamInterval time.Duration `envconfig:"QUOTE_STREAM_INTERVAL" default:"5s"`
	RedisURL            string        `envconfig:"REDIS_URL"`

	SessionDir    string        `envconfig:"SESSION_DIR"`
	SessionKey    string        `envconfig:"SESSION_KEY"`
	SessionMaxAge time.Duration `envconfig:"SESSION_MAX_AGE" default:"24h"`

	StartingCash decimal.Decimal `envconfig:"STARTING_CASH" default:"10000.00"`
	NumWorkers   int             `envconfig:"NUM_WORKERS" default:"5"`
}

// Load reads an optional .env file and then the process environment.
// A missing DATABASE_URL or API_KEY is an error.
func Load(envFiles ...string) (*Config, error) {
	// No .env file is fine; the environment may already be populated.
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env -> %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	// envconfig accepts a variable that is set but empty.
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL not set")
	}
	if c.APIKey == "" {
		return errors.New("API_KEY not set")
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("NUM_WORKERS must be at least 1, got %d", c.NumWorkers)
	}
	if c.StartingCash.IsNegative() {
		return fmt.Errorf("STARTING_CASH must not be negative, got %s", c.StartingCash)
	}
	if c.SessionMaxAge < time.Second {
		return fmt.Errorf("SESSION_MAX_AGE must be at least 1s, got %s", c.SessionMaxAge)
	}
	if c.QuoteCacheTTL < 0 {
		return fmt.Errorf("QUOTE_CACHE_TTL must not be negative, got %s", c.QuoteCacheTTL)
	}
	if c.QuoteStreamInterval <= 0 {
		return fmt.Errorf("QUOTE_STREAM_INTERVAL must be positive, got %s", c.QuoteStreamInterval)
	}

	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Mask hides most of a secret for logging.
func Mask(secret string) string {
	if len(secret) <= 6 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-4:]
}
