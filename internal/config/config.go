package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName string `env:"APP_NAME" envDefault:"chatrelay"`
	Env     string `env:"APP_ENV" envDefault:"development"`
	Host    string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"HTTP_PORT" envDefault:"8000"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"chatrelay.db"`
	PGHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PGPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PGUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PGPassword string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PGDatabase string `env:"POSTGRES_DB" envDefault:"chatrelay"`

	JWTSecret     string   `env:"JWT_SECRET"`
	InternalToken string   `env:"INTERNAL_TOKEN"`
	CORSOrigins   []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`

	SendBuffer   int           `env:"WS_SEND_BUFFER" envDefault:"256"`
	PingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	PongWait     time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WriteWait    time.Duration `env:"WS_WRITE_WAIT" envDefault:"10s"`

	PersistWorkers       int           `env:"PERSIST_WORKERS" envDefault:"4"`
	PersistAttempts      uint          `env:"PERSIST_ATTEMPTS" envDefault:"3"`
	PersistSweepInterval time.Duration `env:"PERSIST_SWEEP_INTERVAL" envDefault:"15s"`
	HealthFailThreshold  int           `env:"HEALTH_FAIL_THRESHOLD" envDefault:"3"`
	SeenIdleTTL          time.Duration `env:"SEEN_IDLE_TTL" envDefault:"30m"`
	SeenSweepInterval    time.Duration `env:"SEEN_SWEEP_INTERVAL" envDefault:"5m"`

	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load reads the optional env file (missing files are ignored) and then the
// process environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", c.DBDriver)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	if c.PingInterval >= c.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", c.PingInterval, c.PongWait)
	}
	if c.PersistWorkers <= 0 {
		return fmt.Errorf("PERSIST_WORKERS must be positive")
	}
	if c.SeenSweepInterval <= 0 || c.SeenIdleTTL <= 0 {
		return fmt.Errorf("SEEN_SWEEP_INTERVAL and SEEN_IDLE_TTL must be positive")
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Development reports whether the app runs in a development environment.
func (c *Config) Development() bool {
	return c.Env == "development"
}

// DatabaseURL returns the DSN for the configured driver.
func (c *Config) DatabaseURL() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.PGUser, c.PGPassword),
		Host:     fmt.Sprintf("%s:%s", c.PGHost, c.PGPort),
		Path:     c.PGDatabase,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
