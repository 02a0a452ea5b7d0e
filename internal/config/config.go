package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	OpsPort     int    `env:"OPS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	ReservationExpirySeconds  int  `env:"RESERVATION_EXPIRY_SECONDS" envDefault:"60"`
	MaxRetryAttempts          int  `env:"MAX_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelayMS              int  `env:"RETRY_DELAY_MS" envDefault:"100"`
	SweepIntervalSeconds      int  `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	RequireBudgetAtEveryLevel bool `env:"REQUIRE_BUDGET_AT_EVERY_LEVEL" envDefault:"false"`
}

// EngineConfig is the subset of settings the budget store and the
// enforcement layer consume.
type EngineConfig struct {
	ReservationExpiry         time.Duration
	MaxRetryAttempts          int
	RetryDelay                time.Duration
	RequireBudgetAtEveryLevel bool
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ReservationExpiry: 60 * time.Second,
		MaxRetryAttempts:  3,
		RetryDelay:        100 * time.Millisecond,
	}
}

// Load reads the process environment. A .env file in the working directory
// is applied first when present; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: dotenv: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ReservationExpirySeconds <= 0 {
		return fmt.Errorf("RESERVATION_EXPIRY_SECONDS must be positive, got %d", c.ReservationExpirySeconds)
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("MAX_RETRY_ATTEMPTS must be at least 1, got %d", c.MaxRetryAttempts)
	}
	if c.RetryDelayMS < 0 {
		return fmt.Errorf("RETRY_DELAY_MS must not be negative, got %d", c.RetryDelayMS)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive, got %d", c.SweepIntervalSeconds)
	}
	return nil
}

func (c *Config) Engine() EngineConfig {
	return EngineConfig{
		ReservationExpiry:         time.Duration(c.ReservationExpirySeconds) * time.Second,
		MaxRetryAttempts:          c.MaxRetryAttempts,
		RetryDelay:                time.Duration(c.RetryDelayMS) * time.Millisecond,
		RequireBudgetAtEveryLevel: c.RequireBudgetAtEveryLevel,
	}
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}
