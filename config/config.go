/*
config.go - Runtime configuration

PURPOSE:
  Reads server configuration from the environment. A .env file in the
  working directory is loaded first when present; variables already set
  in the environment win over the file.

KEYS:
  APP_ENV                development | production
  APP_ADDR               listen address (":8080")
  READ_TIMEOUT           HTTP read timeout
  WRITE_TIMEOUT          HTTP write timeout, 0 disables (event streams)
  SHUTDOWN_TIMEOUT       grace period for in-flight requests and runs
  DB_PATH                SQLite file, ":memory:" for a throwaway database
  LOG_FORMAT             json | text
  LOG_LEVEL              debug | info | warn | error
  REGIME_FILE            JSON tax regime overriding the built-in one
  ATTENDANCE_COVERAGE    share of working days that need a record (0..1)
  RATE_LIMIT_PER_MINUTE  limit on run start/recalculate/finalize, 0 disables
  CORS_ORIGINS           comma-separated allowed origins
  CURRENCY               payslip currency, defaults to the regime's
  COMPANY_NAME           payslip header
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-chi/httplog/v3"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	AppAddr         string        `envconfig:"APP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"0s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	DBPath string `envconfig:"DB_PATH" default:"payroll.db"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RegimeFile         string          `envconfig:"REGIME_FILE"`
	AttendanceCoverage decimal.Decimal `envconfig:"ATTENDANCE_COVERAGE" default:"1"`

	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"30"`
	CORSOrigins        []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`

	Currency    string `envconfig:"CURRENCY"`
	CompanyName string `envconfig:"COMPANY_NAME" default:"Payroll"`
}

// Load reads the given .env files (".env" when none are named), then the
// environment. Missing .env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.AttendanceCoverage.IsNegative() || c.AttendanceCoverage.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("ATTENDANCE_COVERAGE must be between 0 and 1, got %s", c.AttendanceCoverage)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimitPerMinute)
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return lvl, nil
}

// NewLogger returns the application logger writing to w. JSON output uses
// the ECS field names, matching the request logger.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	lvl, err := cfg.level()
	if err != nil {
		lvl = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		logFormat := httplog.SchemaECS.Concise(!cfg.IsProduction())
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: logFormat.ReplaceAttr,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}

	return slog.New(handler).With(
		slog.String("app", "payroll-engine"),
		slog.String("env", cfg.AppEnv),
	)
}
