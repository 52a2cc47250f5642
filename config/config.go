// Package config loads runtime settings from the environment.
//
// A .env file in the working directory is read first when present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/warp/club-ledger/logger"
)

// MinJWTSecretLength is the shortest accepted signing secret.
const MinJWTSecretLength = 32

type Config struct {
	HTTPPort     string
	DatabasePath string
	JWTSecret    string
	CORSOrigins  []string

	// LegacyOutboundRedebit turns on the historical outbound balance
	// behaviour (see ledger.Options).
	LegacyOutboundRedebit bool

	// BalanceCheckInterval is how often the server compares stored and
	// derived balances. Zero disables the check.
	BalanceCheckInterval time.Duration

	Log logger.LogConfig
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	legacy, err := getBool("LEDGER_LEGACY_OUTBOUND_REDEBIT", false)
	if err != nil {
		return nil, err
	}

	interval, err := getDuration("BALANCE_CHECK_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	defaults := logger.DefaultConfig()
	return &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		DatabasePath:          getEnv("DATABASE_PATH", "clubledger.db"),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		CORSOrigins:           splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LegacyOutboundRedebit: legacy,
		BalanceCheckInterval:  interval,
		Log: logger.LogConfig{
			Level:      getEnv("LOG_LEVEL", defaults.Level),
			Format:     getEnv("LOG_FORMAT", defaults.Format),
			TimeFormat: getEnv("LOG_TIME_FORMAT", defaults.TimeFormat),
			Output:     getEnv("LOG_OUTPUT", defaults.Output),
		},
	}, nil
}

// ValidateServer checks the settings the HTTP server can't run without.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if c.HTTPPort == "" {
		return errors.New("HTTP_PORT is empty")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
