package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

// Config holds application configuration
type Config struct {
	DBPath          string
	RateAPIURL      string
	RefreshSchedule string
	DefaultCurrency string
	Currencies      []string
	Locale          string
	RateMaxAge      time.Duration
	HTTPTimeout     time.Duration
	LogLevel        string
	LogPretty       bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:          getEnv("CNYCONV_DB_PATH", "cnyconv.db"),
		RateAPIURL:      getEnv("CNYCONV_RATE_API_URL", "https://open.er-api.com/v6/latest/CNY"),
		RefreshSchedule: getEnv("CNYCONV_REFRESH_SCHEDULE", "@every 10m"),
		DefaultCurrency: strings.ToUpper(getEnv("CNYCONV_DEFAULT_CURRENCY", "USD")),
		Currencies:      getEnvAsList("CNYCONV_CURRENCIES", []string{"USD", "EUR", "TRY"}),
		Locale:          getEnv("CNYCONV_LOCALE", "en"),
		RateMaxAge:      getEnvAsDuration("CNYCONV_RATE_MAX_AGE", 24*time.Hour),
		HTTPTimeout:     getEnvAsDuration("CNYCONV_HTTP_TIMEOUT", 15*time.Second),
		LogLevel:        getEnv("CNYCONV_LOG_LEVEL", "info"),
		LogPretty:       getEnvAsBool("CNYCONV_LOG_PRETTY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	u, err := url.Parse(c.RateAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("CNYCONV_RATE_API_URL is not a valid URL: %q", c.RateAPIURL)
	}
	if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
		return fmt.Errorf("CNYCONV_REFRESH_SCHEDULE: %w", err)
	}
	if len(c.Currencies) == 0 {
		return fmt.Errorf("CNYCONV_CURRENCIES must list at least one currency")
	}
	if !slices.Contains(c.Currencies, c.DefaultCurrency) {
		return fmt.Errorf("CNYCONV_DEFAULT_CURRENCY %q is not in CNYCONV_CURRENCIES", c.DefaultCurrency)
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("CNYCONV_LOCALE: %w", err)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("CNYCONV_HTTP_TIMEOUT must be positive")
	}
	if c.RateMaxAge < 0 {
		return fmt.Errorf("CNYCONV_RATE_MAX_AGE must not be negative")
	}
	return nil
}

// Supports reports whether code is one of the configured currencies.
func (c *Config) Supports(code string) bool {
	return slices.Contains(c.Currencies, strings.ToUpper(strings.TrimSpace(code)))
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value into upper-cased codes.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" && !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	return out
}
