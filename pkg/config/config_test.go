package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"CNYCONV_DB_PATH", "CNYCONV_RATE_API_URL", "CNYCONV_REFRESH_SCHEDULE",
	"CNYCONV_DEFAULT_CURRENCY", "CNYCONV_CURRENCIES", "CNYCONV_LOCALE",
	"CNYCONV_RATE_MAX_AGE", "CNYCONV_HTTP_TIMEOUT", "CNYCONV_LOG_LEVEL",
	"CNYCONV_LOG_PRETTY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cnyconv.db", cfg.DBPath)
	assert.Equal(t, "https://open.er-api.com/v6/latest/CNY", cfg.RateAPIURL)
	assert.Equal(t, "@every 10m", cfg.RefreshSchedule)
	assert.Equal(t, "USD", cfg.DefaultCurrency)
	assert.Equal(t, []string{"USD", "EUR", "TRY"}, cfg.Currencies)
	assert.Equal(t, "en", cfg.Locale)
	assert.Equal(t, 24*time.Hour, cfg.RateMaxAge)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("CNYCONV_DB_PATH", "/tmp/x.db")
	t.Setenv("CNYCONV_CURRENCIES", " gbp, eur ,GBP,")
	t.Setenv("CNYCONV_DEFAULT_CURRENCY", "eur")
	t.Setenv("CNYCONV_RATE_MAX_AGE", "2h")
	t.Setenv("CNYCONV_HTTP_TIMEOUT", "not-a-duration")
	t.Setenv("CNYCONV_LOG_PRETTY", "true")
	t.Setenv("CNYCONV_REFRESH_SCHEDULE", "*/5 * * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x.db", cfg.DBPath)
	assert.Equal(t, []string{"GBP", "EUR"}, cfg.Currencies)
	assert.Equal(t, "EUR", cfg.DefaultCurrency)
	assert.Equal(t, 2*time.Hour, cfg.RateMaxAge)
	assert.Equal(t, 15*time.Second, cfg.HTTPTimeout, "unparseable value keeps the default")
	assert.True(t, cfg.LogPretty)
	assert.True(t, cfg.Supports(" gbp"))
	assert.False(t, cfg.Supports("TRY"))
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RateAPIURL:      "https://example.com/latest/CNY",
			RefreshSchedule: "@every 1m",
			DefaultCurrency: "USD",
			Currencies:      []string{"USD"},
			Locale:          "en",
			HTTPTimeout:     time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad url", func(c *Config) { c.RateAPIURL = "not a url" }, "CNYCONV_RATE_API_URL"},
		{"bad schedule", func(c *Config) { c.RefreshSchedule = "every tuesday" }, "CNYCONV_REFRESH_SCHEDULE"},
		{"no currencies", func(c *Config) { c.Currencies = nil }, "CNYCONV_CURRENCIES"},
		{"default not listed", func(c *Config) { c.DefaultCurrency = "EUR" }, "CNYCONV_DEFAULT_CURRENCY"},
		{"bad locale", func(c *Config) { c.Locale = "!!" }, "CNYCONV_LOCALE"},
		{"zero timeout", func(c *Config) { c.HTTPTimeout = 0 }, "CNYCONV_HTTP_TIMEOUT"},
		{"negative max age", func(c *Config) { c.RateMaxAge = -time.Minute }, "CNYCONV_RATE_MAX_AGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_InvalidDefaultCurrency(t *testing.T) {
	clearEnv(t)
	t.Setenv("CNYCONV_DEFAULT_CURRENCY", "JPY")

	_, err := Load()
	require.Error(t, err)
}
