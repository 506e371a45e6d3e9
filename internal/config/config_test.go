package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"USD", "MXN"}, cfg.SupportedCurrencies)
	assert.Equal(t, 100, cfg.HistoryDefaultLimit)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, time.Duration(0), cfg.ReconcileInterval)
	assert.Equal(t, ":8080", cfg.Address())
}

func TestLoad_ProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("SUPPORTED_CURRENCIES", " usd, eur ,USD")
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("RATE_CACHE_TTL", "30s")
	t.Setenv("HISTORY_DEFAULT_LIMIT", "20")
	t.Setenv("HISTORY_MAX_LIMIT", "50")
	t.Setenv("PORT", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"USD", "EUR"}, cfg.SupportedCurrencies)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, 30*time.Second, cfg.RateCacheTTL)
	assert.Equal(t, 20, cfg.HistoryDefaultLimit)
	assert.Equal(t, ":9090", cfg.Address())
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("RECONCILE_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RECONCILE_INTERVAL")
}
