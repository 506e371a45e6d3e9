package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName           = "FXWallet"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultShutdownDelay     = 10 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultRateCacheTTL      = 5 * time.Minute
	defaultCurrencies        = "USD,MXN"
	defaultHistoryLimit      = 100
	defaultHistoryMaxLimit   = 1000
	defaultRateLimitPerMin   = 60
	defaultReconcileInterval = time.Duration(0)
	idemTTLSecondsEnvVar     = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar         = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar    = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar   = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	RateCacheTTL        time.Duration
	SupportedCurrencies []string
	HistoryDefaultLimit int
	HistoryMaxLimit     int
	RateLimitPerMinute  int
	// AdminKeyHash is a bcrypt hash; when set, rate upserts require the
	// matching X-Admin-Key header.
	AdminKeyHash      string
	ReconcileInterval time.Duration
}

// Load reads an optional .env file, then the environment, and returns the
// populated Config.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:             getEnv("APP_NAME", defaultAppName),
		AppEnv:              getEnv("APP_ENV", defaultAppEnv),
		Port:                getEnv("PORT", defaultPort),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		ShutdownPeriod:      defaultShutdownDelay,
		IdempotencyTTL:      defaultIdempotencyTTL,
		RateCacheTTL:        defaultRateCacheTTL,
		SupportedCurrencies: parseCurrencies(getEnv("SUPPORTED_CURRENCIES", defaultCurrencies)),
		HistoryDefaultLimit: defaultHistoryLimit,
		HistoryMaxLimit:     defaultHistoryMaxLimit,
		RateLimitPerMinute:  defaultRateLimitPerMin,
		AdminKeyHash:        os.Getenv("ADMIN_KEY_HASH"),
		ReconcileInterval:   defaultReconcileInterval,
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateCacheTTL, err = getDuration("RATE_CACHE_TTL", cfg.RateCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", cfg.ReconcileInterval); err != nil {
		return Config{}, err
	}
	if cfg.HistoryDefaultLimit, err = getInt("HISTORY_DEFAULT_LIMIT", cfg.HistoryDefaultLimit); err != nil {
		return Config{}, err
	}
	if cfg.HistoryMaxLimit, err = getInt("HISTORY_MAX_LIMIT", cfg.HistoryMaxLimit); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return Config{}, err
	}

	if len(cfg.SupportedCurrencies) == 0 {
		return Config{}, fmt.Errorf("SUPPORTED_CURRENCIES must list at least one currency")
	}
	if cfg.HistoryDefaultLimit <= 0 {
		return Config{}, fmt.Errorf("HISTORY_DEFAULT_LIMIT must be positive")
	}
	if cfg.HistoryMaxLimit < cfg.HistoryDefaultLimit {
		return Config{}, fmt.Errorf("HISTORY_MAX_LIMIT must be at least HISTORY_DEFAULT_LIMIT")
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the in-memory fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// secondsOrDuration prefers the integer-seconds variable over the Go
// duration one.
func secondsOrDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	return getDuration(durationKey, fallback)
}

func parseCurrencies(raw string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
