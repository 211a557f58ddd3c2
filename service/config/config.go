package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr         string
	LogLevel           string
	CORSAllowedOrigins []string

	// Tracked wallet and transaction source
	WalletAddress string
	HeliusAPIKey  string
	HeliusBaseURL string

	// Storage configuration. DatabaseURL selects Postgres; otherwise the
	// embedded SQLite file at DBPath is used.
	DBPath      string
	DatabaseURL string

	// Pricing configuration
	DexScreenerBaseURL string
	FXBaseURL          string
	ReferenceCurrency  string
	FXFallbackRate     float64
	PriceChunkSize     int
	RedisAddr          string
	PriceCacheTTL      time.Duration

	// Optional NATS event publication
	NATSURL string

	// Sync configuration
	HTTPTimeout     time.Duration
	SyncPageLimit   int
	SyncMaxPages    int
	HoldingsEpsilon float64
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	return load(true)
}

// LoadWithoutSource is like Load but leaves HELIUS_API_KEY optional, for
// commands that only read the store and price holdings.
func LoadWithoutSource() (*Config, error) {
	return load(false)
}

func load(requireSource bool) (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigins = splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "*"))

	cfg.WalletAddress = os.Getenv("MY_WALLET")
	if cfg.WalletAddress == "" {
		errs = append(errs, fmt.Errorf("MY_WALLET is required"))
	} else if _, err := solanago.PublicKeyFromBase58(cfg.WalletAddress); err != nil {
		errs = append(errs, fmt.Errorf("MY_WALLET: invalid solana address %q: %w", cfg.WalletAddress, err))
	}
	cfg.HeliusAPIKey = os.Getenv("HELIUS_API_KEY")
	if cfg.HeliusAPIKey == "" && requireSource {
		errs = append(errs, fmt.Errorf("HELIUS_API_KEY is required"))
	}
	cfg.HeliusBaseURL = getEnvOrDefault("HELIUS_BASE_URL", "https://api.helius.xyz")

	cfg.DBPath = getEnvOrDefault("DB_PATH", "solana_tracker.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.DexScreenerBaseURL = getEnvOrDefault("DEXSCREENER_BASE_URL", "https://api.dexscreener.com")
	cfg.FXBaseURL = getEnvOrDefault("FX_BASE_URL", "https://api.frankfurter.app")
	cfg.ReferenceCurrency = getEnvOrDefault("REFERENCE_CURRENCY", "EUR")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.NATSURL = os.Getenv("NATS_URL")

	if v, err := parseFloat("FX_FALLBACK_RATE", 0.93); err != nil {
		errs = append(errs, err)
	} else {
		cfg.FXFallbackRate = v
	}
	if v, err := parseFloat("HOLDINGS_EPSILON", 0.000001); err != nil {
		errs = append(errs, err)
	} else {
		cfg.HoldingsEpsilon = v
	}
	if v, err := parseInt("PRICE_CHUNK_SIZE", 30); err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceChunkSize = v
	}
	if v, err := parseInt("SYNC_PAGE_LIMIT", 100); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncPageLimit = v
	}
	if v, err := parseInt("SYNC_MAX_PAGES", 50); err != nil {
		errs = append(errs, err)
	} else {
		cfg.SyncMaxPages = v
	}
	if v, err := parseDuration("HTTP_TIMEOUT", "10s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.HTTPTimeout = v
	}
	if v, err := parseDuration("PRICE_CACHE_TTL", "60s"); err != nil {
		errs = append(errs, err)
	} else {
		cfg.PriceCacheTTL = v
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}
	if err := cfg.validate(requireSource); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateWithoutSource is like Validate but does not require HeliusAPIKey.
func (c *Config) ValidateWithoutSource() error {
	return c.validate(false)
}

func (c *Config) validate(requireSource bool) error {
	var errs []error

	if c.WalletAddress == "" {
		errs = append(errs, fmt.Errorf("WalletAddress is required"))
	} else if _, err := solanago.PublicKeyFromBase58(c.WalletAddress); err != nil {
		errs = append(errs, fmt.Errorf("WalletAddress: invalid solana address %q: %w", c.WalletAddress, err))
	}
	if c.HeliusAPIKey == "" && requireSource {
		errs = append(errs, fmt.Errorf("HeliusAPIKey is required"))
	}
	if c.DBPath == "" && c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("one of DBPath or DatabaseURL is required"))
	}
	if c.SyncPageLimit < 1 {
		errs = append(errs, fmt.Errorf("SyncPageLimit must be at least 1"))
	}
	if c.SyncMaxPages < 1 {
		errs = append(errs, fmt.Errorf("SyncMaxPages must be at least 1"))
	}
	if c.PriceChunkSize < 1 {
		errs = append(errs, fmt.Errorf("PriceChunkSize must be at least 1"))
	}
	if c.HoldingsEpsilon < 0 {
		errs = append(errs, fmt.Errorf("HoldingsEpsilon cannot be negative"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTPTimeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

func parseFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, value, err)
	}
	return result, nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
