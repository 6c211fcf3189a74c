// Package config loads folio settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port               string
	BackendURL         string        // portfolio backend API base, e.g. http://localhost:3000/api/v1
	BackendToken       string        // bearer token forwarded when the caller sends none
	BackendTimeout     time.Duration // per-request timeout for backend calls
	DBPath             string
	Currency           string // currency for manually created assets and positions
	PriceRPS           float64
	PriceBurst         int
	TreeRefresh        time.Duration
	ScopeCacheSize     int
	ScopeCacheTTL      time.Duration // how long a loaded scope is served before prices are refetched
	LogLevel           string
	LogFormat          string // console or json
	CORSAllowedOrigins []string
	FrontendDistPath   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		BackendURL:         strings.TrimRight(getEnv("FOLIO_BACKEND_URL", "http://localhost:3000/api/v1"), "/"),
		BackendToken:       getEnv("FOLIO_BACKEND_TOKEN", ""),
		BackendTimeout:     getEnvAsDuration("FOLIO_BACKEND_TIMEOUT", 15*time.Second),
		DBPath:             getEnv("DB_PATH", "./folio.db"),
		Currency:           strings.ToUpper(getEnv("FOLIO_CURRENCY", "EUR")),
		PriceRPS:           getEnvAsFloat("FOLIO_PRICE_RPS", 2),
		PriceBurst:         getEnvAsInt("FOLIO_PRICE_BURST", 4),
		TreeRefresh:        getEnvAsDuration("FOLIO_TREE_REFRESH", 5*time.Minute),
		ScopeCacheSize:     getEnvAsInt("FOLIO_SCOPE_CACHE_SIZE", 32),
		ScopeCacheTTL:      getEnvAsDuration("FOLIO_SCOPE_CACHE_TTL", 30*time.Second),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		FrontendDistPath:   getEnv("FRONTEND_DIST_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid FOLIO_BACKEND_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid FOLIO_BACKEND_URL %q: scheme must be http or https", c.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid FOLIO_BACKEND_URL %q: missing host", c.BackendURL)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("invalid FOLIO_CURRENCY %q: expected a 3-letter code", c.Currency)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("FOLIO_BACKEND_TIMEOUT must be positive")
	}
	if c.PriceRPS <= 0 || c.PriceBurst < 1 {
		return fmt.Errorf("price limiter needs FOLIO_PRICE_RPS > 0 and FOLIO_PRICE_BURST >= 1")
	}
	if c.ScopeCacheSize < 1 {
		return fmt.Errorf("FOLIO_SCOPE_CACHE_SIZE must be at least 1")
	}
	if c.ScopeCacheTTL <= 0 {
		return fmt.Errorf("FOLIO_SCOPE_CACHE_TTL must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: expected console or json", c.LogFormat)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
