package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"ema_scanner_backend/models"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, loaded once at startup.
type Config struct {
	Port        string
	Environment string

	// Market data provider: "polygon" or "alpaca"
	Provider        string
	PolygonAPIKey   string
	PolygonBaseURL  string
	AlpacaAPIKey    string
	AlpacaSecretKey string

	// Scan tuning
	Tickers         []string
	PacingInterval  time.Duration
	LookbackDays    int
	ScanSchedule    string // "HH:MM", US Eastern
	ScanIntervalMin int    // 0 disables the periodic rescan
	ScanOnStart     bool

	// Retry policy for per-ticker fetches
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration

	// Result archive: "mongo", "sqlite" or "none"
	ArchiveDriver string
	MongoURI      string
	SQLitePath    string
}

var AppConfig *Config

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Provider:        strings.ToLower(getEnv("MARKET_DATA_PROVIDER", "polygon")),
		PolygonAPIKey:   getEnv("POLYGON_API_KEY", ""),
		PolygonBaseURL:  getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),
		AlpacaAPIKey:    getEnv("ALPACA_API_KEY", ""),
		AlpacaSecretKey: getEnv("ALPACA_SECRET_KEY", ""),

		Tickers:         parseTickers(getEnv("SCAN_TICKERS", "")),
		PacingInterval:  time.Duration(getEnvInt("SCAN_PACING_SECONDS", 30)) * time.Second,
		LookbackDays:    getEnvInt("SCAN_LOOKBACK_DAYS", 30),
		ScanSchedule:    getEnv("SCAN_SCHEDULE", "16:30"),
		ScanIntervalMin: getEnvInt("SCAN_INTERVAL_MINUTES", 0),
		ScanOnStart:     getEnvBool("SCAN_ON_START", false),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   time.Duration(getEnvInt("RETRY_BASE_DELAY_SECONDS", 5)) * time.Second,

		MongoURI:   getEnv("MONGODB_URI", ""),
		SQLitePath: getEnv("SQLITE_PATH", ""),
	}

	config.ArchiveDriver = strings.ToLower(getEnv("ARCHIVE_DRIVER", defaultArchiveDriver(config)))

	AppConfig = config
	return config, nil
}

// defaultArchiveDriver picks the archive backend from what is configured:
// MongoDB when a URI is present, local SQLite when a path is present,
// otherwise the in-memory snapshot is the only store.
func defaultArchiveDriver(c *Config) string {
	if c.MongoURI != "" {
		return "mongo"
	}
	if c.SQLitePath != "" {
		return "sqlite"
	}
	return "none"
}

// parseTickers splits a comma-separated SCAN_TICKERS override. An empty value
// keeps the built-in ETF universe.
func parseTickers(raw string) []string {
	if raw == "" {
		return models.DefaultUniverse
	}
	parts := strings.Split(raw, ",")
	tickers := make([]string, 0, len(parts))
	for _, p := range parts {
		symbol := strings.ToUpper(strings.TrimSpace(p))
		if symbol != "" {
			tickers = append(tickers, symbol)
		}
	}
	if len(tickers) == 0 {
		return models.DefaultUniverse
	}
	return tickers
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}
