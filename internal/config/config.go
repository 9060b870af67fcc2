// Package config handles loading and validating configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the tracker.
type Config struct {
	// Polymarket APIs
	GammaAPIURL string
	DataAPIURL  string
	CLOBWSURL   string

	// HTTP transport
	HTTPTimeout     time.Duration
	RequestsPerSec  int
	MaxRetryElapsed time.Duration

	// Large trade detector
	SizePercentile          float64
	TradeWindowHours        int
	MinTradeUSD             float64
	HighConfidencePrice     float64
	LargeTradeSampleLimit   int

	// Volume anomaly detector
	ZScoreThreshold      float64
	LookbackDays         int
	MinTradesForBaseline int
	VolumeSampleLimit    int

	// Wallet cluster detector
	CoordinationWindow    time.Duration
	MinClusterSize        int
	MinSharedMarkets      int
	CoordinationThreshold float64
	ClusterSampleLimit    int

	// Scan orchestration
	ScanWorkers     int
	ScanMarketLimit int
	MinVolume24h    float64
	WatchInterval   time.Duration

	// Alerting
	TelegramBotToken string
	TelegramChatIDs  []string
	AlertCooldown    time.Duration

	// Metrics
	PrometheusPort int

	// UI
	EnableTUI     bool
	UIRefreshRate time.Duration

	// Logging
	LogLevel string
}

// Load reads configuration from environment variables with fallback to .env file.
// Priority order: Environment variables > .env file > hardcoded defaults
func Load() (*Config, error) {
	// Attempt to load .env file (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		// APIs
		GammaAPIURL: getEnv("GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		DataAPIURL:  getEnv("DATA_API_URL", "https://data-api.polymarket.com"),
		CLOBWSURL:   getEnv("CLOB_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/"),

		// Transport
		HTTPTimeout:     time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RequestsPerSec:  getEnvInt("HTTP_REQUESTS_PER_SEC", 5),
		MaxRetryElapsed: time.Duration(getEnvInt("HTTP_MAX_RETRY_SECONDS", 30)) * time.Second,

		// Large trades
		SizePercentile:        getEnvFloat("SIZE_PERCENTILE", 95),
		TradeWindowHours:      getEnvInt("TRADE_WINDOW_HOURS", 24),
		MinTradeUSD:           getEnvFloat("MIN_TRADE_USD", 1000),
		HighConfidencePrice:   getEnvFloat("HIGH_CONFIDENCE_PRICE", 0.85),
		LargeTradeSampleLimit: getEnvInt("LARGE_TRADE_SAMPLE_LIMIT", 2000),

		// Volume anomalies
		ZScoreThreshold:      getEnvFloat("Z_SCORE_THRESHOLD", 3.0),
		LookbackDays:         getEnvInt("LOOKBACK_DAYS", 7),
		MinTradesForBaseline: getEnvInt("MIN_TRADES_FOR_BASELINE", 50),
		VolumeSampleLimit:    getEnvInt("VOLUME_SAMPLE_LIMIT", 5000),

		// Wallet clusters
		CoordinationWindow:    time.Duration(getEnvInt("COORDINATION_WINDOW_MINUTES", 30)) * time.Minute,
		MinClusterSize:        getEnvInt("MIN_CLUSTER_SIZE", 3),
		MinSharedMarkets:      getEnvInt("MIN_SHARED_MARKETS", 2),
		CoordinationThreshold: getEnvFloat("COORDINATION_THRESHOLD", 0.7),
		ClusterSampleLimit:    getEnvInt("CLUSTER_SAMPLE_LIMIT", 1000),

		// Scanning
		ScanWorkers:     getEnvInt("SCAN_WORKERS", 4),
		ScanMarketLimit: getEnvInt("SCAN_MARKET_LIMIT", 20),
		MinVolume24h:    getEnvFloat("MIN_VOLUME_24H", 10000),
		WatchInterval:   time.Duration(getEnvInt("WATCH_INTERVAL_MINUTES", 15)) * time.Minute,

		// Alerting
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:  getEnvList("TELEGRAM_CHAT_IDS"),
		AlertCooldown:    time.Duration(getEnvInt("ALERT_COOLDOWN_MINUTES", 60)) * time.Minute,

		// Metrics
		PrometheusPort: getEnvInt("PROMETHEUS_PORT", 9090),

		// UI
		EnableTUI:     getEnvBool("ENABLE_TUI", false),
		UIRefreshRate: time.Duration(getEnvInt("UI_REFRESH_MS", 500)) * time.Millisecond,

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are sane.
func (c *Config) Validate() error {
	if c.GammaAPIURL == "" {
		return fmt.Errorf("GAMMA_API_URL is required")
	}

	if c.DataAPIURL == "" {
		return fmt.Errorf("DATA_API_URL is required")
	}

	if c.SizePercentile <= 0 || c.SizePercentile >= 100 {
		return fmt.Errorf("SIZE_PERCENTILE must be between 0 and 100 exclusive")
	}

	if c.ZScoreThreshold <= 0 {
		return fmt.Errorf("Z_SCORE_THRESHOLD must be positive")
	}

	if c.CoordinationThreshold < 0 || c.CoordinationThreshold > 1 {
		return fmt.Errorf("COORDINATION_THRESHOLD must be between 0 and 1")
	}

	if c.MinClusterSize < 2 {
		return fmt.Errorf("MIN_CLUSTER_SIZE must be at least 2")
	}

	if c.ScanWorkers < 1 {
		return fmt.Errorf("SCAN_WORKERS must be at least 1")
	}

	if c.PrometheusPort < 1 || c.PrometheusPort > 65535 {
		return fmt.Errorf("PROMETHEUS_PORT must be between 1 and 65535")
	}

	return nil
}

// MaskedTelegramToken returns the bot token with most characters hidden for logging.
func (c *Config) MaskedTelegramToken() string {
	return maskSecret(c.TelegramBotToken)
}

// maskSecret hides all but the first and last 4 characters of a secret.
func maskSecret(s string) string {
	if len(s) <= 8 {
		if len(s) == 0 {
			return "(not set)"
		}
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float64 or returns a default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvList retrieves a comma-separated environment variable as a slice.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
