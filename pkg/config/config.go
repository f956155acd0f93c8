package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the venue core.
type Config struct {
	Port string

	// Catalog / persistence
	CatalogPath string // empty = built-in catalog
	DBPath      string

	// Price feed
	TickInterval time.Duration
	HistoryCap   int

	// Contract engine
	MarginRate       float64 // fraction of notional reserved per unit leverage
	CloseFeeRate     float64 // fee on closing notional
	MaxLeverage      float64
	LiquidationRatio float64 // unrealized loss / margin that forces a close

	// Fund engine
	NAVInterval time.Duration

	// Accounts
	InitialBalance float64 // seeded on first touch of a new user

	// Snapshot writer
	SnapshotBatchSize int
	SnapshotFlush     time.Duration

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		CatalogPath:       getEnv("CATALOG_PATH", ""),
		DBPath:            getEnv("DB_PATH", "./data/venue.db"),
		TickInterval:      getEnvDuration("TICK_INTERVAL", 3*time.Second),
		HistoryCap:        getEnvInt("HISTORY_CAP", 100),
		MarginRate:        getEnvFloat("MARGIN_RATE", 0.1),
		CloseFeeRate:      getEnvFloat("CLOSE_FEE_RATE", 0.0004),
		MaxLeverage:       getEnvFloat("MAX_LEVERAGE", 100),
		LiquidationRatio:  getEnvFloat("LIQUIDATION_RATIO", 0.9),
		NAVInterval:       getEnvDuration("NAV_INTERVAL", time.Minute),
		InitialBalance:    getEnvFloat("INITIAL_BALANCE", 10000.0),
		SnapshotBatchSize: getEnvInt("SNAPSHOT_BATCH_SIZE", 50),
		SnapshotFlush:     getEnvDuration("SNAPSHOT_FLUSH_INTERVAL", 500*time.Millisecond),
		JWTSecret:         getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
