package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TimeOfDay is a wall-clock deadline ("HH:MM") in the configured timezone
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Config holds application configuration
type Config struct {
	DatabasePath     string
	TickersPath      string
	BrokerServiceURL string
	BrokerAccount    string // empty = auto-detect the single active account
	LogLevel         string
	Port             int
	DevMode          bool

	// Allocation
	MaxPortfolioSize  int
	RoundQuantitiesTo int

	// Order types (broker order-type identifiers, e.g. LMT, MKT)
	PrimarySellType   string
	AuxiliarySellType string
	PrimaryBuyType    string
	AuxiliaryBuyType  string

	// Execution deadlines. Durations and times-of-day are optional; when
	// neither is set a phase falls back to a 24h cutoff.
	SellWaitDuration *time.Duration
	BuyWaitDuration  *time.Duration
	SellWaitUntil    *TimeOfDay
	BuyWaitUntil     *TimeOfDay
	PollInterval     time.Duration
	Timezone         *time.Location

	// Historical data
	HistoricalLookbackDays int

	// Cron spec for scheduled rebalance runs (empty = manual trigger only)
	RebalanceSchedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnvAsInt("GO_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		DatabasePath:      getEnv("DATABASE_PATH", "./data/autobroker.db"),
		TickersPath:       getEnv("TICKERS_PATH", "./settings/tickers.txt"),
		BrokerServiceURL:  getEnv("BROKER_SERVICE_URL", "http://localhost:9001"),
		BrokerAccount:     getEnv("BROKER_ACCOUNT", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MaxPortfolioSize:  getEnvAsInt("MAX_PORTFOLIO_SIZE", 13),
		RoundQuantitiesTo: getEnvAsInt("ROUND_QUANTITIES_TO", 1),
		PrimarySellType:   getEnv("PRIMARY_SELL_TYPE", "LMT"),
		AuxiliarySellType: getEnv("AUXILIARY_SELL_TYPE", "MKT"),
		PrimaryBuyType:    getEnv("PRIMARY_BUY_TYPE", "LMT"),
		AuxiliaryBuyType:  getEnv("AUXILIARY_BUY_TYPE", "MKT"),
		RebalanceSchedule: getEnv("REBALANCE_SCHEDULE", ""),

		HistoricalLookbackDays: getEnvAsInt("HISTORICAL_LOOKBACK_DAYS", 730),
	}

	pollMs := getEnvAsInt("POLL_INTERVAL_MS", 500)
	cfg.PollInterval = time.Duration(pollMs) * time.Millisecond

	tz, err := time.LoadLocation(getEnv("TIMEZONE", "America/New_York"))
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}
	cfg.Timezone = tz

	if cfg.SellWaitDuration, err = getEnvAsClockDuration("SELL_WAIT_DURATION"); err != nil {
		return nil, err
	}
	if cfg.BuyWaitDuration, err = getEnvAsClockDuration("BUY_WAIT_DURATION"); err != nil {
		return nil, err
	}
	if cfg.SellWaitUntil, err = getEnvAsTimeOfDay("SELL_WAIT_UNTIL"); err != nil {
		return nil, err
	}
	if cfg.BuyWaitUntil, err = getEnvAsTimeOfDay("BUY_WAIT_UNTIL"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}
	if c.TickersPath == "" {
		return fmt.Errorf("TICKERS_PATH is required")
	}
	if c.MaxPortfolioSize <= 0 {
		return fmt.Errorf("MAX_PORTFOLIO_SIZE must be positive")
	}
	if c.RoundQuantitiesTo <= 0 {
		return fmt.Errorf("ROUND_QUANTITIES_TO must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	return nil
}

// parseClock parses an "HH:MM" value into hours and minutes
func parseClock(value string) (int, int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", value)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hours in %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid minutes in %q: %w", value, err)
	}
	if minutes < 0 || minutes > 59 {
		return 0, 0, fmt.Errorf("minutes out of range in %q", value)
	}

	return hours, minutes, nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsClockDuration parses an "HH:MM" elapsed-time value, nil if unset
func getEnvAsClockDuration(key string) (*time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}

	hours, minutes, err := parseClock(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}

	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	return &d, nil
}

// getEnvAsTimeOfDay parses an "HH:MM" wall-clock value, nil if unset
func getEnvAsTimeOfDay(key string) (*TimeOfDay, error) {
	value := os.Getenv(key)
	if value == "" {
		return nil, nil
	}

	hours, minutes, err := parseClock(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	if hours < 0 || hours > 23 {
		return nil, fmt.Errorf("%s: hours out of range in %q", key, value)
	}

	return &TimeOfDay{Hour: hours, Minute: minutes}, nil
}
