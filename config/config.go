// Package config loads application configuration from environment
// variables (optionally a .env file) and validates it up front: any
// invalid value is a startup failure, never a runtime surprise.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Broker API
	FyersClientID    string
	FyersAccessToken string
	FyersAPIURL      string // override for testing; empty means production
	FyersDataURL     string
	FyersWSURL       string

	// Trading Parameters
	Mode             string  // PAPER or LIVE
	Underlying       string  // e.g. NIFTY (normalized to the data symbol)
	Timeframe        string  // candle resolution in minutes, e.g. "5"
	Quantity         int     // units per order (lot size multiples)
	StopLossPct      float64 // fraction of entry premium, e.g. 0.20
	TargetPct        float64 // fraction of entry premium, e.g. 0.40
	StrikeInterval   int     // strike step for ATM selection, e.g. 50
	Expiry           string  // option expiry code, e.g. 25AUG
	OrderTimeout     time.Duration
	MaxEntryAttempts int

	// Strategy Parameters
	FastEMAPeriod int
	SlowEMAPeriod int
	RSIPeriod     int

	// Session
	SessionOpen     string // HH:MM exchange local time
	SessionClose    string
	SessionTimezone string
	SquareOffLead   time.Duration // force-exit window before close

	// Loop timing
	PollInterval     time.Duration
	WatchdogInterval time.Duration

	// Webhook / HTTP
	ListenAddr   string
	WebhookToken string

	// Database
	DBPath string

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Trading mode first: PAPER needs no broker credentials for orders,
	// but market data still requires a token.
	cfg.Mode = strings.ToUpper(getEnv("TRADING_MODE", "PAPER"))
	if cfg.Mode != "PAPER" && cfg.Mode != "LIVE" {
		errs = append(errs, "TRADING_MODE must be PAPER or LIVE")
	}

	// Broker API
	cfg.FyersClientID = getEnv("FYERS_CLIENT_ID", "")
	cfg.FyersAccessToken = getEnv("FYERS_ACCESS_TOKEN", "")
	cfg.FyersAPIURL = getEnv("FYERS_API_URL", "")
	cfg.FyersDataURL = getEnv("FYERS_DATA_URL", "")
	cfg.FyersWSURL = getEnv("FYERS_WS_URL", "")
	if cfg.FyersClientID == "" {
		errs = append(errs, "FYERS_CLIENT_ID must be set")
	}
	if cfg.FyersAccessToken == "" {
		errs = append(errs, "FYERS_ACCESS_TOKEN must be set")
	}

	// Trading Parameters
	cfg.Underlying = getEnv("UNDERLYING", "NIFTY")
	if cfg.Underlying == "" {
		errs = append(errs, "UNDERLYING must be set")
	}

	cfg.Timeframe = getEnv("TIMEFRAME", "5")
	if tf, tfErr := strconv.Atoi(cfg.Timeframe); tfErr != nil || tf <= 0 {
		errs = append(errs, "TIMEFRAME must be a positive minute resolution")
	}

	cfg.Quantity, err = getEnvAsIntRequired("QUANTITY", 50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid QUANTITY: %v", err))
	} else if cfg.Quantity <= 0 {
		errs = append(errs, "QUANTITY must be positive")
	}

	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 0.20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 || cfg.StopLossPct >= 1.0 {
		errs = append(errs, "STOP_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TargetPct, err = getEnvAsFloatRequired("TARGET_PCT", 0.40)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TARGET_PCT: %v", err))
	} else if cfg.TargetPct <= 0 || cfg.TargetPct >= 1.0 {
		errs = append(errs, "TARGET_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.StrikeInterval = getEnvAsInt("STRIKE_INTERVAL", 50)
	if cfg.StrikeInterval <= 0 {
		errs = append(errs, "STRIKE_INTERVAL must be positive")
	}

	cfg.Expiry = strings.ToUpper(getEnv("OPTION_EXPIRY", ""))
	if cfg.Expiry == "" {
		errs = append(errs, "OPTION_EXPIRY must be set (e.g. 25AUG)")
	}

	orderTimeoutSeconds := getEnvAsInt("ORDER_TIMEOUT_SECONDS", 5)
	if orderTimeoutSeconds <= 0 {
		errs = append(errs, "ORDER_TIMEOUT_SECONDS must be positive")
	}
	cfg.OrderTimeout = time.Duration(orderTimeoutSeconds) * time.Second

	cfg.MaxEntryAttempts = getEnvAsInt("MAX_ENTRY_ATTEMPTS", 2)
	if cfg.MaxEntryAttempts <= 0 {
		errs = append(errs, "MAX_ENTRY_ATTEMPTS must be positive")
	}

	// Strategy Parameters
	cfg.FastEMAPeriod = getEnvAsInt("FAST_EMA_PERIOD", 9)
	cfg.SlowEMAPeriod = getEnvAsInt("SLOW_EMA_PERIOD", 21)
	cfg.RSIPeriod = getEnvAsInt("RSI_PERIOD", 14)
	if cfg.FastEMAPeriod <= 0 || cfg.SlowEMAPeriod <= 0 || cfg.RSIPeriod <= 0 {
		errs = append(errs, "strategy periods (EMA, RSI) must be positive")
	}
	if cfg.FastEMAPeriod >= cfg.SlowEMAPeriod {
		errs = append(errs, "FAST_EMA_PERIOD must be less than SLOW_EMA_PERIOD")
	}

	// Session
	cfg.SessionOpen = getEnv("SESSION_OPEN", "09:15")
	cfg.SessionClose = getEnv("SESSION_CLOSE", "15:30")
	cfg.SessionTimezone = getEnv("SESSION_TIMEZONE", "Asia/Kolkata")

	squareOffLeadMinutes := getEnvAsInt("SQUARE_OFF_LEAD_MINUTES", 10)
	if squareOffLeadMinutes <= 0 {
		errs = append(errs, "SQUARE_OFF_LEAD_MINUTES must be positive")
	}
	cfg.SquareOffLead = time.Duration(squareOffLeadMinutes) * time.Minute

	// Loop timing
	pollSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 15)
	if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	watchdogSeconds := getEnvAsInt("WATCHDOG_INTERVAL_SECONDS", 30)
	if watchdogSeconds <= 0 {
		errs = append(errs, "WATCHDOG_INTERVAL_SECONDS must be positive")
	}
	cfg.WatchdogInterval = time.Duration(watchdogSeconds) * time.Second

	// Webhook / HTTP
	cfg.ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	cfg.WebhookToken = getEnv("WEBHOOK_TOKEN", "")
	if cfg.WebhookToken == "" {
		errs = append(errs, "WEBHOOK_TOKEN must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/options_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
