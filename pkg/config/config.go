package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading bot.
// Core packages never read the environment themselves; everything they
// need is handed to them from here as plain values.
type Config struct {
	Port string

	// Trading universe
	Platforms []string
	Assets    []string

	// Execution policy
	TradingMode         string // "conservative", "standard", "aggressive"
	BaseCooldown        time.Duration
	ReservationTTL      time.Duration
	UseReservationStore bool // cross-process serialization via the DB
	SubmitTimeout       time.Duration

	// Position monitoring
	MonitorInterval time.Duration
	DrawdownPct     float64 // close when profit falls this far below peak
	MinHold         time.Duration
	StopLossPct     float64
	TakeProfitPct   float64

	// Paper broker simulation
	PaperInitialBalance float64
	PaperLatency        time.Duration
	PaperSlippageBps    float64

	// Market data
	UseMockFeed  bool
	FeedInterval time.Duration

	// Reconciliation
	ReconInterval time.Duration

	// Strategy config
	StrategyConfigPath string

	// Database
	DBPath string

	// Auth
	JWTSecret string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		Platforms:           splitAndTrim(getEnv("PLATFORMS", "MT5_DEMO")),
		Assets:              splitAndTrim(getEnv("ASSETS", "XAUUSD,EURUSD")),
		TradingMode:         strings.ToLower(getEnv("TRADING_MODE", "standard")),
		BaseCooldown:        time.Duration(getEnvInt("BASE_COOLDOWN_MINUTES", 60)) * time.Minute,
		ReservationTTL:      time.Duration(getEnvInt("RESERVATION_TTL_SECONDS", 45)) * time.Second,
		UseReservationStore: getEnv("USE_RESERVATION_STORE", "true") == "true",
		SubmitTimeout:       time.Duration(getEnvInt("SUBMIT_TIMEOUT_SECONDS", 15)) * time.Second,
		MonitorInterval:     time.Duration(getEnvInt("MONITOR_INTERVAL_SECONDS", 30)) * time.Second,
		DrawdownPct:         getEnvFloat("PEAK_DRAWDOWN_PCT", 0.20),
		MinHold:             time.Duration(getEnvInt("MIN_HOLD_MINUTES", 30)) * time.Minute,
		StopLossPct:         getEnvFloat("STOP_LOSS_PCT", 0.02),
		TakeProfitPct:       getEnvFloat("TAKE_PROFIT_PCT", 0.04),
		PaperInitialBalance: getEnvFloat("PAPER_INITIAL_BALANCE", 10000.0),
		PaperLatency:        time.Duration(getEnvInt("PAPER_LATENCY_MS", 50)) * time.Millisecond,
		PaperSlippageBps:    getEnvFloat("PAPER_SLIPPAGE_BPS", 2),
		UseMockFeed:         getEnv("USE_MOCK_FEED", "true") == "true",
		FeedInterval:        time.Duration(getEnvInt("FEED_INTERVAL_MS", 1000)) * time.Millisecond,
		ReconInterval:       time.Duration(getEnvInt("RECON_INTERVAL_SECONDS", 300)) * time.Second,
		StrategyConfigPath:  getEnv("STRATEGY_CONFIG", "strategies.yaml"),
		DBPath:              getEnv("DB_PATH", "./data/tradesentry.db"),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
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
