package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Robinhood Crypto credentials
	APIKey         string
	PrivateKeyB64  string // base64-encoded ed25519 seed
	TOTPSecret     string // optional, for MFA-gated endpoints

	// Market data
	Instruments      string // comma-separated, e.g. "BTC-USD,ETH-USD"
	DataDir          string
	PollInterval     time.Duration
	RolloverInterval time.Duration
	Interpolate      bool
	WindowSize       int

	// Trading
	MaxRisk        float64 // max fraction of buying power per trade
	SMAFast        int
	SMASlow        int
	RiskPercentage float64 // fraction of buying power per entry
	StopLossPct    float64
	TakeProfitPct  float64

	// Infrastructure
	JournalPath   string
	MetricsAddr   string
	RedisAddr     string // empty disables the Redis mirror
	RedisPassword string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		APIKey:        mustEnv("ROBINHOOD_API_KEY"),
		PrivateKeyB64: mustEnv("ROBINHOOD_PRIVATE_KEY"),
		TOTPSecret:    getEnv("ROBINHOOD_TOTP_SECRET", ""),

		Instruments:      getEnv("INSTRUMENTS", "BTC-USD"),
		DataDir:          getEnv("DATA_DIR", "data"),
		PollInterval:     getDuration("POLL_INTERVAL", 2*time.Second),
		RolloverInterval: getDuration("ROLLOVER_CHECK_INTERVAL", 100*time.Millisecond),
		Interpolate:      getBool("INTERPOLATE_MISSING", true),
		WindowSize:       getInt("WINDOW_SIZE", 0), // 0 = full window

		MaxRisk:        getFloat("MAX_RISK", 0.05),
		SMAFast:        getInt("SMA_FAST", 9),
		SMASlow:        getInt("SMA_SLOW", 21),
		RiskPercentage: getFloat("RISK_PERCENTAGE", 0.02),
		StopLossPct:    getFloat("STOP_LOSS_PCT", 0.01),
		TakeProfitPct:  getFloat("TAKE_PROFIT_PCT", 0.02),

		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
	}
}

// ParseInstruments parses the Instruments string into trading pair symbols.
func (c *Config) ParseInstruments() []string {
	parts := strings.Split(c.Instruments, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		symbols = append(symbols, p)
	}
	return symbols
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return d
}
