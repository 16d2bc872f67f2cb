package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL        string
	HTTPPort           string
	LogLevel           slog.Level
	LogFormat          string
	JWTSecret          string
	AdminAPIKey        string
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration

	FrankfurterURL     string
	CoinGeckoURL       string
	CoinGeckoDelay     time.Duration
	CoinGeckoRetryMax  int
	EthRPCURLs         []string
	MempoolURL         string
	HTTPRetryMax       int
	HTTPRetryBaseDelay time.Duration

	RateCacheTTL       time.Duration
	RateWarmCurrencies []string
	RateWorkerInterval time.Duration

	DefaultTimezone     string
	SyncSchedule        string
	ForwardFillSchedule string

	GoogleCredentialsJSON string
	GoogleSpreadsheetID   string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:        envOrDefaultWarn("DATABASE_URL", ""),
		HTTPPort:           envOrDefault("HTTP_PORT", "8080"),
		LogLevel:           envOrDefaultLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat:          envOrDefaultChoice("LOG_FORMAT", "text", "text", "json"),
		JWTSecret:          envOrDefaultWarn("JWT_SECRET", ""),
		AdminAPIKey:        envOrDefault("ADMIN_API_KEY", ""),
		CORSAllowedOrigins: envOrDefaultList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RequestTimeout:     envOrDefaultDuration("REQUEST_TIMEOUT", 30*time.Second),

		FrankfurterURL:    envOrDefault("FRANKFURTER_URL", "https://api.frankfurter.app"),
		CoinGeckoURL:      envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoDelay:    envOrDefaultDuration("COINGECKO_DELAY", 6*time.Second),
		CoinGeckoRetryMax: envOrDefaultInt("COINGECKO_RETRY_MAX", 5),
		EthRPCURLs: envOrDefaultList("ETH_RPC_URLS", []string{
			"https://eth.llamarpc.com",
			"https://rpc.ankr.com/eth",
			"https://cloudflare-eth.com",
		}),
		MempoolURL:         envOrDefault("MEMPOOL_URL", "https://mempool.space/api"),
		HTTPRetryMax:       envOrDefaultInt("HTTP_RETRY_MAX", 3),
		HTTPRetryBaseDelay: envOrDefaultDuration("HTTP_RETRY_BASE_DELAY", 2*time.Second),

		RateCacheTTL:       envOrDefaultDuration("RATE_CACHE_TTL", time.Hour),
		RateWarmCurrencies: envOrDefaultList("RATE_WARM_CURRENCIES", []string{"EUR", "GBP", "JPY", "ETH", "BTC"}),
		RateWorkerInterval: envOrDefaultDuration("RATE_WORKER_INTERVAL", time.Hour),

		DefaultTimezone:     envOrDefaultTimezone("DEFAULT_TIMEZONE", "UTC"),
		SyncSchedule:        envOrDefault("SYNC_SCHEDULE", "CRON_TZ=America/Los_Angeles 0 17 * * *"),
		ForwardFillSchedule: envOrDefault("FORWARD_FILL_SCHEDULE", "0 */6 * * *"),

		GoogleCredentialsJSON: envOrDefault("GOOGLE_CREDENTIALS_JSON", ""),
		GoogleSpreadsheetID:   envOrDefault("GOOGLE_SPREADSHEET_ID", ""),
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultWarn(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if v == "" {
		slog.Warn("required env var not set", "key", key)
	}
	return v
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}

// envOrDefaultList splits a comma-separated value, dropping blanks.
func envOrDefaultList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		slog.Warn("empty list env var, using default", "key", key, "default", defaultVal)
		return defaultVal
	}
	return out
}

func envOrDefaultLevel(key string, defaultVal slog.Level) slog.Level {
	if v := os.Getenv(key); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err != nil {
			slog.Warn("invalid log level env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return level
	}
	return defaultVal
}

func envOrDefaultChoice(key, defaultVal string, allowed ...string) string {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	slog.Warn("unsupported env var value, using default", "key", key, "value", v, "default", defaultVal)
	return defaultVal
}

func envOrDefaultTimezone(key, defaultVal string) string {
	v := envOrDefault(key, defaultVal)
	if _, err := time.LoadLocation(v); err != nil {
		slog.Warn("invalid timezone env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return v
}
