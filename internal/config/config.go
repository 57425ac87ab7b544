// Package config loads pipeline configuration from the environment: a
// .env file if present, falling back to os.Getenv with typed defaults.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration object threaded through the supervisor
// into every component.
type Config struct {
	GlobalUSDThreshold float64

	Whale          WhaleThresholds
	Classification ClassificationThresholds

	CESRetention    time.Duration
	CESMaxEntries   int

	SentimentWindow time.Duration
	SentimentTick   time.Duration
	SentimentMinTx  int

	Adapters AdaptersConfig

	Database DatabaseConfig
	Redis    RedisConfig

	APIPort int
}

// WhaleThresholds holds the USD bands used for whale scoring.
type WhaleThresholds struct {
	MegaWhaleUSD    float64
	WhaleUSD        float64
	LargeTraderUSD  float64
	MediumTraderUSD float64
}

// ClassificationThresholds holds the confidence bands used by the
// short-circuit rule and master classifier.
type ClassificationThresholds struct {
	HighConfidence      float64
	ModerateSignal      float64
	MediumConfidence    float64
	AggregationThreshold float64
}

// DatabaseConfig holds flat Postgres connection fields.
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
}

// RedisConfig holds flat Redis connection fields.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// WatchedToken is one entry of an EVM (ETH_POLL/POLYGON_POLL) watchlist.
type WatchedToken struct {
	Symbol          string
	Contract        string
	Decimals        int
	MinThresholdUSD float64
}

// WatchedMint is one entry of the Solana mint watchlist.
type WatchedMint struct {
	Symbol string
	Mint   string
}

// AdaptersConfig groups per-source enable flags, endpoints, and watchlists.
type AdaptersConfig struct {
	EthEnabled        bool
	EthEndpoint       string
	EthAPIKey         string
	EthPollInterval   time.Duration
	EthWatchlist      []WatchedToken

	PolygonEnabled      bool
	PolygonEndpoint     string
	PolygonAPIKey       string
	PolygonPollInterval time.Duration
	PolygonWatchlist    []WatchedToken

	SolanaEnabled     bool
	SolanaWSURL       string
	SolanaRPCURL      string
	SolanaWatchlist   []WatchedMint

	XRPEnabled  bool
	XRPWSURLs   []string

	WhaleAlertEnabled   bool
	WhaleAlertWSURL     string
	WhaleAlertAPIKey    string
	WhaleAlertMinUSD    float64
	StablecoinSymbols   map[string]bool

	MaxConsecutiveFailures int
}

// Load reads configuration from a .env file (if present) and the process
// environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		GlobalUSDThreshold: getEnvFloat("GLOBAL_USD_THRESHOLD", 2500),

		Whale: WhaleThresholds{
			MegaWhaleUSD:    getEnvFloat("WHALE_MEGA_WHALE_USD", 10_000_000),
			WhaleUSD:        getEnvFloat("WHALE_WHALE_USD", 1_000_000),
			LargeTraderUSD:  getEnvFloat("WHALE_LARGE_TRADER_USD", 100_000),
			MediumTraderUSD: getEnvFloat("WHALE_MEDIUM_TRADER_USD", 10_000),
		},

		Classification: ClassificationThresholds{
			HighConfidence:       getEnvFloat("CLASSIFICATION_HIGH_CONFIDENCE", 0.80),
			ModerateSignal:       getEnvFloat("CLASSIFICATION_MODERATE_SIGNAL", 0.50),
			MediumConfidence:     getEnvFloat("CLASSIFICATION_MEDIUM_CONFIDENCE", 0.60),
			AggregationThreshold: getEnvFloat("CLASSIFICATION_AGGREGATION_THRESHOLD", 0.30),
		},

		CESRetention:  getEnvDuration("CES_RETENTION_SECONDS", 2*time.Hour),
		CESMaxEntries: getEnvInt("CES_MAX_ENTRIES", 50_000),

		SentimentWindow: getEnvDuration("SENTIMENT_WINDOW_HOURS_SECONDS", 2*time.Hour),
		SentimentTick:   getEnvDuration("SENTIMENT_TICK_SECONDS", 60*time.Second),
		SentimentMinTx:  getEnvInt("SENTIMENT_MIN_TX", 3),

		Adapters: AdaptersConfig{
			EthEnabled:          getEnvOrDefault("ETH_POLL_ENABLED", "true") == "true",
			EthEndpoint:         getEnvOrDefault("ETH_SCAN_ENDPOINT", "https://api.etherscan.io"),
			EthAPIKey:           os.Getenv("ETH_SCAN_API_KEY"),
			EthPollInterval:     getEnvDuration("ETH_POLL_INTERVAL_SECONDS", 60*time.Second),

			PolygonEnabled:      getEnvOrDefault("POLYGON_POLL_ENABLED", "true") == "true",
			PolygonEndpoint:     getEnvOrDefault("POLYGON_SCAN_ENDPOINT", "https://api.polygonscan.com"),
			PolygonAPIKey:       os.Getenv("POLYGON_SCAN_API_KEY"),
			PolygonPollInterval: getEnvDuration("POLYGON_POLL_INTERVAL_SECONDS", 60*time.Second),

			EthWatchlist:    parseWatchlist(os.Getenv("ETH_WATCHLIST_JSON")),
			PolygonWatchlist: parseWatchlist(os.Getenv("POLYGON_WATCHLIST_JSON")),

			SolanaEnabled:   getEnvOrDefault("SOLANA_ENABLED", "true") == "true",
			SolanaWSURL:     getEnvOrDefault("SOLANA_WS_URL", "wss://api.mainnet-beta.solana.com"),
			SolanaRPCURL:    getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			SolanaWatchlist: parseMintWatchlist(os.Getenv("SOLANA_WATCHLIST_JSON")),

			XRPEnabled: getEnvOrDefault("XRP_ENABLED", "true") == "true",
			XRPWSURLs:  splitCSV(getEnvOrDefault("XRP_WS_URLS", "wss://xrplcluster.com,wss://s1.ripple.com")),

			WhaleAlertEnabled: getEnvOrDefault("WHALE_ALERT_ENABLED", "true") == "true",
			WhaleAlertWSURL:   getEnvOrDefault("WHALE_ALERT_WS_URL", "wss://leviathan.whale-alert.io/ws"),
			WhaleAlertAPIKey:  os.Getenv("WHALE_ALERT_API_KEY"),
			WhaleAlertMinUSD:  getEnvFloat("WHALE_ALERT_MIN_USD", 500_000),
			StablecoinSymbols: stringSet(splitCSV(getEnvOrDefault("STABLECOIN_SYMBOLS", "USDT,USDC,DAI,BUSD,TUSD"))),

			MaxConsecutiveFailures: getEnvInt("ADAPTER_MAX_CONSECUTIVE_FAILURES", 5),
		},

		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			Name:     getEnvOrDefault("DB_NAME", "whaleintel"),
			User:     getEnvOrDefault("DB_USER", "whaleintel"),
			Password: getEnvOrDefault("DB_PASSWORD", "whaleintel"),
		},

		Redis: RedisConfig{
			Host:     getEnvOrDefault("REDIS_HOST", "localhost"),
			Port:     getEnvOrDefault("REDIS_PORT", "6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		},

		APIPort: getEnvInt("API_PORT", 8080),
	}
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	seconds := getEnvInt(key, -1)
	if seconds < 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseWatchlist decodes ETH_WATCHLIST_JSON/POLYGON_WATCHLIST_JSON, a JSON
// array of {"symbol","contract","decimals","min_threshold_usd"} objects.
// A malformed or absent value yields an empty watchlist; Validate logs a
// warning so an operator notices rather than the adapter silently idling.
func parseWatchlist(raw string) []WatchedToken {
	if raw == "" {
		return nil
	}
	var entries []struct {
		Symbol          string  `json:"symbol"`
		Contract        string  `json:"contract"`
		Decimals        int     `json:"decimals"`
		MinThresholdUSD float64 `json:"min_threshold_usd"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("⚠️  could not parse watchlist JSON: %v", err)
		return nil
	}
	out := make([]WatchedToken, 0, len(entries))
	for _, e := range entries {
		out = append(out, WatchedToken{
			Symbol:          e.Symbol,
			Contract:        e.Contract,
			Decimals:        e.Decimals,
			MinThresholdUSD: e.MinThresholdUSD,
		})
	}
	return out
}

// parseMintWatchlist decodes SOLANA_WATCHLIST_JSON, a JSON array of
// {"symbol","mint"} objects.
func parseMintWatchlist(raw string) []WatchedMint {
	if raw == "" {
		return nil
	}
	var entries []struct {
		Symbol string `json:"symbol"`
		Mint   string `json:"mint"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		log.Printf("⚠️  could not parse Solana watchlist JSON: %v", err)
		return nil
	}
	out := make([]WatchedMint, 0, len(entries))
	for _, e := range entries {
		out = append(out, WatchedMint{Symbol: e.Symbol, Mint: e.Mint})
	}
	return out
}

func stringSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[strings.ToUpper(it)] = true
	}
	return m
}

// Validate checks for fatal configuration errors.
func (c *Config) Validate() error {
	if c.GlobalUSDThreshold <= 0 {
		return fmt.Errorf("GLOBAL_USD_THRESHOLD must be positive")
	}
	if c.Adapters.EthEnabled && len(c.Adapters.EthWatchlist) == 0 {
		log.Println("⚠️  ETH_POLL enabled with an empty watchlist")
	}
	if c.Adapters.PolygonEnabled && len(c.Adapters.PolygonWatchlist) == 0 {
		log.Println("⚠️  POLYGON_POLL enabled with an empty watchlist")
	}
	return nil
}
