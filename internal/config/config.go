// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	CORSAllowedOrigins []string // "*" allows any origin

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Scoring
	InputPath       string        // transactions CSV scored by the CLI and the re-score worker
	OutputPath      string        // scored wallets CSV
	RescoreInterval time.Duration // how often the server re-scores InputPath
	RiskSeed        int64         // seed for the refinement models
	FeatureWorkers  int           // 0 means GOMAXPROCS

	// Model overrides. Zero values keep the model defaults.
	RiskContamination float64            // expected anomaly share, (0, 0.5]
	RiskClusters      int                // k-means cluster count
	RiskTrees         int                // isolation forest size
	RiskWeights       map[string]float64 // base score component weights by name

	// Collector
	EtherscanAPIKey  string
	EtherscanAPIURL  string
	WalletsPath      string
	TransactionsPath string

	// Clients
	APIURL string // base URL of the walletrisk API, used by the MCP server

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultInputPath        = "data/compound_transactions.csv"
	DefaultOutputPath       = "data/wallet_risk_scores.csv"
	DefaultRescoreInterval  = time.Hour
	DefaultRiskSeed         = 42
	DefaultEtherscanAPIURL  = "https://api.etherscan.io/v2/api"
	DefaultWalletsPath      = "data/wallets.csv"
	DefaultTransactionsPath = DefaultInputPath
	DefaultAPIURL           = "http://localhost:8080"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		InputPath:        getEnv("INPUT_PATH", DefaultInputPath),
		OutputPath:       getEnv("OUTPUT_PATH", DefaultOutputPath),
		RescoreInterval:  getEnvDuration("RESCORE_INTERVAL", DefaultRescoreInterval),
		RiskSeed:         getEnvInt64("RISK_SEED", DefaultRiskSeed),
		FeatureWorkers:   int(getEnvInt64("FEATURE_WORKERS", 0)),
		EtherscanAPIKey:  os.Getenv("ETHERSCAN_API_KEY"),
		EtherscanAPIURL:  getEnv("ETHERSCAN_API_URL", DefaultEtherscanAPIURL),
		WalletsPath:      getEnv("WALLETS_PATH", DefaultWalletsPath),
		TransactionsPath: getEnv("TRANSACTIONS_PATH", DefaultTransactionsPath),
		APIURL:           getEnv("WALLETRISK_API_URL", DefaultAPIURL),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})
	cfg.RiskContamination = getEnvFloat("RISK_CONTAMINATION", 0)
	cfg.RiskClusters = int(getEnvInt64("RISK_CLUSTERS", 0))
	cfg.RiskTrees = int(getEnvInt64("RISK_TREES", 0))

	weights, err := ParseWeights(os.Getenv("RISK_COMPONENT_WEIGHTS"))
	if err != nil {
		return nil, fmt.Errorf("RISK_COMPONENT_WEIGHTS: %w", err)
	}
	cfg.RiskWeights = weights

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %q", c.Port)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be \"text\" or \"json\", got %q", c.LogFormat)
	}
	if c.InputPath == "" {
		return fmt.Errorf("INPUT_PATH is required")
	}
	if c.RescoreInterval <= 0 {
		return fmt.Errorf("RESCORE_INTERVAL must be positive")
	}
	if c.FeatureWorkers < 0 {
		return fmt.Errorf("FEATURE_WORKERS must not be negative")
	}
	if c.RiskContamination < 0 || c.RiskContamination > 0.5 {
		return fmt.Errorf("RISK_CONTAMINATION must be between 0 and 0.5, got %v", c.RiskContamination)
	}
	if c.RiskClusters < 0 || c.RiskTrees < 0 {
		return fmt.Errorf("RISK_CLUSTERS and RISK_TREES must not be negative")
	}
	return nil
}

// ParseWeights parses "name=weight" pairs separated by commas. An empty
// string yields nil.
func ParseWeights(s string) (map[string]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=weight, got %q", pair)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("weight for %s: %w", name, err)
		}
		out[name] = w
	}
	return out, nil
}

// ValidateCollector checks the settings the transaction collector needs.
func (c *Config) ValidateCollector() error {
	if c.EtherscanAPIKey == "" {
		return fmt.Errorf("ETHERSCAN_API_KEY is required")
	}
	if c.EtherscanAPIURL == "" {
		return fmt.Errorf("ETHERSCAN_API_URL is required")
	}
	if c.WalletsPath == "" || c.TransactionsPath == "" {
		return fmt.Errorf("WALLETS_PATH and TRANSACTIONS_PATH are required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
