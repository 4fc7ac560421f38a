// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Blockchain settings
	RPCURL            string
	ChainID           int64
	VerifyingContract string // EIP-712 domain verifying contract address
	ExplorerBaseURL   string // block explorer prefix for mint transaction links
	MintPollInterval  time.Duration
	DevSignerKey      string // optional hex private key for the dev signing endpoint

	// Payment settings
	PaymentSecretKey string // PSP API key; payment bridge runs in stub mode if empty
	PaymentCurrency  string // ISO currency code handed to the PSP
	OrderTTL         time.Duration

	// Assets
	AssetDir     string // filesystem root for NFT bundle uploads
	AssetBaseURL string // public base URL for uploaded bundles

	// Event synchronization
	EventSourceURL      string // push event source WebSocket URL (optional)
	RefreshPollInterval time.Duration

	// Security
	AdminSecret   string // arbitration endpoint secret
	WebhookSecret string
	RateLimitRPS  int

	// Observability
	OTLPEndpoint string // OTLP gRPC collector address (optional, tracing off if empty)
}

// Base Sepolia defaults
const (
	DefaultRPCURL          = "https://sepolia.base.org"
	DefaultChainID         = 84532 // Base Sepolia
	DefaultExplorerBaseURL = "https://sepolia.basescan.org/tx/"
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultCurrency        = "krw" // no minor unit, matches whole-unit amounts
	DefaultRateLimit       = 100
	DefaultOrderTTL        = 15 * time.Minute
	DefaultMintPoll        = 15 * time.Second
	DefaultRefreshPoll     = 10 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RPCURL:              getEnv("RPC_URL", DefaultRPCURL),
		ChainID:             getEnvInt64("CHAIN_ID", DefaultChainID),
		VerifyingContract:   os.Getenv("VERIFYING_CONTRACT"),
		ExplorerBaseURL:     getEnv("EXPLORER_BASE_URL", DefaultExplorerBaseURL),
		MintPollInterval:    getEnvDuration("MINT_POLL_INTERVAL", DefaultMintPoll),
		DevSignerKey:        os.Getenv("DEV_SIGNER_KEY"),
		PaymentSecretKey:    os.Getenv("PAYMENT_SECRET_KEY"),
		PaymentCurrency:     getEnv("PAYMENT_CURRENCY", DefaultCurrency),
		OrderTTL:            getEnvDuration("ORDER_TTL", DefaultOrderTTL),
		AssetDir:            getEnv("ASSET_DIR", "assets"),
		AssetBaseURL:        getEnv("ASSET_BASE_URL", "/assets"),
		EventSourceURL:      os.Getenv("EVENT_SOURCE_URL"),
		RefreshPollInterval: getEnvDuration("REFRESH_POLL_INTERVAL", DefaultRefreshPoll),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		WebhookSecret:       os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:        int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:        os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.ChainID == 0 {
		return fmt.Errorf("CHAIN_ID is required")
	}

	if c.DevSignerKey != "" {
		key := c.DevSignerKey
		if len(key) == 66 && key[:2] == "0x" {
			key = key[2:]
		}
		if len(key) != 64 {
			return fmt.Errorf("DEV_SIGNER_KEY must be 64 hex characters (with or without 0x prefix)")
		}
	}

	if c.OrderTTL <= 0 {
		return fmt.Errorf("ORDER_TTL must be positive")
	}
	if c.RefreshPollInterval <= 0 {
		return fmt.Errorf("REFRESH_POLL_INTERVAL must be positive")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
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
