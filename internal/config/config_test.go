package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RPC_URL", "")
	t.Setenv("CHAIN_ID", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Expected port %s, got %s", DefaultPort, cfg.Port)
	}
	if cfg.ChainID != DefaultChainID {
		t.Errorf("Expected chain ID %d, got %d", DefaultChainID, cfg.ChainID)
	}
	if cfg.PaymentCurrency != DefaultCurrency {
		t.Errorf("Expected currency %s, got %s", DefaultCurrency, cfg.PaymentCurrency)
	}
	if cfg.OrderTTL != DefaultOrderTTL {
		t.Errorf("Expected order TTL %s, got %s", DefaultOrderTTL, cfg.OrderTTL)
	}
	if !cfg.IsDevelopment() {
		t.Error("Expected development mode by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("CHAIN_ID", "8453")
	t.Setenv("ORDER_TTL", "30m")
	t.Setenv("REFRESH_POLL_INTERVAL", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Error("Expected production mode")
	}
	if cfg.ChainID != 8453 {
		t.Errorf("Expected chain ID 8453, got %d", cfg.ChainID)
	}
	if cfg.OrderTTL != 30*time.Minute {
		t.Errorf("Expected 30m order TTL, got %s", cfg.OrderTTL)
	}
	if cfg.RefreshPollInterval != 5*time.Second {
		t.Errorf("Expected 5s poll interval, got %s", cfg.RefreshPollInterval)
	}
}

func TestValidate_DevSignerKey(t *testing.T) {
	cfg := &Config{
		RPCURL:              DefaultRPCURL,
		ChainID:             DefaultChainID,
		OrderTTL:            DefaultOrderTTL,
		RefreshPollInterval: DefaultRefreshPoll,
		DevSignerKey:        "not-a-key",
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for malformed DEV_SIGNER_KEY")
	}

	cfg.DevSignerKey = "0x" + repeat("a", 64)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected 0x-prefixed 64-char key to validate, got %v", err)
	}

	cfg.DevSignerKey = repeat("a", 64)
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected bare 64-char key to validate, got %v", err)
	}
}

func TestValidate_RequiredFields(t *testing.T) {
	cfg := &Config{ChainID: 1, OrderTTL: time.Minute, RefreshPollInterval: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error when RPC_URL missing")
	}

	cfg = &Config{RPCURL: "http://localhost:8545", OrderTTL: time.Minute, RefreshPollInterval: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error when CHAIN_ID missing")
	}
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
