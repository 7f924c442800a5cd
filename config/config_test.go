package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.StoreBackend != "sqlite" {
		t.Errorf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
	if cfg.TokenExpiry != 60*time.Minute {
		t.Errorf("TokenExpiry = %v, want 60m", cfg.TokenExpiry)
	}
	if cfg.Production() {
		t.Error("default environment must not be production")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("ENV", "production")
	t.Setenv("JWT_EXPIRY_MIN", "15")
	t.Setenv("LOW_STOCK_INTERVAL_MIN", "not-a-number")

	cfg := Load()

	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q, want :9999", cfg.Addr)
	}
	if cfg.StoreBackend != "postgres" {
		t.Errorf("StoreBackend = %q, want postgres", cfg.StoreBackend)
	}
	if !cfg.Production() {
		t.Error("ENV=production must report Production()")
	}
	if cfg.TokenExpiry != 15*time.Minute {
		t.Errorf("TokenExpiry = %v, want 15m", cfg.TokenExpiry)
	}
	if cfg.LowStockInterval != 15*time.Minute {
		t.Errorf("bad integer must fall back to default, got %v", cfg.LowStockInterval)
	}
}
