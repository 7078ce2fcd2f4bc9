package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LCP_APP_ENV", "")
	t.Setenv("LCP_DB_DSN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.App.IsDev() {
		t.Fatalf("expected dev env by default, got %q", cfg.App.Env)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Fatalf("expected 30s http timeout, got %v", cfg.HTTP.Timeout)
	}
	if cfg.CRL.TTL != 24*time.Hour {
		t.Fatalf("expected 24h crl ttl, got %v", cfg.CRL.TTL)
	}
	if cfg.DB.DSN != "lcp-client.sqlite" {
		t.Fatalf("expected sqlite dsn default, got %q", cfg.DB.DSN)
	}
}

func TestLoadRejectsNonSQLiteWithoutDSN(t *testing.T) {
	t.Setenv("LCP_DB_DRIVER", "postgres")
	t.Setenv("LCP_DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing dsn with non-sqlite driver")
	}
}

func TestProdEnvDetection(t *testing.T) {
	t.Setenv("LCP_APP_ENV", "PROD")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.App.IsProd() {
		t.Fatalf("expected prod env")
	}
}
