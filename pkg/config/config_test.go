package config

import (
    "testing"
    "time"
)

func TestLoad_Defaults(t *testing.T) {
    t.Setenv("ALPHAVANTAGE_API_KEY", "demo")

    cfg, err := Load()
    if err != nil {
        t.Fatalf("expected no error, got %v", err)
    }
    if cfg.AlphaVantageBaseURL != "https://www.alphavantage.co/query" {
        t.Errorf("AlphaVantageBaseURL = %q; want default", cfg.AlphaVantageBaseURL)
    }
    if cfg.APITimeout != 10*time.Second {
        t.Errorf("APITimeout = %v; want 10s", cfg.APITimeout)
    }
    if cfg.RefreshInterval != 12*time.Hour {
        t.Errorf("RefreshInterval = %v; want 12h", cfg.RefreshInterval)
    }
    if cfg.CollectorPort != 5001 {
        t.Errorf("CollectorPort = %d; want 5001", cfg.CollectorPort)
    }
}

func TestLoad_EnvOverrides(t *testing.T) {
    t.Setenv("ALPHAVANTAGE_API_KEY", "demo")
    t.Setenv("REFRESH_INTERVAL", "1m")
    t.Setenv("API_TIMEOUT", "3")
    t.Setenv("COLLECTOR_URL", "http://collector:5001/")

    cfg, err := Load()
    if err != nil {
        t.Fatalf("expected no error, got %v", err)
    }
    if cfg.RefreshInterval != time.Minute {
        t.Errorf("RefreshInterval = %v; want 1m", cfg.RefreshInterval)
    }
    if cfg.APITimeout != 3*time.Second {
        t.Errorf("APITimeout = %v; want 3s", cfg.APITimeout)
    }
    if cfg.CollectorURL != "http://collector:5001" {
        t.Errorf("CollectorURL = %q; want trailing slash stripped", cfg.CollectorURL)
    }
}

func TestValidateCollector_MissingKey(t *testing.T) {
    cfg := &Config{}
    if err := cfg.ValidateCollector(); err == nil {
        t.Fatal("expected error due to missing ALPHAVANTAGE_API_KEY, got nil")
    }
}

func TestValidateWeb_MissingSecret(t *testing.T) {
    cfg := &Config{}
    if err := cfg.ValidateWeb(); err == nil {
        t.Fatal("expected error due to missing JWT_SECRET, got nil")
    }
}
