package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	// Set some test environment variables
	if err := os.Setenv("SERVER_PORT", "9090"); err != nil {
		t.Fatalf("Failed to set SERVER_PORT: %v", err)
	}
	if err := os.Setenv("POSTGRES_HOST", "testhost"); err != nil {
		t.Fatalf("Failed to set POSTGRES_HOST: %v", err)
	}
	if err := os.Setenv("CACHE_TTL", "30s"); err != nil {
		t.Fatalf("Failed to set CACHE_TTL: %v", err)
	}
	if err := os.Setenv("FINALIZER_INTERVAL", "1m"); err != nil {
		t.Fatalf("Failed to set FINALIZER_INTERVAL: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("POSTGRES_HOST")
		_ = os.Unsetenv("CACHE_TTL")
		_ = os.Unsetenv("FINALIZER_INTERVAL")
	}()

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, 30*time.Second)
	}

	if cfg.Finalizer.Interval != time.Minute {
		t.Errorf("Finalizer.Interval = %v, want %v", cfg.Finalizer.Interval, time.Minute)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Database.Postgres.Database != "crowdsale" {
		t.Errorf("Postgres.Database = %v, want crowdsale", cfg.Database.Postgres.Database)
	}
	if cfg.RateLimit.RequestsPerSecond != 50 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50", cfg.RateLimit.RequestsPerSecond)
	}
	if cfg.RateLimit.Burst != 10 {
		t.Errorf("RateLimit.Burst = %v, want 10", cfg.RateLimit.Burst)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = (%v, %v), want (info, json)", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	if err := os.Setenv("TEST_INT", "42"); err != nil {
		t.Fatalf("Failed to set TEST_INT: %v", err)
	}
	if err := os.Setenv("TEST_BAD_INT", "not-a-number"); err != nil {
		t.Fatalf("Failed to set TEST_BAD_INT: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("TEST_INT")
		_ = os.Unsetenv("TEST_BAD_INT")
	}()

	if got := getEnvAsInt("TEST_INT", 7); got != 42 {
		t.Errorf("getEnvAsInt() = %v, want 42", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt() with invalid value = %v, want default 7", got)
	}
	if got := getEnvAsInt("TEST_MISSING_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt() with missing value = %v, want default 7", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	if err := os.Setenv("TEST_DURATION", "45s"); err != nil {
		t.Fatalf("Failed to set TEST_DURATION: %v", err)
	}
	if err := os.Setenv("TEST_BAD_DURATION", "soon"); err != nil {
		t.Fatalf("Failed to set TEST_BAD_DURATION: %v", err)
	}
	defer func() {
		_ = os.Unsetenv("TEST_DURATION")
		_ = os.Unsetenv("TEST_BAD_DURATION")
	}()

	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 45*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 45s", got)
	}
	if got := getEnvAsDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() with invalid value = %v, want default 1s", got)
	}
}
