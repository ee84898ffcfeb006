package config

import (
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Import.MaxRows != 5000 {
		t.Errorf("Import.MaxRows = %d, want %d", cfg.Import.MaxRows, 5000)
	}
	if cfg.Import.AttachConcurrency != 8 {
		t.Errorf("Import.AttachConcurrency = %d, want %d", cfg.Import.AttachConcurrency, 8)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("IMPORT_ATTACH_CONCURRENCY", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Import.AttachConcurrency != 2 {
		t.Errorf("Import.AttachConcurrency = %d, want %d", cfg.Import.AttachConcurrency, 2)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/alttest")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/alttest" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://localhost/alttest")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() expected error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error %q should mention DATABASE_URL", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		envName string
		value   string
	}{
		{"bad port", "SERVER_PORT", "70000"},
		{"bad duration", "IMPORT_TIMEOUT", "soon"},
		{"bad log level", "LOG_LEVEL", "loud"},
		{"zero concurrency", "IMPORT_ATTACH_CONCURRENCY", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/test")
			t.Setenv(tt.envName, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error for %s=%q", tt.envName, tt.value)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 9000}
	if got := c.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:9000")
	}
}
