package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	def := DefaultConfig()
	if cfg.Server.Host != def.Server.Host || cfg.Server.EnginePort != def.Server.EnginePort {
		t.Errorf("expected defaults, got %+v", cfg.Server)
	}
}

func TestLoad_JSON(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"server": map[string]any{
			"host":           "qs.example.com",
			"enginePort":     4748,
			"timeoutSeconds": 60,
		},
		"engine": map[string]any{"pageSize": 500},
	})
	path := writeConfig(t, t.TempDir(), "config.json", raw)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "qs.example.com" || cfg.Server.EnginePort != 4748 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Engine.PageSize != 500 {
		t.Errorf("expected page size 500, got %d", cfg.Engine.PageSize)
	}
	// Untouched sections keep their defaults.
	if cfg.Cache.TTLSec != 300 {
		t.Errorf("expected default cache TTL, got %d", cfg.Cache.TTLSec)
	}
}

func TestLoad_YAML(t *testing.T) {
	raw := []byte("server:\n  host: qs.example.com\n  userDirectory: CORP\nlog:\n  level: debug\n")
	path := writeConfig(t, t.TempDir(), "config.yaml", raw)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Host != "qs.example.com" || cfg.Server.UserDirectory != "CORP" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.json", []byte("{not valid json"))
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QLIK_HOST", "env.example.com")
	t.Setenv("QLIK_ENGINE_PORT", "14747")
	t.Setenv("QLIK_VERIFY_SSL", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "env.example.com" {
		t.Errorf("env host not applied: %q", cfg.Server.Host)
	}
	if cfg.Server.EnginePort != 14747 {
		t.Errorf("env port not applied: %d", cfg.Server.EnginePort)
	}
	if !cfg.Server.VerifySSL {
		t.Error("env verifySsl not applied")
	}
}

func TestLoad_ServerURLEnv(t *testing.T) {
	t.Setenv("QLIK_SERVER_URL", "https://env2.example.com/")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "env2.example.com" {
		t.Errorf("scheme and slash not stripped: %q", cfg.Server.Host)
	}

	// QLIK_HOST is the more specific variable and wins when both are set.
	t.Setenv("QLIK_HOST", "host.example.com")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "host.example.com" {
		t.Errorf("QLIK_HOST did not win: %q", cfg.Server.Host)
	}
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "qs"
	cfg.Server.TimeoutSec = 45
	cfg.TLS.CertFile = "/certs/client.pem"

	opts := cfg.EngineOptions()
	if opts.Host != "qs" || opts.Port != 4747 {
		t.Errorf("unexpected options: %+v", opts)
	}
	if opts.Timeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %s", opts.Timeout)
	}
	if opts.CertFile != "/certs/client.pem" {
		t.Errorf("cert path lost: %q", opts.CertFile)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := DefaultConfig()
	original.Server.Host = "saved.example.com"
	original.Engine.MaxRows = 250

	if err := Save(&original, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Server.Host != original.Server.Host {
		t.Errorf("host mismatch: got %q", loaded.Server.Host)
	}
	if loaded.Engine.MaxRows != original.Engine.MaxRows {
		t.Errorf("maxRows mismatch: got %d", loaded.Engine.MaxRows)
	}
}
