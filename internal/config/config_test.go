package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := LoadConfig()
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.DBPath != "./luma.db" {
		t.Fatalf("DBPath = %q, want ./luma.db", cfg.DBPath)
	}
	if cfg.ChatTimeoutSeconds != 30 || cfg.RAGMaxRetries != 3 {
		t.Fatalf("unexpected timeout defaults: %+v", cfg)
	}
	if cfg.TunerSchedule != "@hourly" {
		t.Fatalf("TunerSchedule = %q, want @hourly", cfg.TunerSchedule)
	}
}

func TestLoadConfigYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "listen_addr: \":9000\"\ndb_path: /tmp/test.db\nanthropic_api_key: from-yaml\nchat_timeout_seconds: 5\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("RAG_MAX_RETRIES", "5")

	cfg := LoadConfig()
	if cfg.ListenAddr != ":9000" {
		t.Fatalf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.ChatTimeoutSeconds != 5 {
		t.Fatalf("ChatTimeoutSeconds = %d, want 5", cfg.ChatTimeoutSeconds)
	}
	if cfg.AnthropicAPIKey != "from-env" {
		t.Fatalf("env override lost: AnthropicAPIKey = %q", cfg.AnthropicAPIKey)
	}
	if cfg.RAGMaxRetries != 5 {
		t.Fatalf("RAGMaxRetries = %d, want 5", cfg.RAGMaxRetries)
	}
}
