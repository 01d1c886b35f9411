package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.AgentBackend != "codex" {
		t.Errorf("expected backend codex, got %s", cfg.AgentBackend)
	}
	if cfg.MaxParallel != 2 {
		t.Errorf("expected max_parallel 2, got %d", cfg.MaxParallel)
	}
	if cfg.TimeoutSeconds != 3600 {
		t.Errorf("expected timeout_seconds 3600, got %d", cfg.TimeoutSeconds)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("expected max_retries 2, got %d", cfg.MaxRetries)
	}
	if cfg.APIKeyEnvVar != "OPENAI_API_KEY" {
		t.Errorf("expected api_key_env_var OPENAI_API_KEY, got %s", cfg.APIKeyEnvVar)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Default()
	if cfg.AgentBackend != want.AgentBackend ||
		cfg.MaxParallel != want.MaxParallel ||
		cfg.TimeoutSeconds != want.TimeoutSeconds ||
		cfg.MaxRetries != want.MaxRetries ||
		cfg.APIKeyEnvVar != want.APIKeyEnvVar ||
		cfg.BootstrapTemplate != want.BootstrapTemplate {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadKnownAndUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, WorkspaceDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	yaml := `agent_backend: mybackend
max_parallel: 5
api_key_env_var: MY_KEY
unknown_key: should-not-survive
another:
  nested: ignored
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Present known keys are copied verbatim.
	if cfg.AgentBackend != "mybackend" {
		t.Errorf("expected backend mybackend, got %s", cfg.AgentBackend)
	}
	if cfg.MaxParallel != 5 {
		t.Errorf("expected max_parallel 5, got %d", cfg.MaxParallel)
	}
	if cfg.APIKeyEnvVar != "MY_KEY" {
		t.Errorf("expected api_key_env_var MY_KEY, got %s", cfg.APIKeyEnvVar)
	}

	// Absent known keys take their defaults.
	if cfg.TimeoutSeconds != 3600 {
		t.Errorf("expected default timeout_seconds, got %d", cfg.TimeoutSeconds)
	}
	if cfg.MaxRetries != 2 {
		t.Errorf("expected default max_retries, got %d", cfg.MaxRetries)
	}
}

func TestLoadCodexArgs(t *testing.T) {
	dir := t.TempDir()
	configDir := filepath.Join(dir, WorkspaceDir)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	yaml := `codex_args:
  - --model
  - o3
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.CodexArgs) != 2 || cfg.CodexArgs[0] != "--model" || cfg.CodexArgs[1] != "o3" {
		t.Errorf("unexpected codex_args: %v", cfg.CodexArgs)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.AgentBackend = "custom"
	cfg.MaxParallel = 7

	if err := Save(dir, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.AgentBackend != "custom" {
		t.Errorf("expected backend custom, got %s", loaded.AgentBackend)
	}
	if loaded.MaxParallel != 7 {
		t.Errorf("expected max_parallel 7, got %d", loaded.MaxParallel)
	}
}
