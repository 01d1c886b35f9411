// Package config handles configuration loading for specforge.
// It supports workspace-level YAML config, environment variable overrides,
// and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// WorkspaceDir is the name of the specforge metadata directory inside a
// workspace root.
const WorkspaceDir = ".specforge"

// Config holds the orchestrator configuration.
// Only the fields below survive loading; unknown keys in the YAML file are
// discarded.
type Config struct {
	// AgentBackend is the worker CLI binary spawned per spec.
	AgentBackend string `mapstructure:"agent_backend"`
	// MaxParallel is the maximum number of concurrently running agents.
	MaxParallel int `mapstructure:"max_parallel"`
	// TimeoutSeconds is the per-attempt timeout. Zero or negative disables it.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	// MaxRetries is the number of re-spawns after a failed attempt.
	MaxRetries int `mapstructure:"max_retries"`
	// APIKeyEnvVar names the environment variable that must carry the
	// backend's API key. Spawns fail synchronously when it is unset.
	APIKeyEnvVar string `mapstructure:"api_key_env_var"`
	// BootstrapTemplate is an optional path to a file prepended to every
	// worker prompt. When empty, prompts use the built-in layout only.
	BootstrapTemplate string `mapstructure:"bootstrap_template"`
	// CodexArgs are extra arguments appended after the fixed backend flags.
	CodexArgs []string `mapstructure:"codex_args"`
}

// Load loads configuration for the given workspace root.
// Precedence (highest to lowest):
//  1. Environment variables (SPECFORGE_*)
//  2. Workspace config (.specforge/config.yaml)
//  3. Built-in defaults
func Load(workspaceRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(workspaceRoot, WorkspaceDir))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading workspace config: %w", err)
		}
	}

	v.SetEnvPrefix("SPECFORGE")
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// LoadFromPath loads configuration from a specific file (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the workspace config file.
func Save(workspaceRoot string, cfg *Config) error {
	dir := filepath.Join(workspaceRoot, WorkspaceDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, "config.yaml"))

	v.Set("agent_backend", cfg.AgentBackend)
	v.Set("max_parallel", cfg.MaxParallel)
	v.Set("timeout_seconds", cfg.TimeoutSeconds)
	v.Set("max_retries", cfg.MaxRetries)
	v.Set("api_key_env_var", cfg.APIKeyEnvVar)
	v.Set("bootstrap_template", cfg.BootstrapTemplate)
	v.Set("codex_args", cfg.CodexArgs)

	return v.WriteConfig()
}

// Path returns the workspace config file path.
func Path(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, WorkspaceDir, "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent_backend", "codex")
	v.SetDefault("max_parallel", 2)
	v.SetDefault("timeout_seconds", 3600)
	v.SetDefault("max_retries", 2)
	v.SetDefault("api_key_env_var", "OPENAI_API_KEY")
	v.SetDefault("bootstrap_template", "")
	v.SetDefault("codex_args", []string{})
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		AgentBackend:   "codex",
		MaxParallel:    2,
		TimeoutSeconds: 3600,
		MaxRetries:     2,
		APIKeyEnvVar:   "OPENAI_API_KEY",
		CodexArgs:      []string{},
	}
}
