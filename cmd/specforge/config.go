package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify specforge configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at .specforge/config.yaml in the workspace.
Environment variables (SPECFORGE_*) override file values at load time.`,
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg, err := config.Load(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cwd, cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("agent_backend: %s\n", cfg.AgentBackend)
	fmt.Printf("max_parallel: %d\n", cfg.MaxParallel)
	fmt.Printf("timeout_seconds: %d\n", cfg.TimeoutSeconds)
	fmt.Printf("max_retries: %d\n", cfg.MaxRetries)
	fmt.Printf("api_key_env_var: %s\n", cfg.APIKeyEnvVar)
	fmt.Printf("bootstrap_template: %s\n", cfg.BootstrapTemplate)
	fmt.Printf("codex_args: %s\n", strings.Join(cfg.CodexArgs, " "))
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(workspaceRoot string, cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(workspaceRoot, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "agent_backend":
		return cfg.AgentBackend, nil
	case "max_parallel":
		return strconv.Itoa(cfg.MaxParallel), nil
	case "timeout_seconds":
		return strconv.Itoa(cfg.TimeoutSeconds), nil
	case "max_retries":
		return strconv.Itoa(cfg.MaxRetries), nil
	case "api_key_env_var":
		return cfg.APIKeyEnvVar, nil
	case "bootstrap_template":
		if cfg.BootstrapTemplate == "" {
			return "(not set)", nil
		}
		return cfg.BootstrapTemplate, nil
	case "codex_args":
		return strings.Join(cfg.CodexArgs, " "), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "agent_backend":
		cfg.AgentBackend = value
	case "max_parallel":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("max_parallel must be a positive integer")
		}
		cfg.MaxParallel = n
	case "timeout_seconds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for timeout_seconds: %w", err)
		}
		cfg.TimeoutSeconds = n
	case "max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("max_retries must be a non-negative integer")
		}
		cfg.MaxRetries = n
	case "api_key_env_var":
		cfg.APIKeyEnvVar = value
	case "bootstrap_template":
		cfg.BootstrapTemplate = value
	case "codex_args":
		cfg.CodexArgs = strings.Fields(value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
