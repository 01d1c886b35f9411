package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckBackendCLI verifies that the configured worker CLI is available in
// PATH. Returns an error with installation instructions if not found.
func CheckBackendCLI(backend string) error {
	_, err := exec.LookPath(backend)
	if err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"Specforge spawns one %s process per spec to do the actual work.\n\n"+
			"Install the default backend with:\n"+
			"  npm install -g @openai/codex\n\n"+
			"Or point agent_backend at another CLI:\n"+
			"  specforge config agent_backend <binary>", backend, backend)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "specforge",
	Short: "Spec-driven agent orchestration",
	Long: `Specforge runs coding agents against the specs in your workspace.

Specs live under .specforge/specs/<name>/ as a spec.yaml plus authored
documents (requirements.md, design.md, tasks.md). Each spec may depend on
other specs; specforge batches them by dependency order, runs one worker
process per spec with bounded parallelism, retries failures, and skips
everything downstream of a spec that cannot be completed.

Core capabilities:
- Dependency-ordered batched execution with cycle detection
- Bounded parallel worker processes with per-attempt timeouts
- Automatic retries and transitive skip on exhausted failures
- Workspace-local run history in SQLite`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(specCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}
