package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/orchestrator"
	"github.com/specforge/specforge/internal/watch"
	"github.com/specforge/specforge/pkg/models"
)

var watchDebounceMs int

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run specs when their files change",
	Long: `Watch the specs directory and re-run any spec whose files change.

Edits to spec.yaml or the authored documents (requirements.md, design.md,
tasks.md) trigger a run of the changed specs after a short debounce, so a
burst of editor saves causes one run. Changes arriving while a run is in
flight are queued and run afterwards.

Press Ctrl-C to stop watching.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchDebounceMs, "debounce", 500, "Milliseconds to wait after the last change")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	provider := &overrideProvider{root: cwd, retries: -1}
	cfg, err := provider.GetConfig()
	if err != nil {
		return err
	}
	if err := CheckBackendCLI(cfg.AgentBackend); err != nil {
		return err
	}

	rt, err := newRuntime(cwd, provider)
	if err != nil {
		return err
	}
	defer rt.close()

	changes := make(chan []string, 16)
	watcher, err := watch.New(rt.store, time.Duration(watchDebounceMs)*time.Millisecond, func(names []string) {
		select {
		case changes <- names:
		default:
			// A full queue means a run backlog already exists; the next
			// drain pass re-reads pending names anyway.
		}
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// Stop an in-flight run immediately on Ctrl-C; the loop below then
	// observes stopping and exits.
	stopping := make(chan struct{})
	go func() {
		<-sigCh
		close(stopping)
		rt.engine.Stop()
		cancel()
	}()

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(rt.emitter.Events())
	}()
	defer func() { <-printerDone }()
	defer rt.close()

	fmt.Printf("Watching %s for changes (Ctrl-C to stop)...\n", rt.store.Dir())

	for {
		select {
		case <-stopping:
			fmt.Println("\nStopping watch.")
			return nil
		case names := <-changes:
			// Merge any further notifications queued during the debounce.
			names = mergeChanges(names, changes)
			runChanged(ctx, rt, names)
		}
	}
}

// mergeChanges folds queued notifications into one deduplicated spec set.
func mergeChanges(names []string, changes chan []string) []string {
	seen := make(map[string]bool)
	for _, n := range names {
		seen[n] = true
	}
	for {
		select {
		case more := <-changes:
			for _, n := range more {
				seen[n] = true
			}
		default:
			merged := make([]string, 0, len(seen))
			for n := range seen {
				merged = append(merged, n)
			}
			return merged
		}
	}
}

// runChanged runs the changed specs, skipping names that no longer resolve
// to a valid spec (deletions, stray files).
func runChanged(ctx context.Context, rt *runtime, names []string) {
	var specs []string
	for _, name := range names {
		if rt.store.Exists(name) {
			specs = append(specs, name)
		}
	}
	if len(specs) == 0 {
		return
	}

	fmt.Printf("\n%s Change detected: %s\n", color.CyanString("↻"), strings.Join(specs, ", "))

	runID := rt.monitor.BeginRun()
	rt.logger.Log("[watch] starting run %s: %v", runID, specs)

	result, err := rt.engine.Start(ctx, specs, nil)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAlreadyRunning) {
			return
		}
		fmt.Fprintf(os.Stderr, "run error: %v\n", err)
		return
	}

	printSummary(result)
	if result.Status != models.RunFailed {
		fmt.Println("\nWatching for changes...")
	} else {
		fmt.Println("\nFix the failure and save to retry. Watching...")
	}
}
