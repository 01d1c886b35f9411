package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/internal/orchestrator"
	"github.com/specforge/specforge/internal/prompt"
	"github.com/specforge/specforge/internal/spec"
	"github.com/specforge/specforge/internal/status"
	"github.com/specforge/specforge/pkg/models"
)

var (
	runParallel int
	runRetries  int
	runTimeout  int
	runAll      bool
)

var runCmd = &cobra.Command{
	Use:   "run [spec...]",
	Short: "Run specs with agent orchestration",
	Long: `Run the named specs (or all specs with --all).

Specs are batched by dependency order: a spec runs only after everything
it depends on has completed. Within a batch, up to max_parallel worker
processes run concurrently. Failed attempts are retried up to max_retries
times; a spec that exhausts its retries fails, and every spec that
transitively depends on it is skipped.

Press Ctrl-C to stop: running workers are terminated gracefully and the
run resolves with status "stopped".

Examples:
  specforge run auth-service
  specforge run auth-service api frontend
  specforge run --all --parallel 4
  specforge run api --retries 0 --timeout 600`,
	RunE: runSpecs,
}

func init() {
	runCmd.Flags().IntVar(&runParallel, "parallel", 0, "Max concurrent workers (overrides config)")
	runCmd.Flags().IntVar(&runRetries, "retries", -1, "Retries per spec after a failed attempt (overrides config)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Per-attempt timeout in seconds (overrides config)")
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every spec in the workspace")
}

// overrideProvider loads the workspace config on every call and applies the
// run command's flag overrides, so config edits between attempts are seen.
type overrideProvider struct {
	root    string
	retries int
	timeout int
}

func (p *overrideProvider) GetConfig() (*config.Config, error) {
	cfg, err := config.Load(p.root)
	if err != nil {
		return nil, err
	}
	if p.retries >= 0 {
		cfg.MaxRetries = p.retries
	}
	if p.timeout > 0 {
		cfg.TimeoutSeconds = p.timeout
	}
	return cfg, nil
}

// runtime bundles the wired-up orchestration stack for one workspace.
type runtime struct {
	store   *spec.Store
	engine  *orchestrator.Engine
	monitor *status.Monitor
	emitter *orchestrator.EventEmitter
	logger  *orchestrator.DebugLogger
	db      *status.DB

	closeOnce sync.Once
}

// newRuntime wires the orchestration stack over the given workspace root.
func newRuntime(cwd string, provider *overrideProvider) (*runtime, error) {
	store := spec.NewStore(cwd)

	db, err := status.OpenWorkspace(cwd)
	if err != nil {
		return nil, fmt.Errorf("open status database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate status database: %w", err)
	}

	lifecycle := spec.NewLifecycleManager(store)
	monitor := status.NewMonitor(db)
	monitor.OnExternalSync(func(name string, st models.SpecStatus) {
		if err := lifecycle.SetStatus(name, st); err != nil {
			fmt.Fprintf(os.Stderr, "warning: sync spec %s status: %v\n", name, err)
		}
	})

	logger := orchestrator.NewDebugLoggerForWorkspace(cwd)
	emitter := orchestrator.NewEventEmitter(256)
	prompts := prompt.NewBuilder(store, provider, cwd)
	spawner := orchestrator.NewAgentSpawner(provider, prompts, orchestrator.NewRegistry(), emitter, cwd, logger)

	engine := orchestrator.NewEngine(orchestrator.EngineDeps{
		DependencyManager: spec.NewResolver(store),
		Lifecycle:         lifecycle,
		Monitor:           monitor,
		Spawner:           spawner,
		Config:            provider,
		SpecExists:        store.Exists,
		Emitter:           emitter,
		Logger:            logger,
	})

	return &runtime{
		store:   store,
		engine:  engine,
		monitor: monitor,
		emitter: emitter,
		logger:  logger,
		db:      db,
	}, nil
}

// close releases the runtime's resources. The emitter is closed too, so any
// event printer draining it terminates. Safe to call more than once.
func (rt *runtime) close() {
	rt.closeOnce.Do(func() {
		rt.emitter.Close()
		rt.logger.Close()
		rt.db.Close()
	})
}

func runSpecs(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	provider := &overrideProvider{root: cwd, retries: runRetries, timeout: runTimeout}
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

	names := args
	if runAll {
		if names, err = rt.store.List(); err != nil {
			return err
		}
	}
	if len(names) == 0 {
		cmd.SilenceUsage = false
		return errors.New("no specs given; name specs or pass --all")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nStopping... (waiting for workers to terminate)")
		rt.engine.Stop()
	}()

	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(rt.emitter.Events())
	}()

	runID := rt.monitor.BeginRun()
	rt.logger.Log("[run] starting run %s: %v", runID, names)

	var opts *orchestrator.StartOptions
	if runParallel > 0 {
		opts = &orchestrator.StartOptions{MaxParallel: runParallel}
	}

	result, err := rt.engine.Start(ctx, names, opts)
	rt.close()
	<-printerDone
	if err != nil {
		return err
	}

	printSummary(result)
	if result.Status == models.RunFailed {
		return errors.New("run failed")
	}
	return nil
}

// printEvents renders orchestration events as they arrive. Worker output
// lines are shown only in debug mode to keep the default view readable.
func printEvents(events <-chan orchestrator.Event) {
	verbose := os.Getenv("SPECFORGE_DEBUG") != ""

	for ev := range events {
		switch ev.Type {
		case orchestrator.EventBatchStart:
			fmt.Printf("\nBatch %d: %s\n", ev.Batch+1, strings.Join(ev.Specs, ", "))
		case orchestrator.EventSpecStart:
			fmt.Printf("  %s %s\n", color.CyanString("▶"), ev.SpecName)
		case orchestrator.EventSpecComplete:
			fmt.Printf("  %s %s\n", color.GreenString("✓"), ev.SpecName)
		case orchestrator.EventSpecFailed:
			fmt.Printf("  %s %s: %s\n", color.RedString("✗"), ev.SpecName, ev.Error)
		case orchestrator.EventAgentTimeout:
			fmt.Printf("  %s %s timed out after %ds\n", color.YellowString("⏱"), ev.SpecName, ev.TimeoutSeconds)
		case orchestrator.EventAgentOutput:
			if verbose && ev.Output != nil && ev.Output.Message != "" {
				fmt.Printf("    [%s] %s\n", ev.SpecName, ev.Output.Message)
			}
		}
	}
}

// printSummary renders the final result partition.
func printSummary(result *models.OrchestrationResult) {
	fmt.Println()
	switch result.Status {
	case models.RunCompleted:
		fmt.Printf("%s Run completed\n", color.GreenString("✓"))
	case models.RunStopped:
		fmt.Printf("%s Run stopped\n", color.YellowString("⚠"))
	case models.RunFailed:
		fmt.Printf("%s Run failed\n", color.RedString("✗"))
	}

	if result.Error != "" {
		fmt.Printf("  %s\n", result.Error)
		if result.Plan != nil && result.Plan.HasCycle {
			fmt.Printf("  Cycle: %s\n", strings.Join(result.Plan.CyclePath, " -> "))
		}
		return
	}

	if len(result.Completed) > 0 {
		fmt.Printf("  Completed: %s\n", color.GreenString(strings.Join(result.Completed, ", ")))
	}
	if len(result.Failed) > 0 {
		fmt.Printf("  Failed:    %s\n", color.RedString(strings.Join(result.Failed, ", ")))
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("  Skipped:   %s\n", color.YellowString(strings.Join(result.Skipped, ", ")))
	}
}
