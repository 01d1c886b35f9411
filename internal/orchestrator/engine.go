package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/specforge/specforge/pkg/models"
)

// ErrAlreadyRunning is returned by Start when a prior run on the same
// engine instance has not reached a terminal state.
var ErrAlreadyRunning = errors.New("orchestration already running")

// StartOptions overrides configuration for a single run.
type StartOptions struct {
	// MaxParallel caps concurrently running agents. Zero or negative uses
	// the configured value.
	MaxParallel int
}

// Engine converts a requested spec set into a dependency-ordered,
// concurrency-bounded, retry-aware run against the spawner, and produces a
// deterministic OrchestrationResult.
type Engine struct {
	deps      DependencyManager
	lifecycle SpecLifecycle
	monitor   StatusMonitor
	spawner   Spawner
	cfg       ConfigProvider
	exists    SpecExistsFunc
	emitter   *EventEmitter
	logger    *DebugLogger

	mu       sync.Mutex
	running  bool
	stopping bool
	// states is the per-run bookkeeping, created when the plan is computed
	// and frozen into the result at run end.
	states map[string]*specState
	order  []string
}

// specState is the engine-owned per-spec state for one run.
type specState struct {
	status     models.SpecStatus
	retryCount int
	batchIndex int
	agentID    string
	reason     string
}

// EngineDeps bundles the engine's collaborators.
type EngineDeps struct {
	DependencyManager DependencyManager
	Lifecycle         SpecLifecycle
	Monitor           StatusMonitor
	Spawner           Spawner
	Config            ConfigProvider
	SpecExists        SpecExistsFunc
	Emitter           *EventEmitter
	Logger            *DebugLogger
}

// NewEngine creates an Engine from its collaborators.
func NewEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = NopLogger()
	}
	return &Engine{
		deps:      deps.DependencyManager,
		lifecycle: deps.Lifecycle,
		monitor:   deps.Monitor,
		spawner:   deps.Spawner,
		cfg:       deps.Config,
		exists:    deps.SpecExists,
		emitter:   deps.Emitter,
		logger:    logger,
	}
}

// Start runs the requested specs to completion and returns the aggregated
// result. Planning failures (missing specs, dependency cycles) come back
// inside the result, never as an error; the only errors Start itself
// returns are re-entrant calls and configuration loading failures.
func (e *Engine) Start(ctx context.Context, specNames []string, opts *StartOptions) (*models.OrchestrationResult, error) {
	// Duplicate requests collapse to their first occurrence so each spec is
	// planned, spawned, and listed in the result exactly once.
	seen := make(map[string]bool, len(specNames))
	unique := make([]string, 0, len(specNames))
	for _, name := range specNames {
		if seen[name] {
			continue
		}
		seen[name] = true
		unique = append(unique, name)
	}
	specNames = unique

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	e.running = true
	e.stopping = false
	e.states = make(map[string]*specState)
	e.order = specNames
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	// Existence check comes before any other work.
	var missing []string
	for _, name := range specNames {
		if !e.exists(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return e.planningFailure(nil, fmt.Sprintf("specs not found: %s", strings.Join(missing, ", "))), nil
	}

	cfg, err := e.cfg.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	maxParallel := cfg.MaxParallel
	if opts != nil && opts.MaxParallel > 0 {
		maxParallel = opts.MaxParallel
	}
	if maxParallel <= 0 {
		maxParallel = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	graph, err := e.deps.BuildDependencyGraph(ctx, specNames)
	if err != nil {
		return e.planningFailure(nil, fmt.Sprintf("build dependency graph: %v", err)), nil
	}

	if cycle := DetectCycle(graph); cycle != nil {
		plan := &models.ExecutionPlan{HasCycle: true, CyclePath: cycle}
		return e.planningFailure(plan, "circular dependency detected: "+strings.Join(cycle, " -> ")), nil
	}

	batches := ComputeBatches(graph)
	plan := &models.ExecutionPlan{Batches: batches}

	e.mu.Lock()
	for bi, batch := range batches {
		for _, name := range batch {
			e.states[name] = &specState{status: models.SpecPending, batchIndex: bi}
		}
	}
	e.mu.Unlock()

	for bi, batch := range batches {
		for _, name := range batch {
			e.monitor.InitSpec(name, bi)
		}
	}
	e.monitor.SetBatchInfo(0, len(batches))
	e.monitor.SetOrchestrationState("running")

	rev := Dependents(graph)

	for bi, batch := range batches {
		if e.isStopping() {
			break
		}

		e.logger.Log("[engine] batch %d starting: %v", bi, batch)
		e.monitor.SetBatchInfo(bi, len(batches))
		e.emitter.Emit(Event{Type: EventBatchStart, Batch: bi, Specs: batch})

		e.runBatch(ctx, batch, rev, maxParallel, maxRetries)

		e.logger.Log("[engine] batch %d complete", bi)
		e.emitter.Emit(Event{Type: EventBatchComplete, Batch: bi})
	}

	return e.assembleResult(plan), nil
}

// Stop aborts an in-flight run: every running agent is killed and the
// pending Start resolves with status stopped once they report termination.
// No-op when nothing is running.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.stopping = true
	e.mu.Unlock()

	e.logger.Log("[engine] stop requested, killing active agents")
	e.monitor.SetOrchestrationState("stopped")
	e.spawner.KillAll()
}

// GetStatus passes through to the status monitor.
func (e *Engine) GetStatus() *models.OrchestrationStatus {
	return e.monitor.GetOrchestrationStatus()
}

// IsRunning reports whether a run is in flight.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// runBatch executes one batch under a bounded-concurrency admission pool:
// at most maxParallel specs in flight, a freed slot immediately admitting
// the next pending spec.
func (e *Engine) runBatch(ctx context.Context, batch []string, rev map[string][]string, maxParallel, maxRetries int) {
	sem := make(chan struct{}, maxParallel)
	var wg sync.WaitGroup

	for _, name := range batch {
		wg.Add(1)
		go func(specName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			e.runSpec(ctx, specName, rev, maxRetries)
		}(name)
	}

	wg.Wait()
}

// runSpec drives one spec through spawn, retry, and terminal bookkeeping
// within its concurrency slot.
func (e *Engine) runSpec(ctx context.Context, specName string, rev map[string][]string, maxRetries int) {
	e.mu.Lock()
	st := e.states[specName]
	if st.status == models.SpecSkipped || e.stopping {
		e.mu.Unlock()
		return
	}
	st.status = models.SpecAssigned
	e.mu.Unlock()

	e.bestEffortTransition(specName, models.SpecAssigned)
	e.emitter.Emit(Event{Type: EventSpecStart, SpecName: specName})
	e.monitor.UpdateSpecStatus(specName, "running", "")
	e.bestEffortTransition(specName, models.SpecInProgress)

	e.mu.Lock()
	st.status = models.SpecInProgress
	e.mu.Unlock()

	for {
		agentID, reason, completed := e.attempt(ctx, specName, st)
		if completed {
			e.completeSpec(specName, agentID)
			return
		}

		// Stop mid-run leaves the spec non-terminal; it is omitted from
		// the result partition.
		if e.isStopping() || ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		retries := st.retryCount
		e.mu.Unlock()

		if retries < maxRetries {
			e.mu.Lock()
			st.retryCount++
			e.mu.Unlock()
			e.monitor.IncrementRetry(specName)
			e.logger.Log("[engine] spec %s failed (%s), retry %d/%d", specName, reason, retries+1, maxRetries)
			continue
		}

		e.failSpec(specName, agentID, reason, rev)
		return
	}
}

// attempt spawns one agent for the spec and waits for its terminal event.
// Returns the agent ID, a failure reason when not completed, and whether
// the attempt succeeded.
func (e *Engine) attempt(ctx context.Context, specName string, st *specState) (agentID, reason string, completed bool) {
	agent, err := e.spawner.Spawn(ctx, specName)
	if err != nil {
		// Spawn-precondition failure: retried like any failed attempt.
		return "", err.Error(), false
	}

	e.mu.Lock()
	st.agentID = agent.ID
	e.mu.Unlock()

	term, err := e.spawner.Wait(ctx, agent.ID)
	if err != nil {
		return agent.ID, err.Error(), false
	}

	switch term.Status {
	case models.AgentStatusCompleted:
		return term.ID, "", true
	case models.AgentStatusTimeout:
		return term.ID, "timed out", false
	default:
		reason = "process failed"
		if term.ExitCode != nil {
			reason = fmt.Sprintf("process exited with code %d", *term.ExitCode)
		}
		if term.Stderr != "" {
			reason = fmt.Sprintf("%s: %s", reason, strings.TrimSpace(term.Stderr))
		}
		return term.ID, reason, false
	}
}

// completeSpec records a successful spec.
func (e *Engine) completeSpec(specName, agentID string) {
	e.mu.Lock()
	e.states[specName].status = models.SpecCompleted
	e.mu.Unlock()

	e.bestEffortTransition(specName, models.SpecCompleted)
	e.monitor.UpdateSpecStatus(specName, "completed", agentID)
	e.monitor.SyncExternalStatus(specName, models.SpecCompleted)
	e.emitter.Emit(Event{Type: EventSpecComplete, SpecName: specName, AgentID: agentID})
}

// failSpec records an exhausted spec and skips its transitive dependents.
// Skipped specs are never spawned, even if a later batch schedules them
// independently.
func (e *Engine) failSpec(specName, agentID, reason string, rev map[string][]string) {
	e.mu.Lock()
	st := e.states[specName]
	st.status = models.SpecFailed
	st.reason = reason

	var skipped []string
	for _, dep := range TransitiveDependents(rev, specName) {
		ds, ok := e.states[dep]
		if !ok || ds.status.Terminal() {
			continue
		}
		ds.status = models.SpecSkipped
		skipped = append(skipped, dep)
	}
	e.mu.Unlock()

	e.bestEffortTransition(specName, models.SpecFailed)
	e.monitor.UpdateSpecStatus(specName, "failed", agentID)
	for _, dep := range skipped {
		e.logger.Log("[engine] skipping %s: dependency %s failed", dep, specName)
		e.monitor.UpdateSpecStatus(dep, "skipped", "")
	}

	e.emitter.Emit(Event{Type: EventSpecFailed, SpecName: specName, AgentID: agentID, Error: reason})
}

// planningFailure assembles a failed result without spawning anything.
func (e *Engine) planningFailure(plan *models.ExecutionPlan, msg string) *models.OrchestrationResult {
	e.logger.Log("[engine] planning failure: %s", msg)
	e.monitor.SetOrchestrationState("failed")
	e.emitter.Emit(Event{Type: EventOrchestrationComplete, Error: msg})
	return &models.OrchestrationResult{
		Status: models.RunFailed,
		Plan:   plan,
		Error:  msg,
	}
}

// assembleResult freezes the per-run state into the final result. The
// completed, failed, and skipped lists partition the requested specs in
// request order, except for specs the stop cut off before a terminal state.
func (e *Engine) assembleResult(plan *models.ExecutionPlan) *models.OrchestrationResult {
	result := &models.OrchestrationResult{Plan: plan}

	e.mu.Lock()
	stopped := e.stopping
	for _, name := range e.order {
		st, ok := e.states[name]
		if !ok {
			continue
		}
		switch st.status {
		case models.SpecCompleted:
			result.Completed = append(result.Completed, name)
		case models.SpecFailed:
			result.Failed = append(result.Failed, name)
		case models.SpecSkipped:
			result.Skipped = append(result.Skipped, name)
		}
	}
	e.mu.Unlock()

	switch {
	case len(result.Failed) > 0:
		result.Status = models.RunFailed
	case stopped:
		result.Status = models.RunStopped
	default:
		result.Status = models.RunCompleted
	}

	e.monitor.SetOrchestrationState(string(result.Status))
	e.emitter.Emit(Event{Type: EventOrchestrationComplete})
	return result
}

// bestEffortTransition applies a lifecycle transition, logging rejections
// instead of propagating them.
func (e *Engine) bestEffortTransition(specName string, state models.SpecStatus) {
	if e.lifecycle == nil {
		return
	}
	if err := e.lifecycle.Transition(specName, state); err != nil {
		log.Printf("[engine] warning: lifecycle transition %s -> %s: %v", specName, state, err)
	}
}

func (e *Engine) isStopping() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopping
}
