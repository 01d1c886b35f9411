package orchestrator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/specforge/specforge/pkg/models"
)

// termGracePeriod is how long a signaled process gets to exit before it is
// forcefully killed.
const termGracePeriod = 5 * time.Second

// fixedBackendArgs are the arguments every worker invocation carries before
// any configured extras and the prompt.
var fixedBackendArgs = []string{"exec", "--full-auto", "--sandbox", "danger-full-access", "--json"}

// AgentSpawner launches and supervises exactly one worker process per spec
// execution attempt. It owns process exit, timeout, and output monitoring;
// every failure after launch surfaces as a terminal agent status plus an
// emitted event, never as an error from Spawn.
type AgentSpawner struct {
	cfg       ConfigProvider
	prompts   PromptBuilder
	registry  AgentRegistry
	emitter   *EventEmitter
	workspace string
	logger    *DebugLogger

	mu sync.Mutex
	// agents holds every agent spawned in this spawner's lifetime.
	agents map[string]*models.Agent
	procs  map[string]*agentProc
}

// agentProc pairs an agent with its live process bookkeeping.
type agentProc struct {
	agent *models.Agent
	cmd   *exec.Cmd
	timer *time.Timer
	// done is closed after the first terminal transition has been recorded
	// and its event emitted; Wait unblocking therefore implies the spawner
	// will emit nothing further for this agent.
	done chan struct{}
	// exited is closed once the OS process is gone.
	exited chan struct{}
}

// NewAgentSpawner creates an AgentSpawner rooted at the given workspace.
func NewAgentSpawner(cfg ConfigProvider, prompts PromptBuilder, registry AgentRegistry, emitter *EventEmitter, workspaceRoot string, logger *DebugLogger) *AgentSpawner {
	return &AgentSpawner{
		cfg:       cfg,
		prompts:   prompts,
		registry:  registry,
		emitter:   emitter,
		workspace: workspaceRoot,
		logger:    logger,
		agents:    make(map[string]*models.Agent),
		procs:     make(map[string]*agentProc),
	}
}

// Spawn launches a worker process for the given spec and returns once the
// process has been started. Termination is reported later through emitted
// events; use Wait to block until the agent is terminal.
//
// A missing API-key environment variable fails synchronously with a
// ConfigurationError and launches nothing. A launch-level failure (backend
// binary missing, pipe errors) still returns an agent: its status is
// already failed and an agent:failed event has been emitted.
func (s *AgentSpawner) Spawn(ctx context.Context, specName string) (*models.Agent, error) {
	cfg, err := s.cfg.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	apiKey := os.Getenv(cfg.APIKeyEnvVar)
	if apiKey == "" {
		return nil, &ConfigurationError{EnvVar: cfg.APIKeyEnvVar}
	}

	prompt, err := s.prompts.BuildPrompt(specName)
	if err != nil {
		return nil, fmt.Errorf("build prompt for %s: %w", specName, err)
	}

	agentID, err := s.registry.Register(specName)
	if err != nil {
		return nil, fmt.Errorf("register agent for %s: %w", specName, err)
	}

	agent := &models.Agent{
		ID:        agentID,
		SpecName:  specName,
		Status:    models.AgentStatusRunning,
		StartedAt: time.Now(),
	}

	args := append(append([]string{}, fixedBackendArgs...), cfg.CodexArgs...)
	args = append(args, prompt)

	cmd := exec.Command(cfg.AgentBackend, args...)
	cmd.Dir = s.workspace
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%s", cfg.APIKeyEnvVar, apiKey))

	proc := &agentProc{
		agent:  agent,
		cmd:    cmd,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	s.mu.Lock()
	s.agents[agentID] = agent
	s.procs[agentID] = proc
	s.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.launchFailed(proc, err)
		return snapshot(s, agentID), nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.launchFailed(proc, err)
		return snapshot(s, agentID), nil
	}

	if err := cmd.Start(); err != nil {
		s.launchFailed(proc, err)
		return snapshot(s, agentID), nil
	}

	s.mu.Lock()
	agent.PID = cmd.Process.Pid
	if cfg.TimeoutSeconds > 0 {
		seconds := cfg.TimeoutSeconds
		proc.timer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
			s.onTimeout(proc, seconds)
		})
	}
	s.mu.Unlock()

	s.logger.Log("[spawner] agent %s spawned for spec %s (pid %d)", agentID, specName, agent.PID)

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		s.readOutput(proc, stdout)
	}()
	go func() {
		defer readers.Done()
		s.readStderr(proc, stderr)
	}()

	go func() {
		readers.Wait()
		waitErr := cmd.Wait()
		close(proc.exited)
		s.onExit(proc, waitErr)
	}()

	return snapshot(s, agentID), nil
}

// launchFailed records a launch-level failure: the agent goes straight to
// failed with the error message in stderr.
func (s *AgentSpawner) launchFailed(proc *agentProc, err error) {
	s.mu.Lock()
	proc.agent.Stderr = err.Error()
	s.mu.Unlock()
	close(proc.exited)

	if !s.transition(proc, models.AgentStatusFailed, nil) {
		return
	}

	s.logger.Log("[spawner] agent %s launch failed: %v", proc.agent.ID, err)
	s.emitter.Emit(Event{
		Type:     EventAgentFailed,
		SpecName: proc.agent.SpecName,
		AgentID:  proc.agent.ID,
		Error:    err.Error(),
	})
	close(proc.done)
}

// onExit handles process termination. The first terminal transition wins:
// an exit observed after a timeout fired is ignored.
func (s *AgentSpawner) onExit(proc *agentProc, waitErr error) {
	exitCode := 0
	if waitErr != nil {
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			exitCode = -1
		}
	}

	status := models.AgentStatusCompleted
	if exitCode != 0 {
		status = models.AgentStatusFailed
	}

	code := exitCode
	if !s.transition(proc, status, &code) {
		return
	}
	defer close(proc.done)

	s.mu.Lock()
	stderrText := proc.agent.Stderr
	s.mu.Unlock()

	if status == models.AgentStatusCompleted {
		s.logger.Log("[spawner] agent %s completed (exit 0)", proc.agent.ID)
		s.emitter.Emit(Event{
			Type:     EventAgentCompleted,
			SpecName: proc.agent.SpecName,
			AgentID:  proc.agent.ID,
			ExitCode: &code,
		})
		return
	}

	s.logger.Log("[spawner] agent %s failed (exit %d)", proc.agent.ID, exitCode)
	s.emitter.Emit(Event{
		Type:     EventAgentFailed,
		SpecName: proc.agent.SpecName,
		AgentID:  proc.agent.ID,
		ExitCode: &code,
		Stderr:   stderrText,
		Error:    fmt.Sprintf("process exited with code %d", exitCode),
	})
}

// onTimeout handles the per-attempt timer firing. A timer firing after the
// agent is already terminal is a no-op.
func (s *AgentSpawner) onTimeout(proc *agentProc, timeoutSeconds int) {
	if !s.transition(proc, models.AgentStatusTimeout, nil) {
		return
	}

	s.logger.Log("[spawner] agent %s timed out after %ds", proc.agent.ID, timeoutSeconds)
	s.emitter.Emit(Event{
		Type:           EventAgentTimeout,
		SpecName:       proc.agent.SpecName,
		AgentID:        proc.agent.ID,
		TimeoutSeconds: timeoutSeconds,
	})

	// done stays open until the process is gone so output readers cannot
	// emit past it.
	s.terminate(proc)
	close(proc.done)
}

// transition records the first terminal transition for an agent. Returns
// false when the agent is already terminal. Cancels the timeout timer and
// deregisters from the registry; deregister failures are logged and
// swallowed. The winning caller emits the terminal event and then closes
// proc.done, so waiters observe full event quiescence.
func (s *AgentSpawner) transition(proc *agentProc, status models.AgentStatus, exitCode *int) bool {
	s.mu.Lock()
	agent := proc.agent
	if agent.Status != models.AgentStatusRunning {
		s.mu.Unlock()
		return false
	}

	agent.Status = status
	agent.ExitCode = exitCode
	now := time.Now()
	agent.CompletedAt = &now
	if proc.timer != nil {
		proc.timer.Stop()
	}
	s.mu.Unlock()

	if err := s.registry.Deregister(agent.ID); err != nil {
		log.Printf("[spawner] warning: deregister agent %s: %v", agent.ID, err)
	}
	return true
}

// terminate sends the graceful signal and escalates to a forceful kill if
// the process is still alive after the grace window.
func (s *AgentSpawner) terminate(proc *agentProc) {
	if proc.cmd != nil && proc.cmd.Process != nil {
		_ = proc.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-proc.exited:
	case <-time.After(termGracePeriod):
		if proc.cmd != nil && proc.cmd.Process != nil {
			_ = proc.cmd.Process.Kill()
		}
		<-proc.exited
	}
}

// readOutput parses the worker's stdout as newline-delimited structured
// records. Successful parses are appended to the agent's event list and
// emitted; blank lines and parse failures are dropped silently.
func (s *AgentSpawner) readOutput(proc *agentProc, r io.Reader) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		record, ok := parseOutputRecord(line)
		if !ok {
			continue
		}

		s.mu.Lock()
		proc.agent.Events = append(proc.agent.Events, record)
		s.mu.Unlock()

		out := record
		s.emitter.Emit(Event{
			Type:     EventAgentOutput,
			SpecName: proc.agent.SpecName,
			AgentID:  proc.agent.ID,
			Output:   &out,
		})
	}
}

// readStderr concatenates error-stream chunks verbatim, no parsing.
func (s *AgentSpawner) readStderr(proc *agentProc, r io.Reader) {
	buf := make([]byte, 16*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.mu.Lock()
			proc.agent.Stderr += string(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// parseOutputRecord parses one stdout line into an OutputEvent. Returns
// false for blank lines and anything that is not a JSON object.
func parseOutputRecord(line []byte) (models.OutputEvent, bool) {
	if len(line) == 0 {
		return models.OutputEvent{}, false
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return models.OutputEvent{}, false
	}

	record := models.OutputEvent{Raw: append(json.RawMessage{}, line...)}
	if t, ok := raw["type"].(string); ok {
		record.Type = t
	}
	if msg, ok := raw["message"].(string); ok {
		record.Message = msg
	} else if content, ok := raw["content"].(string); ok {
		record.Message = content
	}
	return record, true
}

// Wait blocks until the agent reaches a terminal state and returns a copy
// of it. Returns immediately for already-terminal agents.
func (s *AgentSpawner) Wait(ctx context.Context, agentID string) (*models.Agent, error) {
	s.mu.Lock()
	proc, ok := s.procs[agentID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent %s", agentID)
	}

	select {
	case <-proc.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return snapshot(s, agentID), nil
}

// ActiveAgents returns a defensive copy of every agent still running.
// Mutating the result never affects spawner state.
func (s *AgentSpawner) ActiveAgents() map[string]*models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make(map[string]*models.Agent)
	for id, agent := range s.agents {
		if agent.Status == models.AgentStatusRunning {
			active[id] = agent.Clone()
		}
	}
	return active
}

// Agent returns a copy of the agent with the given ID, or nil if unknown.
func (s *AgentSpawner) Agent(agentID string) *models.Agent {
	return snapshot(s, agentID)
}

// Kill sends the graceful signal to an agent and returns once its exit has
// been observed. Returns immediately for unknown or already-terminal
// agents.
func (s *AgentSpawner) Kill(agentID string) error {
	s.mu.Lock()
	proc, ok := s.procs[agentID]
	if !ok || proc.agent.Status.Terminal() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.terminate(proc)
	<-proc.done
	return nil
}

// KillAll concurrently kills every agent still running and returns once all
// of them have terminated.
func (s *AgentSpawner) KillAll() {
	s.mu.Lock()
	var running []*agentProc
	for _, proc := range s.procs {
		if !proc.agent.Status.Terminal() {
			running = append(running, proc)
		}
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, proc := range running {
		wg.Add(1)
		go func(p *agentProc) {
			defer wg.Done()
			s.terminate(p)
			<-p.done
		}(proc)
	}
	wg.Wait()
}

// snapshot returns a deep copy of an agent under the spawner lock.
func snapshot(s *AgentSpawner, agentID string) *models.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentID]
	if !ok {
		return nil
	}
	return agent.Clone()
}

var _ Spawner = (*AgentSpawner)(nil)
