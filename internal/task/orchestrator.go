package task

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/forgecode-ai/forgecode/internal/event"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// handle is the orchestrator's internal bookkeeping for one task,
// separate from the types.Task value exposed to callers so that state
// mutation always goes through the orchestrator's lock.
type handle struct {
	mu     sync.Mutex
	task   types.Task
	ring   *LogRing
	cancel context.CancelFunc
	input  chan string
	states chan types.TaskState // broadcast of state transitions, buffered
}

// Orchestrator owns the full set of in-flight and completed tasks for a
// process, dispatching each to the Executor named by its ExecutorKind and
// gating concurrent execution behind a semaphore.
type Orchestrator struct {
	bus *event.Bus

	executors map[types.ExecutorKind]Executor
	monitor   *ResourceMonitor

	mu    sync.RWMutex
	tasks map[string]*handle

	sem chan struct{}
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithMaxConcurrent bounds how many tasks may run at once (default 10).
func WithMaxConcurrent(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sem = make(chan struct{}, n)
		}
	}
}

// NewOrchestrator creates an Orchestrator wired to bus for lifecycle
// events and registers the given executors under their declared Name().
func NewOrchestrator(bus *event.Bus, executors []Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:       bus,
		executors: make(map[types.ExecutorKind]Executor, len(executors)),
		tasks:     make(map[string]*handle),
		sem:       make(chan struct{}, 10),
	}
	for _, e := range executors {
		o.executors[e.Name()] = e
	}
	for _, opt := range opts {
		opt(o)
	}
	o.monitor = NewResourceMonitor(time.Second, o.handleViolation)
	return o
}

// Spawn creates a task in Pending state and asynchronously advances it
// through Queued -> Running -> a terminal state. It returns immediately
// with the task's ID.
func (o *Orchestrator) Spawn(t types.Task) (string, error) {
	exec, ok := o.executors[t.Executor]
	if !ok {
		return "", fmt.Errorf("task: no executor registered for %q", t.Executor)
	}
	if !exec.IsAvailable() {
		return "", fmt.Errorf("task: executor %q is not available on this host", t.Executor)
	}

	t.ID = ulid.Make().String()
	t.State = types.TaskPending
	t.CreatedAt = time.Now().UnixMilli()

	h := &handle{
		task:   t,
		ring:   NewLogRing(2000),
		input:  make(chan string, 16),
		states: make(chan types.TaskState, 8),
	}

	o.mu.Lock()
	o.tasks[t.ID] = h
	o.mu.Unlock()

	o.publish(event.TaskCreated, t.ID, t)
	go o.run(h)

	return t.ID, nil
}

func (o *Orchestrator) run(h *handle) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()

	o.setState(h, types.TaskQueued)

	ctx, cancel := context.WithCancel(context.Background())
	if h.task.Limits.MaxWallDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.task.Limits.MaxWallDuration)*time.Millisecond)
	}
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	defer cancel()

	o.setState(h, types.TaskRunning)
	now := time.Now().UnixMilli()
	h.mu.Lock()
	h.task.StartedAt = &now
	h.mu.Unlock()

	exec := o.executors[h.task.Executor]
	result, err := exec.Execute(ctx, &h.task, h.ring, h.input)

	endedAt := time.Now().UnixMilli()
	h.mu.Lock()
	h.task.EndedAt = &endedAt
	if result != nil {
		ec := result.ExitCode
		h.task.ExitCode = &ec
		h.task.Error = result.Error
	}
	h.mu.Unlock()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		o.setState(h, types.TaskTimedOut)
	case ctx.Err() == context.Canceled:
		o.setState(h, types.TaskCancelled)
	case err != nil || (result != nil && result.ExitCode != 0):
		o.setState(h, types.TaskFailed)
	default:
		o.setState(h, types.TaskCompleted)
	}
}

func (o *Orchestrator) setState(h *handle, s types.TaskState) {
	h.mu.Lock()
	h.task.State = s
	task := h.task
	h.mu.Unlock()

	select {
	case h.states <- s:
	default:
	}
	o.publish(event.TaskStateChanged, task.ID, task)
}

func (o *Orchestrator) publish(evType event.EventType, taskID string, task types.Task) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(event.Event{Type: evType, Data: map[string]any{"taskID": taskID, "task": task}})
}

func (o *Orchestrator) handleViolation(t *types.Task, action types.ResourceAction, detail string) {
	o.publish(event.TaskResourceWarning, t.ID, *t)
	if action == types.ResourceKill {
		_ = o.Kill(context.Background(), t.ID)
	}
}

// Get returns a snapshot of a task's current state.
func (o *Orchestrator) Get(id string) (types.Task, bool) {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return types.Task{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.task, true
}

// List returns a snapshot of every known task.
func (o *Orchestrator) List() []types.Task {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]types.Task, 0, len(o.tasks))
	for _, h := range o.tasks {
		h.mu.Lock()
		out = append(out, h.task)
		h.mu.Unlock()
	}
	return out
}

// SendInput delivers a line of interactive input to a running task's
// executor, if it supports one (Local and Pty do).
func (o *Orchestrator) SendInput(id, line string) error {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task: %s not found", id)
	}
	select {
	case h.input <- line:
		return nil
	default:
		return fmt.Errorf("task: %s input buffer full", id)
	}
}

// ReadLogs returns the last n buffered log lines for a task.
func (o *Orchestrator) ReadLogs(id string, n int) ([]LogLine, error) {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task: %s not found", id)
	}
	return h.ring.Tail(n), nil
}

// Stop requests cancellation of a running task; it is a no-op if the task
// has already reached a terminal state.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task: %s not found", id)
	}

	h.mu.Lock()
	if h.task.State.IsTerminal() {
		h.mu.Unlock()
		return nil
	}
	cancel := h.cancel
	executor := h.task.Executor
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if exec, ok := o.executors[executor]; ok {
		return exec.Cancel(ctx, &h.task)
	}
	return nil
}

// Kill forcibly terminates a task immediately, bypassing the grace period
// Stop gives a task to exit cleanly. Used for resource-limit violations
// configured to kill, and for callers that need a hard stop rather than
// a polite cancellation request.
func (o *Orchestrator) Kill(ctx context.Context, id string) error {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task: %s not found", id)
	}

	h.mu.Lock()
	if h.task.State.IsTerminal() {
		h.mu.Unlock()
		return nil
	}
	cancel := h.cancel
	executor := h.task.Executor
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if exec, ok := o.executors[executor]; ok {
		return exec.ForceKill(ctx, &h.task)
	}
	return nil
}

// Condition is what WaitFor polls for.
type Condition func(t types.Task, recentLogs []LogLine) bool

// OutputContains returns a Condition satisfied once any buffered log line
// contains substr.
func OutputContains(substr string) Condition {
	return func(_ types.Task, logs []LogLine) bool {
		for _, l := range logs {
			if strings.Contains(l.Text, substr) {
				return true
			}
		}
		return false
	}
}

// OutputMatches returns a Condition satisfied once any buffered log line
// matches the given regular expression.
func OutputMatches(re *regexp.Regexp) Condition {
	return func(_ types.Task, logs []LogLine) bool {
		for _, l := range logs {
			if re.MatchString(l.Text) {
				return true
			}
		}
		return false
	}
}

// StateIs returns a Condition satisfied once the task reaches any of states.
func StateIs(states ...types.TaskState) Condition {
	set := make(map[types.TaskState]bool, len(states))
	for _, s := range states {
		set[s] = true
	}
	return func(t types.Task, _ []LogLine) bool { return set[t.State] }
}

// Completed is a Condition satisfied once the task reaches any terminal state.
func Completed() Condition {
	return func(t types.Task, _ []LogLine) bool { return t.State.IsTerminal() }
}

// WaitFor blocks until cond is satisfied, ctx is cancelled, or timeout
// elapses, polling the task's state and newly appended log lines.
func (o *Orchestrator) WaitFor(ctx context.Context, id string, cond Condition, timeout time.Duration) error {
	o.mu.RLock()
	h, ok := o.tasks[id]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("task: %s not found", id)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ch, unsub := h.ring.Subscribe()
	defer unsub()

	check := func() bool {
		h.mu.Lock()
		snapshot := h.task
		h.mu.Unlock()
		return cond(snapshot, h.ring.Tail(50))
	}
	if check() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.states:
			if check() {
				return nil
			}
		case <-ch:
			if check() {
				return nil
			}
		}
	}
}
