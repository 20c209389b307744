package task

import (
	"context"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// Executor is the pluggable backend a Task runs under. Implementations
// spawn the task's command, stream output into the task's LogRing, and
// support cancellation independent of the orchestrator's own bookkeeping.
type Executor interface {
	// Name identifies the executor for logging and types.Task.Executor matching.
	Name() types.ExecutorKind

	// IsAvailable reports whether this executor can run on the current
	// platform/environment (e.g. the Container executor needs a reachable
	// Docker daemon; the Sandbox executor needs platform support).
	IsAvailable() bool

	// Execute runs the task to completion or until ctx is cancelled,
	// appending output to ring as it arrives. SendInput, if the executor
	// supports interactive input (Pty), is delivered over inputCh.
	Execute(ctx context.Context, t *types.Task, ring *LogRing, inputCh <-chan string) (*types.TaskResult, error)

	// Cancel requests early termination of a running task. Execute's ctx
	// cancellation already covers this in most executors; Cancel exists
	// for executors (Container) that need an explicit out-of-band stop
	// call rather than relying on context alone. Cancel should give the
	// task a grace period to exit cleanly before forcing it down.
	Cancel(ctx context.Context, t *types.Task) error

	// ForceKill terminates a running task immediately, skipping Cancel's
	// grace period. Used when a task is unresponsive or the caller needs
	// a hard stop (e.g. a resource-limit violation set to Kill).
	ForceKill(ctx context.Context, t *types.Task) error
}
