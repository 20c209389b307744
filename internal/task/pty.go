package task

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// PtyExecutor attaches the task's shell to a pseudo-terminal, so
// interactive programs (REPLs, editors invoked by an agent, anything that
// checks isatty) behave as they would in a real terminal. SendInput
// writes raw keystrokes to the master side.
type PtyExecutor struct {
	shell string

	mu      sync.Mutex
	masters map[string]*os.File
	cmds    map[string]*exec.Cmd
}

// NewPtyExecutor creates a PtyExecutor using the given shell.
func NewPtyExecutor(shell string) *PtyExecutor {
	return &PtyExecutor{
		shell:   shell,
		masters: make(map[string]*os.File),
		cmds:    make(map[string]*exec.Cmd),
	}
}

func (e *PtyExecutor) Name() types.ExecutorKind { return types.ExecutorPty }

func (e *PtyExecutor) IsAvailable() bool { return runtime.GOOS != "windows" }

func (e *PtyExecutor) Execute(ctx context.Context, t *types.Task, ring *LogRing, inputCh <-chan string) (*types.TaskResult, error) {
	cmd := exec.Command(e.shell, "-c", t.Command)
	if t.WorkDir != "" {
		cmd.Dir = t.WorkDir
	}
	cmd.Env = os.Environ()
	for k, v := range t.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	master, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("task: pty start: %w", err)
	}

	e.mu.Lock()
	e.masters[t.ID] = master
	e.cmds[t.ID] = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.masters, t.ID)
		delete(e.cmds, t.ID)
		e.mu.Unlock()
		master.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(master)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			ring.Append(scanner.Text(), false, time.Now().UnixMilli())
		}
	}()

	if inputCh != nil {
		go func() {
			for line := range inputCh {
				_, _ = master.Write([]byte(line + "\n"))
			}
		}()
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = e.Cancel(context.Background(), t)
		<-done
		return &types.TaskResult{ExitCode: -1, Error: ctx.Err().Error()}, ctx.Err()
	case err := <-waitErr:
		<-done
		exitCode := 0
		if cmd.ProcessState != nil {
			exitCode = cmd.ProcessState.ExitCode()
		}
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return &types.TaskResult{ExitCode: exitErr.ExitCode()}, nil
			}
			return &types.TaskResult{ExitCode: -1, Error: err.Error()}, err
		}
		return &types.TaskResult{ExitCode: exitCode}, nil
	}
}

// Resize changes the pty window size for a running task.
func (e *PtyExecutor) Resize(t *types.Task, cols, rows int) error {
	e.mu.Lock()
	master, ok := e.masters[t.ID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("task: no active pty for %s", t.ID)
	}
	return pty.Setsize(master, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

func (e *PtyExecutor) Cancel(ctx context.Context, t *types.Task) error {
	e.mu.Lock()
	cmd, ok := e.cmds[t.ID]
	e.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}

// ForceKill kills the pty's child process directly, without giving it a
// chance to react to SIGINT the way Cancel does.
func (e *PtyExecutor) ForceKill(ctx context.Context, t *types.Task) error {
	e.mu.Lock()
	cmd, ok := e.cmds[t.ID]
	e.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
