package task

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// SandboxExecutor restricts a task's filesystem and network access beyond
// what a plain process group provides. On darwin it shells out to the
// system's sandbox-exec with a generated Seatbelt profile. On linux, no
// Landlock or seccomp binding exists anywhere in this project's dependency
// corpus, so the sandbox degrades to a conservative environment scrub: the
// task runs as a normal child process with credential-bearing environment
// variables stripped and no profile-level filesystem/network confinement.
// That gap is tracked, not hidden — IsAvailable still reports true on
// linux because "scrubbed env" is a real, if weaker, guarantee, but
// callers that need hard isolation on linux should route to
// ContainerExecutor instead.
type SandboxExecutor struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

// NewSandboxExecutor creates a SandboxExecutor.
func NewSandboxExecutor() *SandboxExecutor {
	return &SandboxExecutor{procs: make(map[string]*exec.Cmd)}
}

func (e *SandboxExecutor) Name() types.ExecutorKind { return types.ExecutorSandbox }

func (e *SandboxExecutor) IsAvailable() bool {
	return runtime.GOOS == "darwin" || runtime.GOOS == "linux"
}

var scrubbedEnvPrefixes = []string{
	"AWS_", "GITHUB_TOKEN", "GH_TOKEN", "NPM_TOKEN", "ANTHROPIC_API_KEY",
	"OPENAI_API_KEY", "SSH_AUTH_SOCK", "GCP_", "AZURE_",
}

func scrubbedEnviron() []string {
	var out []string
	for _, kv := range os.Environ() {
		skip := false
		for _, p := range scrubbedEnvPrefixes {
			if len(kv) >= len(p) && kv[:len(p)] == p {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}

func seatbeltProfile(workDir string) string {
	return fmt.Sprintf(`(version 1)
(deny default)
(allow process-fork process-exec)
(allow file-read*)
(allow file-write* (subpath %q))
(deny network*)
`, filepath.Clean(workDir))
}

func (e *SandboxExecutor) Execute(ctx context.Context, t *types.Task, ring *LogRing, inputCh <-chan string) (*types.TaskResult, error) {
	var cmd *exec.Cmd

	if runtime.GOOS == "darwin" {
		profile := seatbeltProfile(t.WorkDir)
		profilePath := filepath.Join(os.TempDir(), fmt.Sprintf("forgecode-sandbox-%s.sb", t.ID))
		if err := os.WriteFile(profilePath, []byte(profile), 0600); err != nil {
			return nil, fmt.Errorf("task: write sandbox profile: %w", err)
		}
		defer os.Remove(profilePath)
		cmd = exec.CommandContext(ctx, "sandbox-exec", "-f", profilePath, "/bin/sh", "-c", t.Command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", t.Command)
	}

	if t.WorkDir != "" {
		cmd.Dir = t.WorkDir
	}
	cmd.Env = scrubbedEnviron()
	for k, v := range t.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("task: sandbox start: %w", err)
	}

	e.mu.Lock()
	e.procs[t.ID] = cmd
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.procs, t.ID)
		e.mu.Unlock()
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, ring, stdout, false)
	go streamLines(&wg, ring, stderr, true)
	wg.Wait()

	err = cmd.Wait()
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

func (e *SandboxExecutor) Cancel(ctx context.Context, t *types.Task) error {
	e.mu.Lock()
	cmd, ok := e.procs[t.ID]
	e.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	_ = syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(sigkillGrace)
	if cmd.ProcessState == nil {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	}
	return nil
}

// ForceKill sends SIGKILL directly, bypassing Cancel's SIGTERM grace period.
func (e *SandboxExecutor) ForceKill(ctx context.Context, t *types.Task) error {
	e.mu.Lock()
	cmd, ok := e.procs[t.ID]
	e.mu.Unlock()
	if !ok || cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
