package task

import (
	"bufio"
	"context"
	"fmt"
	"sync"
	"time"

	dockercontainer "github.com/moby/moby/api/types/container"
	"github.com/moby/moby/client"

	"github.com/forgecode-ai/forgecode/pkg/types"
)

// ContainerExecutor runs a task inside a throwaway Docker container,
// for work that needs isolation stronger than a process group — a
// different toolchain image, or untrusted generated code.
type ContainerExecutor struct {
	cli *client.Client

	mu  sync.Mutex
	ids map[string]string // task ID -> container ID
}

// NewContainerExecutor dials the local Docker daemon using the standard
// environment-derived options (DOCKER_HOST, DOCKER_CERT_PATH, etc). The
// executor reports IsAvailable() == false if the daemon can't be reached.
func NewContainerExecutor() *ContainerExecutor {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return &ContainerExecutor{ids: make(map[string]string)}
	}
	return &ContainerExecutor{cli: cli, ids: make(map[string]string)}
}

func (e *ContainerExecutor) Name() types.ExecutorKind { return types.ExecutorContainer }

func (e *ContainerExecutor) IsAvailable() bool {
	if e.cli == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.cli.Ping(ctx)
	return err == nil
}

func (e *ContainerExecutor) Execute(ctx context.Context, t *types.Task, ring *LogRing, inputCh <-chan string) (*types.TaskResult, error) {
	if t.Container == nil {
		return nil, fmt.Errorf("task: container executor requires a ContainerSpec")
	}
	spec := t.Container

	var env []string
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	var binds []string
	for _, m := range spec.Mounts {
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		binds = append(binds, fmt.Sprintf("%s:%s:%s", m.Source, m.Target, mode))
	}

	resp, err := e.cli.ContainerCreate(ctx,
		&dockercontainer.Config{
			Image:      spec.Image,
			Cmd:        []string{"sh", "-c", t.Command},
			Env:        env,
			WorkingDir: spec.WorkDir,
			Tty:        false,
			OpenStdin:  inputCh != nil,
		},
		&dockercontainer.HostConfig{
			Binds:      binds,
			AutoRemove: true,
		},
		nil, nil, "",
	)
	if err != nil {
		return nil, fmt.Errorf("task: container create: %w", err)
	}

	e.mu.Lock()
	e.ids[t.ID] = resp.ID
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.ids, t.ID)
		e.mu.Unlock()
	}()

	if err := e.cli.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return nil, fmt.Errorf("task: container start: %w", err)
	}

	logs, err := e.cli.ContainerLogs(ctx, resp.ID, dockercontainer.LogsOptions{
		ShowStdout: true, ShowStderr: true, Follow: true,
	})
	if err == nil {
		go func() {
			defer logs.Close()
			scanner := bufio.NewScanner(logs)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				ring.Append(scanner.Text(), false, time.Now().UnixMilli())
			}
		}()
	}

	statusCh, errCh := e.cli.ContainerWait(ctx, resp.ID, dockercontainer.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return &types.TaskResult{ExitCode: -1, Error: err.Error()}, err
	case status := <-statusCh:
		return &types.TaskResult{ExitCode: int(status.StatusCode)}, nil
	case <-ctx.Done():
		_ = e.Cancel(context.Background(), t)
		return &types.TaskResult{ExitCode: -1, Error: ctx.Err().Error()}, ctx.Err()
	}
}

func (e *ContainerExecutor) Cancel(ctx context.Context, t *types.Task) error {
	e.mu.Lock()
	id, ok := e.ids[t.ID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	timeout := 5
	return e.cli.ContainerStop(ctx, id, dockercontainer.StopOptions{Timeout: &timeout})
}

// ForceKill sends SIGKILL to the container directly, bypassing the
// stop-timeout grace period Cancel gives it.
func (e *ContainerExecutor) ForceKill(ctx context.Context, t *types.Task) error {
	e.mu.Lock()
	id, ok := e.ids[t.ID]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return e.cli.ContainerKill(ctx, id, "SIGKILL")
}
