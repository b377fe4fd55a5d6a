package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"sync"
	"time"
)

// HostRunner runs the language interpreter directly on the host. It offers
// no isolation and is meant for the sandbox-server, which already runs in
// an isolated pod.
type HostRunner struct {
	MaxOutputBytes int
	Workspace      *Workspace

	// StageAtMountPath writes the code to the language's MountPath instead
	// of a temp file. Drivers built for the container images read their
	// input from that fixed path and ignore argv. Jobs sharing a path run
	// one at a time.
	StageAtMountPath bool

	mu    sync.Mutex
	paths map[string]chan struct{}
}

var _ Runner = (*HostRunner)(nil)

// Name returns the runtime identifier.
func (r *HostRunner) Name() string { return "host" }

// Run writes the code file and runs "<interpreter> <driver> <file>".
func (r *HostRunner) Run(ctx context.Context, job *Job) (*Result, error) {
	if job.Language.Interpreter == "" {
		return nil, fmt.Errorf("language %q has no interpreter", job.Language.Name)
	}

	codePath, cleanup, err := r.writeCode(ctx, job)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	argv := driverCommand(job.Language, codePath)

	runCtx, cancel := withTimeout(ctx, job.Timeout)
	defer cancel()

	out := NewOutputBuffer(r.MaxOutputBytes)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	runErr := cmd.Run()
	result := &Result{
		Output:    out.String(),
		Duration:  time.Since(start),
		Truncated: out.Truncated(),
	}

	if ctxErr := classifyContextErr(ctx, runCtx); ctxErr != nil {
		result.ExitCode = -1
		return result, ctxErr
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, runErr)
		}
		return nil, fmt.Errorf("run %s: %w", argv[0], runErr)
	}
	return result, nil
}

// writeCode stages the code and returns its path. With StageAtMountPath the
// returned cleanup also releases the path for the next job.
func (r *HostRunner) writeCode(ctx context.Context, job *Job) (string, func(), error) {
	path := job.Language.MountPath
	if !r.StageAtMountPath || path == "" {
		return r.Workspace.WriteCode(job)
	}

	slot := r.pathSlot(path)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
	release := func() { <-slot }

	remove, err := r.Workspace.StageCode(path, job)
	if err != nil {
		release()
		return "", nil, err
	}
	return path, func() {
		remove()
		release()
	}, nil
}

func (r *HostRunner) pathSlot(path string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paths == nil {
		r.paths = make(map[string]chan struct{})
	}
	slot, ok := r.paths[path]
	if !ok {
		slot = make(chan struct{}, 1)
		r.paths[path] = slot
	}
	return slot
}
