package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/debug"
)

// Limits are the per-container resource settings shared by the docker runners.
type Limits struct {
	Network   string // docker network mode, "none" disables networking
	Memory    string // e.g. "512m"
	CPUs      string // e.g. "1" or "0.5"
	PidsLimit int64
}

// CLIRunner runs each job with `docker run` as a subprocess.
type CLIRunner struct {
	// Binary is the docker executable. Defaults to "docker".
	Binary         string
	Limits         Limits
	MaxOutputBytes int
	Workspace      *Workspace

	// newName is replaceable in tests.
	newName func() string
}

var _ Runner = (*CLIRunner)(nil)

// Name returns the runtime identifier.
func (r *CLIRunner) Name() string { return "docker-cli" }

func (r *CLIRunner) binary() string {
	if r.Binary == "" {
		return "docker"
	}
	return r.Binary
}

func (r *CLIRunner) containerName() string {
	if r.newName != nil {
		return r.newName()
	}
	return "vizlaunch-" + uuid.NewString()
}

// Args builds the argument vector for `docker run`. Empty limits are omitted.
func (r *CLIRunner) Args(lang api.Language, name, codePath string) []string {
	args := []string{"run", "--rm", "--name", name}
	if r.Limits.Network != "" {
		args = append(args, "--network", r.Limits.Network)
	}
	if r.Limits.Memory != "" {
		args = append(args, "--memory", r.Limits.Memory)
	}
	if r.Limits.CPUs != "" {
		args = append(args, "--cpus", r.Limits.CPUs)
	}
	if r.Limits.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.FormatInt(r.Limits.PidsLimit, 10))
	}
	args = append(args, "-v", codePath+":"+lang.MountPath+":ro", lang.Image)
	return append(args, driverCommand(lang, lang.MountPath)...)
}

// Run stages the code file, runs the container and waits for it to exit.
func (r *CLIRunner) Run(ctx context.Context, job *Job) (*Result, error) {
	codePath, cleanup, err := r.Workspace.WriteCode(job)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	runCtx, cancel := withTimeout(ctx, job.Timeout)
	defer cancel()

	name := r.containerName()
	args := r.Args(job.Language, name, codePath)
	debug.Log("sandbox", "docker run", "execution_id", job.ID, "binary", r.binary(), "args", args)

	out := NewOutputBuffer(r.MaxOutputBytes)
	cmd := exec.CommandContext(runCtx, r.binary(), args...)
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
		// Killing the CLI leaves the container running.
		r.forceRemove(name)
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
		return nil, fmt.Errorf("run %s: %w", r.binary(), runErr)
	}
	return result, nil
}

// HealthCheck verifies that the docker binary can reach a daemon.
func (r *CLIRunner) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, r.binary(), "version", "--format", "{{.Server.Version}}").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrUnavailable, err, debug.Truncate(string(out), 200))
	}
	return nil
}

func (r *CLIRunner) forceRemove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, r.binary(), "rm", "-f", name).CombinedOutput(); err != nil {
		slog.Warn("failed to remove container", "name", name, "error", err.Error(), "output", debug.Truncate(string(out), 200))
	}
}
