// Package sandbox runs code snippets inside isolated container runtimes.
//
// A [Runner] takes a [Job] (the resolved language and the prepared code)
// and returns the merged stdout/stderr of the language driver as a [Result].
// Implementations:
//   - [CLIRunner]: shells out to the docker binary (default)
//   - [DockerRunner]: talks to the Docker Engine API directly
//   - [RemoteRunner]: forwards to a sandbox-server pod obtained from an [Acquirer]
//   - [HostRunner]: runs the interpreter on the local host (sandbox-server only)
package sandbox

import (
	"context"
	"errors"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
)

var (
	// ErrTimeout is returned when an execution exceeds its deadline.
	ErrTimeout = errors.New("sandbox: execution timed out")

	// ErrAtCapacity is returned when no execution slot is available.
	ErrAtCapacity = errors.New("sandbox: at capacity")

	// ErrUnavailable is returned when the container runtime cannot be reached.
	ErrUnavailable = errors.New("sandbox: runtime unavailable")
)

// Job is one execution request handed to a Runner.
type Job struct {
	ID       string
	Language api.Language
	Code     string
	// Timeout bounds the run. Zero means no limit beyond the context.
	Timeout time.Duration
}

// Result is the outcome of a run that reached the interpreter.
// A non-zero ExitCode is not an error at this layer.
type Result struct {
	Output    string
	ExitCode  int
	Duration  time.Duration
	Truncated bool
}

// Runner executes jobs. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, job *Job) (*Result, error)
	Name() string
}

// HealthChecker is implemented by runners that can check their runtime.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// WorkspaceError reports a failure to stage the code file.
type WorkspaceError struct {
	Err error
}

func (e *WorkspaceError) Error() string { return e.Err.Error() }

func (e *WorkspaceError) Unwrap() error { return e.Err }

// withTimeout derives the run context for a job.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classifyContextErr maps an expired run context to a sandbox error.
// It returns nil when runCtx is still live.
func classifyContextErr(parent, runCtx context.Context) error {
	if runCtx.Err() == nil {
		return nil
	}
	if err := parent.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}
	return ErrTimeout
}

// driverCommand returns "<interpreter> <driver> <codePath>", skipping
// empty parts.
func driverCommand(lang api.Language, codePath string) []string {
	cmd := make([]string, 0, 3)
	for _, s := range []string{lang.Interpreter, lang.Driver, codePath} {
		if s != "" {
			cmd = append(cmd, s)
		}
	}
	return cmd
}
