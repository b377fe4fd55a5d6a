// Package launcher implements the launch operation: it validates a
// request, stages the snippet, runs it through a sandbox.Runner and turns
// the driver output into a visualization.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/debug"
	"github.com/rhuss/vizlaunch/pkg/observability"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// NoOutputMessage is returned when the container printed nothing.
const NoOutputMessage = "No visualization output from container."

// Config holds launcher settings.
type Config struct {
	// DefaultTimeout applies when the request sets no timeout_seconds.
	// Zero means executions are bounded only by the request context.
	DefaultTimeout time.Duration

	Validation api.ValidationConfig
}

// DefaultConfig returns the default launcher configuration.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 60 * time.Second,
		Validation:     api.DefaultValidationConfig(),
	}
}

// Launcher runs launch requests. It implements transport.Launcher and
// transport.Canceller.
type Launcher struct {
	runner   sandbox.Runner
	langs    *api.LanguageRegistry
	limiter  *sandbox.Limiter
	store    transport.ExecutionStore
	inflight *transport.InFlightRegistry
	cfg      Config
	now      func() time.Time
}

var (
	_ transport.Launcher  = (*Launcher)(nil)
	_ transport.Canceller = (*Launcher)(nil)
)

// Option configures a Launcher.
type Option func(*Launcher)

// WithLimiter bounds concurrent executions.
func WithLimiter(l *sandbox.Limiter) Option {
	return func(ln *Launcher) { ln.limiter = l }
}

// WithStore records every execution in the given store.
func WithStore(s transport.ExecutionStore) Option {
	return func(ln *Launcher) { ln.store = s }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(ln *Launcher) { ln.cfg = cfg }
}

// New creates a Launcher. The runner and the language registry must not
// be nil.
func New(runner sandbox.Runner, langs *api.LanguageRegistry, opts ...Option) (*Launcher, error) {
	if runner == nil {
		return nil, fmt.Errorf("launcher: runner must not be nil")
	}
	if langs == nil {
		return nil, fmt.Errorf("launcher: language registry must not be nil")
	}
	l := &Launcher{
		runner:   runner,
		langs:    langs,
		inflight: transport.NewInFlightRegistry(),
		cfg:      DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Launch runs the request synchronously and returns the visualization.
// Failures are returned as *api.APIError.
func (l *Launcher) Launch(ctx context.Context, req *api.LaunchRequest) (*api.LaunchResponse, error) {
	if apiErr := api.ValidateRequest(req, l.langs, l.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}

	lang, _ := l.langs.Lookup(req.Language)
	mode, _ := api.ParseOutputMode(req.OutputMode)
	runtime := l.runner.Name()

	if l.limiter != nil {
		release, err := l.limiter.Acquire(ctx)
		if err != nil {
			if errors.Is(err, sandbox.ErrAtCapacity) {
				observability.CapacityRejectedTotal.Inc()
				observability.RecordExecution(lang.Name, runtime, observability.OutcomeRejected, 0)
				return nil, api.NewTooManyRequestsError("too many concurrent executions, retry later")
			}
			return nil, api.NewCancelledError("Execution cancelled")
		}
		defer release()
	}

	exec := api.NewExecution(api.NewExecutionID(), lang.Name, string(mode), l.now())
	l.save(ctx, exec)

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	defer l.inflight.Track(ctx, exec.ID, cancel)()

	job := &sandbox.Job{
		ID:       exec.ID,
		Language: lang,
		Code:     api.PrepareCode(req.Code, mode),
		Timeout:  l.timeout(req),
	}

	debug.Log("launcher", "running job",
		"execution_id", job.ID, "language", lang.Name, "runtime", runtime,
		"timeout", job.Timeout, "code", debug.Truncate(job.Code, 200))

	observability.ExecutionsInFlight.Inc()
	start := l.now()
	result, err := l.runner.Run(runCtx, job)
	elapsed := l.now().Sub(start)
	observability.ExecutionsInFlight.Dec()

	resp, outcome, apiErr := l.interpret(job, result, err)

	exec.DurationMs = elapsed.Milliseconds()
	if result != nil {
		code := result.ExitCode
		exec.ExitCode = &code
		if result.Duration > 0 {
			exec.DurationMs = result.Duration.Milliseconds()
		}
	}
	l.finish(ctx, exec, resp, outcome, apiErr)
	observability.RecordExecution(lang.Name, runtime, outcome, elapsed)

	if apiErr != nil {
		return nil, apiErr
	}
	resp.ExecutionID = exec.ID
	resp.DurationMs = exec.DurationMs
	return resp, nil
}

// Cancel stops a running execution. It reports whether one was found.
func (l *Launcher) Cancel(ctx context.Context, id string) bool {
	return l.inflight.Cancel(ctx, id)
}

// InFlight returns the number of running executions.
func (l *Launcher) InFlight() int {
	return l.inflight.Len()
}

// Runtime returns the name of the runner in use.
func (l *Launcher) Runtime() string {
	return l.runner.Name()
}

func (l *Launcher) timeout(req *api.LaunchRequest) time.Duration {
	if req.TimeoutSeconds > 0 {
		return time.Duration(req.TimeoutSeconds) * time.Second
	}
	return l.cfg.DefaultTimeout
}

// interpret maps a runner outcome to a response or an API error.
func (l *Launcher) interpret(job *sandbox.Job, result *sandbox.Result, err error) (*api.LaunchResponse, string, *api.APIError) {
	if err != nil {
		var wsErr *sandbox.WorkspaceError
		switch {
		case errors.Is(err, sandbox.ErrTimeout):
			return nil, observability.OutcomeTimeout,
				api.NewTimeoutError(fmt.Sprintf("Execution timed out after %s", job.Timeout))
		case errors.Is(err, context.Canceled):
			return nil, observability.OutcomeCancelled, api.NewCancelledError("Execution cancelled")
		case errors.Is(err, sandbox.ErrAtCapacity):
			observability.CapacityRejectedTotal.Inc()
			return nil, observability.OutcomeRejected,
				api.NewTooManyRequestsError("sandbox at capacity, retry later")
		case errors.Is(err, sandbox.ErrUnavailable):
			return nil, observability.OutcomeError,
				api.NewUnavailableError("container runtime unavailable: " + err.Error())
		case errors.As(err, &wsErr):
			return nil, observability.OutcomeError,
				api.NewServerError("Error creating temporary file: " + wsErr.Err.Error())
		default:
			return nil, observability.OutcomeError, api.NewServerError("Exception occurred: " + err.Error())
		}
	}

	if result.ExitCode != 0 {
		return nil, observability.OutcomeScriptError, api.NewExecutionError(
			fmt.Sprintf("Script exited with code %d. Output: %s", result.ExitCode, result.Output))
	}

	// A truncated buffer holds exactly the configured limit.
	if result.Truncated {
		slog.Warn("container output truncated", "execution_id", job.ID, "language", job.Language.Name)
		return nil, observability.OutcomeTruncated, api.NewExecutionError(
			fmt.Sprintf("Visualization output exceeded %d bytes", len(result.Output)))
	}

	viz := strings.TrimSpace(result.Output)
	if viz == "" {
		return nil, observability.OutcomeNoOutput, api.NewExecutionError(NoOutputMessage)
	}

	return &api.LaunchResponse{
		Visualization: viz,
		Format:        api.DetectFormat(viz),
	}, observability.OutcomeSuccess, nil
}

func (l *Launcher) save(ctx context.Context, exec *api.Execution) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveExecution(ctx, exec); err != nil {
		slog.Warn("failed to record execution", "execution_id", exec.ID, "error", err.Error())
	}
}

// finish records the terminal state. The store write outlives a cancelled
// request context.
func (l *Launcher) finish(ctx context.Context, exec *api.Execution, resp *api.LaunchResponse, outcome string, apiErr *api.APIError) {
	status := api.ExecutionStatusSucceeded
	switch {
	case outcome == observability.OutcomeCancelled:
		status = api.ExecutionStatusCancelled
	case apiErr != nil:
		status = api.ExecutionStatusFailed
	}
	if err := exec.Complete(status, l.now()); err != nil {
		slog.Warn("invalid execution transition", "execution_id", exec.ID, "error", err.Error())
	}
	exec.Error = apiErr
	if resp != nil {
		exec.Output = resp.Visualization
		exec.Format = resp.Format
	}

	if l.store == nil {
		return
	}
	if err := l.store.UpdateExecution(context.WithoutCancel(ctx), exec); err != nil {
		slog.Warn("failed to update execution", "execution_id", exec.ID, "error", err.Error())
	}
}
