package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/debug"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// maxRequestBytes caps the /execute body.
const maxRequestBytes = 10 << 20

type sandboxServer struct {
	langs          *api.LanguageRegistry
	runner         sandbox.Runner
	limiter        *sandbox.Limiter
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	startTime      time.Time

	// lookPath is replaceable in tests.
	lookPath func(string) (string, error)
}

func newSandboxServer(langs *api.LanguageRegistry, runner sandbox.Runner, limiter *sandbox.Limiter, defaultTimeout, maxTimeout time.Duration) *sandboxServer {
	return &sandboxServer{
		langs:          langs,
		runner:         runner,
		limiter:        limiter,
		defaultTimeout: defaultTimeout,
		maxTimeout:     maxTimeout,
		startTime:      time.Now(),
		lookPath:       exec.LookPath,
	}
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	release, err := s.limiter.Acquire(r.Context())
	if err != nil {
		if errors.Is(err, sandbox.ErrAtCapacity) {
			transport.WriteAPIError(w, api.NewTooManyRequestsError(
				fmt.Sprintf("at capacity (%d concurrent executions)", s.limiter.Capacity())))
			return
		}
		transport.WriteAPIError(w, api.NewCancelledError("request cancelled"))
		return
	}
	defer release()

	var req sandbox.ExecuteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("", "invalid request: "+err.Error()))
		return
	}

	lang, ok := s.langs.Lookup(req.Language)
	if !ok {
		transport.WriteAPIError(w, api.NewInvalidRequestError("language", "Unsupported language: "+req.Language))
		return
	}

	timeout := s.defaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	if s.maxTimeout > 0 && timeout > s.maxTimeout {
		timeout = s.maxTimeout
	}

	slog.Info("execute request",
		"language", lang.Name,
		"code", debug.Truncate(req.Code, 120),
		"timeout", timeout,
	)

	job := &sandbox.Job{
		ID:       api.NewExecutionID(),
		Language: lang,
		Code:     req.Code,
		Timeout:  timeout,
	}
	result, err := s.runner.Run(r.Context(), job)

	resp := sandbox.ExecuteResponse{Status: sandbox.StatusSuccess}
	if result != nil {
		resp.Output = result.Output
		resp.ExitCode = result.ExitCode
		resp.ExecutionTimeMs = result.Duration.Milliseconds()
		resp.Truncated = result.Truncated
	}

	switch {
	case errors.Is(err, sandbox.ErrTimeout):
		resp.Status = sandbox.StatusTimeout
		resp.ExitCode = -1
	case errors.Is(err, sandbox.ErrUnavailable):
		transport.WriteAPIError(w, api.NewUnavailableError(err.Error()))
		return
	case err != nil:
		slog.Error("execution failed", "language", lang.Name, "error", err)
		transport.WriteAPIError(w, api.NewServerError(err.Error()))
		return
	case resp.ExitCode != 0:
		resp.Status = sandbox.StatusError
	}

	slog.Info("execute finished",
		"language", lang.Name,
		"status", resp.Status,
		"exit_code", resp.ExitCode,
		"duration_ms", resp.ExecutionTimeMs,
	)
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status      string   `json:"status"`
	Languages   []string `json:"languages"`
	Capacity    int64    `json:"capacity"`
	CurrentLoad int64    `json:"current_load"`
	UptimeSecs  int64    `json:"uptime_seconds"`
}

// handleHealth reports the languages whose interpreters are on PATH.
// The server is unhealthy when none is.
func (s *sandboxServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	available := s.availableLanguages()
	resp := healthResponse{
		Status:      "healthy",
		Languages:   available,
		Capacity:    s.limiter.Capacity(),
		CurrentLoad: s.limiter.InFlight(),
		UptimeSecs:  int64(time.Since(s.startTime).Seconds()),
	}
	status := http.StatusOK
	if len(available) == 0 {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *sandboxServer) availableLanguages() []string {
	out := []string{}
	for _, l := range s.langs.All() {
		if l.Interpreter == "" {
			continue
		}
		if _, err := s.lookPath(l.Interpreter); err == nil {
			out = append(out, l.Name)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
