package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/vizlaunch/pkg/debug"
)

// ExecuteRequest is the request body for POST /execute on the sandbox server.
type ExecuteRequest struct {
	Language       string `json:"language"`
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ExecuteResponse is the response from POST /execute on the sandbox server.
type ExecuteResponse struct {
	Status          string `json:"status"`
	Output          string `json:"output"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
	Truncated       bool   `json:"truncated,omitempty"`
}

// Execution status values reported by the sandbox server.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Acquirer obtains a sandbox-server base URL for one execution. The release
// function must be called when the execution is done.
type Acquirer interface {
	Acquire(ctx context.Context) (url string, release func(), err error)
}

// StaticAcquirer always returns the same sandbox URL.
type StaticAcquirer struct {
	URL string
}

// Acquire returns the configured URL with a no-op release.
func (a *StaticAcquirer) Acquire(_ context.Context) (string, func(), error) {
	if a.URL == "" {
		return "", nil, fmt.Errorf("%w: no sandbox URL configured", ErrUnavailable)
	}
	return a.URL, func() {}, nil
}

// RemoteRunner forwards jobs to a sandbox server over HTTP.
type RemoteRunner struct {
	acquirer   Acquirer
	httpClient *http.Client
}

var _ Runner = (*RemoteRunner)(nil)

// NewRemoteRunner creates a runner that executes jobs on sandboxes handed
// out by acquirer.
func NewRemoteRunner(acquirer Acquirer) *RemoteRunner {
	return &RemoteRunner{
		acquirer: acquirer,
		// The per-job deadline is carried by the request context.
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// Name returns the runtime identifier.
func (r *RemoteRunner) Name() string { return "remote" }

// Run acquires a sandbox, posts the job and converts the response.
func (r *RemoteRunner) Run(ctx context.Context, job *Job) (*Result, error) {
	runCtx, cancel := withTimeout(ctx, job.Timeout)
	defer cancel()

	baseURL, release, err := r.acquirer.Acquire(runCtx)
	if err != nil {
		if ctxErr := classifyContextErr(ctx, runCtx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: acquire sandbox: %v", ErrUnavailable, err)
	}
	defer release()

	timeoutSecs := 0
	if job.Timeout > 0 {
		timeoutSecs = int((job.Timeout + time.Second - 1) / time.Second)
	}

	body, err := json.Marshal(&ExecuteRequest{
		Language:       job.Language.Name,
		Code:           job.Code,
		TimeoutSeconds: timeoutSecs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(baseURL, "/") + "/execute"
	httpReq, err := http.NewRequestWithContext(runCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	debug.Log("sandbox", "remote execute", "execution_id", job.ID, "url", endpoint)

	start := time.Now()
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := classifyContextErr(ctx, runCtx); ctxErr != nil {
			return &Result{ExitCode: -1, Duration: time.Since(start)}, ctxErr
		}
		return nil, fmt.Errorf("%w: sandbox request failed: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: sandbox returned HTTP 429", ErrAtCapacity)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: sandbox returned HTTP 503: %s", ErrUnavailable, debug.Truncate(string(respBody), 500))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, debug.Truncate(string(respBody), 500))
	}

	var out ExecuteResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Result{
		Output:    NormalizeLines(out.Output),
		ExitCode:  out.ExitCode,
		Duration:  time.Duration(out.ExecutionTimeMs) * time.Millisecond,
		Truncated: out.Truncated,
	}
	if out.Status == StatusTimeout {
		return result, ErrTimeout
	}
	return result, nil
}
