package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/launcher"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
	"github.com/rhuss/vizlaunch/pkg/storage/memory"
	"github.com/rhuss/vizlaunch/pkg/transport"
	transporthttp "github.com/rhuss/vizlaunch/pkg/transport/http"
)

// echoRunner prints the prepared code back, so the visualization is the
// snippet itself.
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, job *sandbox.Job) (*sandbox.Result, error) {
	if strings.Contains(job.Code, "exit(3)") {
		return &sandbox.Result{Output: "Traceback", ExitCode: 3}, nil
	}
	return &sandbox.Result{Output: job.Code}, nil
}

func (echoRunner) Name() string { return "echo" }

func newTestClient(t *testing.T, opts ...Option) *Client {
	t.Helper()

	langs := api.MustLanguageRegistry(api.DefaultLanguages())
	store := memory.New(100)
	l, err := launcher.New(echoRunner{}, langs, launcher.WithStore(store))
	if err != nil {
		t.Fatalf("launcher.New: %v", err)
	}

	cfg := transporthttp.DefaultConfig()
	cfg.Languages = langs
	cfg.Canceller = l
	adapter := transporthttp.NewAdapter(l, store, cfg)

	srv := httptest.NewServer(adapter.Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", opts...)
}

func TestLaunch(t *testing.T) {
	c := newTestClient(t)

	resp, err := c.Launch(context.Background(), &api.LaunchRequest{
		Language: "python",
		Code:     "<svg></svg>",
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if !strings.Contains(resp.Visualization, "<svg></svg>") {
		t.Errorf("visualization = %q", resp.Visualization)
	}
	if !api.ValidateExecutionID(resp.ExecutionID) {
		t.Errorf("execution_id = %q, want a valid ID", resp.ExecutionID)
	}

	exec, err := c.GetExecution(context.Background(), resp.ExecutionID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if exec.Status != api.ExecutionStatusSucceeded {
		t.Errorf("status = %q, want succeeded", exec.Status)
	}
	if exec.Language != "python" {
		t.Errorf("language = %q, want python", exec.Language)
	}
}

func TestLaunchErrors(t *testing.T) {
	c := newTestClient(t)

	tests := []struct {
		name     string
		req      *api.LaunchRequest
		wantType api.ErrorType
		wantMsg  string
	}{
		{
			name:     "unsupported language",
			req:      &api.LaunchRequest{Language: "cobol", Code: "x"},
			wantType: api.ErrorTypeInvalidRequest,
			wantMsg:  "Unsupported language: cobol",
		},
		{
			name:     "script failure",
			req:      &api.LaunchRequest{Language: "python", Code: "exit(3)"},
			wantType: api.ErrorTypeExecutionError,
			wantMsg:  "Script exited with code 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Launch(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsType(err, tt.wantType) {
				t.Errorf("error = %v, want type %s", err, tt.wantType)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLanguages(t *testing.T) {
	c := newTestClient(t)

	langs, err := c.Languages(context.Background())
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	names := map[string]bool{}
	for _, l := range langs {
		names[l.Name] = true
	}
	if !names["python"] || !names["R"] {
		t.Errorf("languages = %v, want python and R", names)
	}
}

func TestListExecutions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	for _, lang := range []string{"python", "R", "python"} {
		if _, err := c.Launch(ctx, &api.LaunchRequest{Language: lang, Code: "print(1)"}); err != nil {
			t.Fatalf("Launch(%s): %v", lang, err)
		}
	}

	list, err := c.ListExecutions(ctx, transport.ListOptions{Language: "python", Limit: 10})
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(list.Data) != 2 {
		t.Errorf("got %d python executions, want 2", len(list.Data))
	}
}

func TestCancelDeletesFinishedExecution(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	resp, err := c.Launch(ctx, &api.LaunchRequest{Language: "R", Code: "cat(1)"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := c.Cancel(ctx, resp.ExecutionID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	_, err = c.GetExecution(ctx, resp.ExecutionID)
	if !IsType(err, api.ErrorTypeNotFound) {
		t.Errorf("GetExecution after cancel = %v, want not_found", err)
	}
}

func TestMalformedID(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetExecution(context.Background(), "nope")
	if !IsType(err, api.ErrorTypeInvalidRequest) {
		t.Errorf("error = %v, want invalid_request", err)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Languages(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsType(err, api.ErrorTypeServerError) {
		t.Errorf("error = %v, want server_error", err)
	}
	if !strings.Contains(err.Error(), "HTTP 502: upstream exploded") {
		t.Errorf("error = %q", err)
	}
}

func TestUntypedErrorUsesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Launch(context.Background(), &api.LaunchRequest{Language: "python"})
	if !IsType(err, api.ErrorTypeTooManyRequests) {
		t.Errorf("error = %v, want too_many_requests", err)
	}
}

func TestAPIKeyHeader(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, WithAPIKey("sk-test")).Languages(context.Background()); err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if key := <-got; key != "sk-test" {
		t.Errorf("X-API-Key = %q, want sk-test", key)
	}
}
