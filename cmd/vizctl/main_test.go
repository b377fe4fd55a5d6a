package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rhuss/vizlaunch/pkg/api"
)

const testExecID = "exec_abcdefghijklmnopqrstuvwx"

// fakeServer answers the routes vizctl calls and records launch requests.
func fakeServer(t *testing.T, launches chan<- api.LaunchRequest) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /launch-container", func(w http.ResponseWriter, r *http.Request) {
		var req api.LaunchRequest
		json.NewDecoder(r.Body).Decode(&req)
		if launches != nil {
			launches <- req
		}
		w.Header().Set("Content-Type", "application/json")
		if req.Language == "cobol" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"Unsupported language: cobol","type":"invalid_request","param":"language"}`))
			return
		}
		json.NewEncoder(w).Encode(api.LaunchResponse{Visualization: "<svg/>", Format: api.FormatHTML})
	})
	mux.HandleFunc("GET /v1/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.LanguageList{Object: "list", Data: []api.LanguageInfo{
			{Name: "python", Aliases: []string{"py"}, Extension: ".py", Image: "viz-python"},
		}})
	})
	mux.HandleFunc("GET /v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.Execution{
			ID: r.PathValue("id"), Object: "execution", Language: "R", Status: api.ExecutionStatusSucceeded,
		})
	})
	mux.HandleFunc("GET /v1/executions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data": []api.Execution{{
				ID: testExecID, Language: q.Get("language"), Status: api.ExecutionStatus(q.Get("status")),
				Format: api.FormatImage, DurationMs: 1200,
			}},
			"has_more": q.Get("limit") == "1",
			"first_id": testExecID,
			"last_id":  testExecID,
		})
	})
	mux.HandleFunc("DELETE /v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLaunchFromFile(t *testing.T) {
	launches := make(chan api.LaunchRequest, 1)
	srv := fakeServer(t, launches)

	path := filepath.Join(t.TempDir(), "plot.R")
	if err := os.WriteFile(path, []byte("plot(1:10)"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"-url", srv.URL, "launch", "-language", "R", "-mode", "interactive", "-file", path},
		strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "<svg/>" {
		t.Errorf("stdout = %q", stdout.String())
	}

	req := <-launches
	if req.Language != "R" || req.OutputMode != "interactive" || req.Code != "plot(1:10)" {
		t.Errorf("request = %+v", req)
	}
}

func TestLaunchFromStdin(t *testing.T) {
	launches := make(chan api.LaunchRequest, 1)
	srv := fakeServer(t, launches)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", srv.URL, "launch", "-json"},
		strings.NewReader("print('hi')"), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if req := <-launches; req.Code != "print('hi')" || req.Language != "python" {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(stdout.String(), `"visualization": "<svg/>"`) {
		t.Errorf("stdout = %s", stdout.String())
	}
}

func TestLaunchServerError(t *testing.T) {
	srv := fakeServer(t, nil)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", srv.URL, "launch", "-language", "cobol"},
		strings.NewReader("x"), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "Unsupported language: cobol (invalid_request)") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestLanguagesCommand(t *testing.T) {
	srv := fakeServer(t, nil)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-url", srv.URL, "languages"}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "NAME") || !strings.Contains(out, "python") || !strings.Contains(out, ".py") {
		t.Errorf("stdout = %q", out)
	}
}

func TestCancelCommand(t *testing.T) {
	srv := fakeServer(t, nil)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-url", srv.URL, "cancel", "exec_abc"}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	if stdout.String() != "cancelled exec_abc\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"frobnicate"}},
		{name: "get without id", args: []string{"get"}},
		{name: "cancel with extra args", args: []string{"cancel", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(context.Background(), tt.args, nil, &stdout, &stderr); code != 2 {
				t.Errorf("exit = %d, want 2", code)
			}
			if !strings.Contains(stderr.String(), "Usage: vizctl") {
				t.Errorf("stderr = %q, want usage", stderr.String())
			}
		})
	}
}

func TestGetCommand(t *testing.T) {
	srv := fakeServer(t, nil)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-url", srv.URL, "get", testExecID}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	var exec api.Execution
	if err := json.Unmarshal(stdout.Bytes(), &exec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, stdout.String())
	}
	if exec.ID != testExecID || exec.Status != api.ExecutionStatusSucceeded {
		t.Errorf("execution = %+v", exec)
	}
}

func TestListCommand(t *testing.T) {
	srv := fakeServer(t, nil)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(),
		[]string{"-url", srv.URL, "list", "-language", "R", "-status", "failed", "-limit", "1"},
		nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %s", code, stderr.String())
	}
	out := stdout.String()
	for _, want := range []string{"ID", testExecID, "R", "failed", "1200", "more results: -after " + testExecID} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
