package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestPublicEndpoints(t *testing.T) {
	for _, path := range []string{"/healthz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			// No API key: public paths bypass auth.
			resp, err := http.Get(testEnv.BaseURL() + path)
			if err != nil {
				t.Fatalf("GET %s: %v", path, err)
			}
			body := readBody(t, resp)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
			}
			if path == "/healthz" && strings.TrimSpace(body) != "ok" {
				t.Errorf("body = %q, want ok", body)
			}
		})
	}
}

func TestMetricsCountLaunches(t *testing.T) {
	launch(t, "python", markerHTML).Body.Close()

	resp, err := http.Get(testEnv.BaseURL() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body := readBody(t, resp)

	for _, want := range []string{
		`vizlaunch_requests_total{code="200",method="post"}`,
		`vizlaunch_executions_total{language="python",outcome="success",runtime="remote"}`,
		"vizlaunch_execution_duration_seconds_bucket",
		"vizlaunch_requests_in_flight",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
