package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	gohttp "net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return bytes.NewReader(data)
}

func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return "http://" + ln.Addr().String()
}

func TestServerStartsAndAcceptsRequests(t *testing.T) {
	l := &mockLauncher{resp: &api.LaunchResponse{Visualization: "<html></html>", Format: api.FormatHTML}}
	base := startServer(t, NewServer(l, nil, WithAddr("127.0.0.1:0")))

	resp, err := gohttp.Post(base+"/launch-container", "application/json",
		jsonBody(t, api.LaunchRequest{Language: "python", Code: "x"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, gohttp.StatusOK)
	}
	var got api.LaunchResponse
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Visualization != "<html></html>" {
		t.Errorf("visualization = %q", got.Visualization)
	}
}

func TestServerRecoversFromPanic(t *testing.T) {
	l := transport.LauncherFunc(func(context.Context, *api.LaunchRequest) (*api.LaunchResponse, error) {
		panic("driver exploded")
	})
	base := startServer(t, NewServer(l, nil))

	resp, err := gohttp.Post(base+"/launch-container", "application/json", jsonBody(t, api.LaunchRequest{Language: "python"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != gohttp.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestServerGracefulShutdown(t *testing.T) {
	slow := transport.LauncherFunc(func(ctx context.Context, _ *api.LaunchRequest) (*api.LaunchResponse, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return &api.LaunchResponse{Visualization: "done"}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	srv := NewServer(slow, nil, WithShutdownTimeout(5*time.Second))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	addr := ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()
	time.Sleep(50 * time.Millisecond)

	responseCh := make(chan int, 1)
	go func() {
		resp, err := gohttp.Post("http://"+addr+"/launch-container", "application/json",
			bytes.NewReader([]byte(`{"language":"python","code":"x"}`)))
		if err != nil {
			responseCh <- 0
			return
		}
		defer resp.Body.Close()
		responseCh <- resp.StatusCode
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if status := <-responseCh; status != gohttp.StatusOK {
		t.Errorf("slow request status = %d, want %d", status, gohttp.StatusOK)
	}
	if err := <-served; err != nil {
		t.Errorf("Serve returned %v", err)
	}
}

func TestServerExtraRoutesAndMiddleware(t *testing.T) {
	var apiWrapped, outerWrapped atomic.Int32
	health := gohttp.HandlerFunc(func(w gohttp.ResponseWriter, _ *gohttp.Request) {
		w.Write([]byte("ok"))
	})

	srv := NewServer(&mockLauncher{resp: &api.LaunchResponse{Visualization: "v"}}, nil,
		WithRoute("GET /healthz", health),
		WithAPIMiddleware(func(next gohttp.Handler) gohttp.Handler {
			return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
				apiWrapped.Add(1)
				next.ServeHTTP(w, r)
			})
		}),
		WithOuterMiddleware(func(next gohttp.Handler) gohttp.Handler {
			return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
				outerWrapped.Add(1)
				next.ServeHTTP(w, r)
			})
		}),
	)
	base := startServer(t, srv)

	resp, err := gohttp.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != gohttp.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}
	if apiWrapped.Load() != 0 || outerWrapped.Load() != 1 {
		t.Errorf("after healthz: api=%d outer=%d, want 0 and 1", apiWrapped.Load(), outerWrapped.Load())
	}

	resp, err = gohttp.Post(base+"/launch-container", "application/json", jsonBody(t, api.LaunchRequest{Language: "python"}))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	resp.Body.Close()
	if apiWrapped.Load() != 1 || outerWrapped.Load() != 2 {
		t.Errorf("after launch: api=%d outer=%d, want 1 and 2", apiWrapped.Load(), outerWrapped.Load())
	}
}

func TestServerFunctionalOptions(t *testing.T) {
	langs := api.MustLanguageRegistry(api.DefaultLanguages())
	srv := NewServer(&mockLauncher{}, nil,
		WithAddr(":9999"),
		WithMaxBodySize(1024),
		WithShutdownTimeout(10*time.Second),
		WithTimeouts(5*time.Second, time.Minute),
		WithLanguages(langs),
		WithCORSOrigins([]string{"https://app.example.com"}),
	)

	if srv.config.Addr != ":9999" {
		t.Errorf("addr = %q, want %q", srv.config.Addr, ":9999")
	}
	if srv.config.MaxBodySize != 1024 {
		t.Errorf("max body size = %d, want %d", srv.config.MaxBodySize, 1024)
	}
	if srv.config.ShutdownTimeout != 10*time.Second {
		t.Errorf("shutdown timeout = %v, want %v", srv.config.ShutdownTimeout, 10*time.Second)
	}
	if srv.httpServer.ReadTimeout != 5*time.Second || srv.httpServer.WriteTimeout != time.Minute {
		t.Errorf("timeouts = %v/%v", srv.httpServer.ReadTimeout, srv.httpServer.WriteTimeout)
	}
	if srv.config.Languages != langs {
		t.Error("languages not set")
	}
	if len(srv.config.CORSOrigins) != 1 {
		t.Errorf("cors origins = %v", srv.config.CORSOrigins)
	}
}
