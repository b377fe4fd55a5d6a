// Command sandbox-server runs inside an isolated sandbox pod and executes
// visualization snippets for the remote runtime.
//
// It reads the same configuration file as the gateway and uses the
// languages, sandbox.timeout, sandbox.max_timeout, sandbox.max_concurrent,
// sandbox.queue_timeout, sandbox.max_output_bytes, sandbox.work_dir and
// server.port settings. SANDBOX_PORT overrides the port.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/vizlaunch/pkg/config"
	"github.com/rhuss/vizlaunch/pkg/debug"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("sandbox server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	langs, err := cfg.LanguageRegistry()
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr()
	if port := os.Getenv("SANDBOX_PORT"); port != "" {
		addr = ":" + port
	}

	srv := newSandboxServer(
		langs,
		&sandbox.HostRunner{
			MaxOutputBytes:   cfg.Sandbox.MaxOutputBytes,
			Workspace:        &sandbox.Workspace{Dir: cfg.Sandbox.WorkDir},
			StageAtMountPath: true,
		},
		sandbox.NewLimiter(cfg.Sandbox.MaxConcurrent, cfg.Sandbox.QueueTimeout),
		cfg.Sandbox.Timeout,
		cfg.Sandbox.MaxTimeout,
	)

	slog.Info("sandbox server starting",
		"addr", addr,
		"languages", srv.availableLanguages(),
		"max_concurrent", cfg.Sandbox.MaxConcurrent,
	)

	httpSrv := &http.Server{
		Addr:        addr,
		Handler:     srv.routes(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// Long enough for the slowest permitted execution.
		WriteTimeout: cfg.Sandbox.MaxTimeout + 30*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// routes returns the sandbox API.
func (s *sandboxServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}
