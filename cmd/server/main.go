// Command server runs the vizlaunch gateway.
//
// Configuration is read from a YAML file (see -config) with VIZLAUNCH_*
// environment overrides. A .env file in the working directory is loaded
// first when present.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/rhuss/vizlaunch/pkg/auth"
	"github.com/rhuss/vizlaunch/pkg/config"
	"github.com/rhuss/vizlaunch/pkg/debug"
	"github.com/rhuss/vizlaunch/pkg/launcher"
	"github.com/rhuss/vizlaunch/pkg/mcpserver"
	"github.com/rhuss/vizlaunch/pkg/observability"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
	"github.com/rhuss/vizlaunch/pkg/storage/memory"
	"github.com/rhuss/vizlaunch/pkg/storage/postgres"
	"github.com/rhuss/vizlaunch/pkg/transport"
	transporthttp "github.com/rhuss/vizlaunch/pkg/transport/http"
)

// version is set at build time.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
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

	ctx := context.Background()

	langs, err := cfg.LanguageRegistry()
	if err != nil {
		return fmt.Errorf("languages: %w", err)
	}

	store, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	runner, err := newRunner(ctx, cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("creating %s runner: %w", cfg.Sandbox.Runtime, err)
	}

	limiter := sandbox.NewLimiter(cfg.Sandbox.MaxConcurrent, cfg.Sandbox.QueueTimeout)

	opts := []launcher.Option{
		launcher.WithLimiter(limiter),
		launcher.WithConfig(launcher.Config{
			DefaultTimeout: cfg.Sandbox.Timeout,
			Validation:     cfg.ValidationConfig(),
		}),
	}
	if store != nil {
		opts = append(opts, launcher.WithStore(store))
	}
	l, err := launcher.New(runner, langs, opts...)
	if err != nil {
		return fmt.Errorf("creating launcher: %w", err)
	}

	publicPaths := []string{"/healthz", "/readyz"}
	if cfg.Observability.Metrics.Enabled {
		publicPaths = append(publicPaths, cfg.Observability.Metrics.Path)
	}
	authMW := newAuthMiddleware(cfg.Auth, publicPaths...)

	// Callers restricted to some languages are checked before the launch.
	guarded := transport.Chain(auth.LanguagePolicy(langs))(l)

	serverOpts := []transporthttp.ServerOption{
		transporthttp.WithAddr(cfg.Server.Addr()),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithLanguages(langs),
		transporthttp.WithCanceller(l),
		transporthttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		transporthttp.WithAPIMiddleware(authMW),
		transporthttp.WithRoute("GET /healthz", http.HandlerFunc(healthHandler)),
		transporthttp.WithRoute("GET /readyz", readyHandler(store, runner)),
	}
	if cfg.Observability.Metrics.Enabled {
		serverOpts = append(serverOpts,
			transporthttp.WithOuterMiddleware(observability.MetricsMiddleware),
			transporthttp.WithRoute("GET "+cfg.Observability.Metrics.Path, observability.Handler()),
		)
	}
	if cfg.MCP.Enabled {
		mcpHandler := authMW(auth.RequireUnrestricted(mcpserver.Handler(mcpserver.NewServer(guarded, version))))
		serverOpts = append(serverOpts, transporthttp.WithRoute(cfg.MCP.Path, mcpHandler))
	}

	srv := transporthttp.NewServer(guarded, store, serverOpts...)

	slog.Info("vizlaunch starting",
		"version", version,
		"addr", cfg.Server.Addr(),
		"runtime", runner.Name(),
		"languages", langs.Names(),
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"max_concurrent", cfg.Sandbox.MaxConcurrent,
		"mcp", cfg.MCP.Enabled,
	)
	return srv.ListenAndServe()
}

// newStore opens the configured execution store. It returns nil for "none".
func newStore(ctx context.Context, cfg config.StorageConfig) (transport.ExecutionStore, error) {
	switch cfg.Type {
	case "postgres":
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err := postgres.New(connectCtx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("creating postgres store: %w", err)
		}
		slog.Info("storage enabled", "type", "postgres", "max_conns", cfg.Postgres.MaxConns)
		return s, nil
	case "memory":
		slog.Info("storage enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	default:
		slog.Info("storage disabled")
		return nil, nil
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// readyHandler reports ready when the store and the container runtime
// answer their health checks.
func readyHandler(store transport.ExecutionStore, runner sandbox.Runner) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if store != nil {
			if err := store.HealthCheck(ctx); err != nil {
				slog.Warn("readiness: store unhealthy", "error", err)
				http.Error(w, "store unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if hc, ok := runner.(sandbox.HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				slog.Warn("readiness: runtime unhealthy", "runtime", runner.Name(), "error", err)
				http.Error(w, "container runtime unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
}
