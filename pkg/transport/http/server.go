package http

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rhuss/vizlaunch/pkg/api"
	"github.com/rhuss/vizlaunch/pkg/transport"
)

// Server wraps an http.Server with the transport adapter and manages
// the full lifecycle including startup and graceful shutdown.
type Server struct {
	httpServer *http.Server
	adapter    *Adapter
	config     ServerConfig
	logger     *slog.Logger
}

// ServerConfig holds configuration for the transport server.
type ServerConfig struct {
	Addr            string
	MaxBodySize     int64
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Languages       *api.LanguageRegistry
	Canceller       transport.Canceller
	CORSOrigins     []string

	// Routes are mounted next to the adapter (health, metrics, MCP).
	Routes map[string]http.Handler
	// Wrap is applied around the adapter routes only, e.g. auth.
	Wrap []func(http.Handler) http.Handler
	// Outer is applied around the whole mux, e.g. metrics.
	Outer []func(http.Handler) http.Handler
}

// DefaultServerConfig returns a ServerConfig with sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		MaxBodySize:     2 << 20, // 2 MB
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		Logger:          slog.Default(),
	}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) { s.config.Addr = addr }
}

// WithMaxBodySize sets the maximum request body size.
func WithMaxBodySize(n int64) ServerOption {
	return func(s *Server) { s.config.MaxBodySize = n }
}

// WithTimeouts sets the read and write timeouts. The write timeout must
// cover the longest execution.
func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		s.config.ReadTimeout = read
		s.config.WriteTimeout = write
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.config.ShutdownTimeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.config.Logger = l; s.logger = l }
}

// WithLanguages enables GET /v1/languages.
func WithLanguages(r *api.LanguageRegistry) ServerOption {
	return func(s *Server) { s.config.Languages = r }
}

// WithCanceller lets DELETE cancel running executions.
func WithCanceller(c transport.Canceller) ServerOption {
	return func(s *Server) { s.config.Canceller = c }
}

// WithCORSOrigins enables CORS for the given origins.
func WithCORSOrigins(origins []string) ServerOption {
	return func(s *Server) { s.config.CORSOrigins = origins }
}

// WithRoute mounts an extra handler on the server mux.
func WithRoute(pattern string, h http.Handler) ServerOption {
	return func(s *Server) {
		if s.config.Routes == nil {
			s.config.Routes = make(map[string]http.Handler)
		}
		s.config.Routes[pattern] = h
	}
}

// WithAPIMiddleware wraps the API routes. The first one is outermost.
func WithAPIMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.Wrap = append(s.config.Wrap, mw) }
}

// WithOuterMiddleware wraps every route. The first one is outermost.
func WithOuterMiddleware(mw func(http.Handler) http.Handler) ServerOption {
	return func(s *Server) { s.config.Outer = append(s.config.Outer, mw) }
}

// NewServer creates a server for the launcher. The store is optional.
// Recovery, request ID and logging middleware are applied automatically.
func NewServer(launcher transport.Launcher, store transport.ExecutionStore, opts ...ServerOption) *Server {
	s := &Server{
		config: DefaultServerConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	defaultMW := []transport.Middleware{
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(s.logger),
	}
	s.adapter = NewAdapter(launcher, store, Config{
		MaxBodySize: s.config.MaxBodySize,
		Languages:   s.config.Languages,
		Canceller:   s.config.Canceller,
	}, defaultMW...)

	s.httpServer = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s
}

// Handler assembles the full handler tree.
func (s *Server) Handler() http.Handler {
	apiHandler := wrap(s.adapter.Handler(), s.config.Wrap)

	mux := http.NewServeMux()
	mux.Handle("/", apiHandler)
	for pattern, h := range s.config.Routes {
		mux.Handle(pattern, h)
	}

	var h http.Handler = mux
	h = CORS(DefaultCORSConfig(s.config.CORSOrigins), h)
	return wrap(h, s.config.Outer)
}

func wrap(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// ListenAndServe starts the server and blocks until SIGINT or SIGTERM,
// then shuts down gracefully.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. It also returns once Shutdown is called directly.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", ln.Addr().String()))
		err := s.httpServer.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down gracefully", slog.Duration("timeout", s.config.ShutdownTimeout))
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// Shutdown gracefully shuts down the server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
