// Package server exposes the settings hierarchy over HTTP.
//
// Every route is served both at the root and under /api:
//
//	GET    /settings                 hierarchy with merged view
//	PUT    /settings/{level}         replace user, project or local
//	DELETE /settings/{level}         remove user, project or local
//	GET    /settings/watch/paths     the watch path set
//	GET    /settings/watch/events    change events as server-sent events
//	GET    /settings/value?key=path  one merged value and its origin
//	GET    /health                   liveness
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dshills/settingsd/internal/config"
	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/notify"
	"github.com/dshills/settingsd/internal/config/watcher"
	"github.com/dshills/settingsd/internal/logging"
)

// Settings is the settings store the server reads and writes.
type Settings interface {
	Paths() config.Paths
	Hierarchy(ctx context.Context) (*config.Hierarchy, error)
	Write(ctx context.Context, loc layer.Location, doc layer.Document) error
	Delete(ctx context.Context, loc layer.Location) error
}

// Watcher is the change notifier the server keeps in sync with writes.
type Watcher interface {
	UpdatePaths(paths []string) error
	Subscribe(observer watcher.Observer) *notify.Subscription
}

// Server serves the settings API.
type Server struct {
	settings Settings
	watcher  Watcher
	logger   *logging.Logger

	keepAlive    time.Duration
	maxBodyBytes int64
	handler      http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logging.OrNull(l).WithComponent("server")
	}
}

// WithKeepAlive sets the interval between event stream pings.
func WithKeepAlive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

// WithMaxBodyBytes limits the size of PUT bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// New creates a Server.
func New(settings Settings, w Watcher, opts ...Option) *Server {
	s := &Server{
		settings:     settings,
		watcher:      w,
		logger:       logging.Null,
		keepAlive:    15 * time.Second,
		maxBodyBytes: 1 << 20,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /settings", s.handleGetSettings)
	api.HandleFunc("PUT /settings/{level}", s.handlePutSettings)
	api.HandleFunc("DELETE /settings/{level}", s.handleDeleteSettings)
	api.HandleFunc("GET /settings/watch/paths", s.handleWatchPaths)
	api.HandleFunc("GET /settings/watch/events", s.handleWatchEvents)
	api.HandleFunc("GET /settings/value", s.handleGetValue)
	api.HandleFunc("GET /health", s.handleHealth)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("/", api)

	return requestID(logRequests(s.logger, cors(root)))
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully. Open event streams are closed on shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("listening on %s", ln.Addr())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
