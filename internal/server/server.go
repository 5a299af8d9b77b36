package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dugoutdata/dugout/internal/config"
	apperrors "github.com/dugoutdata/dugout/internal/errors"
	"github.com/dugoutdata/dugout/internal/observability"
	"github.com/dugoutdata/dugout/internal/server/handlers"
	servermw "github.com/dugoutdata/dugout/internal/server/middleware"
)

// Options configures a Server.
type Options struct {
	Config config.ServerConfig
	// Stats serves the /v1 routes; nil leaves them unmounted.
	Stats  handlers.StatsService
	Health *handlers.HealthManager
	// Clock picks default seasons; nil means time.Now.
	Clock func() time.Time
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	s := &Server{
		router: r,
		cfg:    opts.Config,
	}
	s.server = &http.Server{
		Addr:         s.Addr(),
		Handler:      r,
		ReadTimeout:  orDefault(opts.Config.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(opts.Config.WriteTimeout, 60*time.Second),
		IdleTimeout:  orDefault(opts.Config.IdleTimeout, 120*time.Second),
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes(opts)

	return s
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", s.server.Addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
