package server

import (
	"github.com/go-chi/chi/v5"

	"github.com/dugoutdata/dugout/internal/server/handlers"
)

func (s *Server) registerRoutes(opts Options) {
	health := opts.Health
	if health == nil {
		health = handlers.GetHealthManager()
	}
	if health != nil {
		s.router.Get("/health", health.HealthHandler)
		s.router.Get("/health/live", health.LivenessHandler)
		s.router.Get("/health/ready", health.ReadinessHandler)
		s.router.Get("/health/startup", health.StartupHandler)
	} else {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if opts.Stats != nil {
		statsHandler := handlers.NewStatsHandler(opts.Stats, opts.Clock)
		s.router.Route("/v1", func(r chi.Router) {
			statsHandler.Routes(r)
		})
	}
}
