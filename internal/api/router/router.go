package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/keepitcut/reschedule-service/internal/http/middleware"
	"github.com/keepitcut/reschedule-service/internal/reschedule"
	"github.com/keepitcut/reschedule-service/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger            *logging.Logger
	RescheduleHandler *reschedule.Handler
	MetricsHandler    http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.RescheduleHandler.Health)
	r.Post("/reschedule", cfg.RescheduleHandler.Reschedule)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	return r
}
