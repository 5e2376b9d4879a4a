package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/runlet-dev/runlet/internal/app"
	"github.com/runlet-dev/runlet/internal/app/metrics"
	"github.com/runlet-dev/runlet/internal/config"
	"github.com/runlet-dev/runlet/internal/middleware"
	"github.com/runlet-dev/runlet/pkg/logger"
)

// NewRouter assembles the outer HTTP surface: the admin API, metrics and
// health probes, and the gateway catch-all that hands everything else to the
// request pipeline.
func NewRouter(application *app.Application, cfg *config.Config, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Tracing(log))
	r.Use(middleware.Throttle(cfg.Server.Throttle, cfg.Server.ThrottleBurst))

	r.Get("/healthz", healthz(time.Now()))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	admin := NewHandler(application)
	adminAuth := middleware.AdminAuth(
		cfg.Admin.Token,
		application.Limiter,
		cfg.Admin.AuthAttempts,
		int(cfg.Admin.AuthWindow/time.Second),
		log,
	)
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.CORS)
		r.Use(adminAuth)
		r.Mount("/", http.StripPrefix("/admin", admin))
	})

	// Everything else is a user-defined route.
	r.NotFound(application.Pipeline.ServeHTTP)
	r.MethodNotAllowed(application.Pipeline.ServeHTTP)

	return r
}
