package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/selectd/internal/metrics"
)

// RouterConfig holds the middleware settings of the HTTP router.
type RouterConfig struct {
	Auth AuthConfig
	CORS CORSOptions
}

// NewRouter mounts the server endpoints behind the middleware stack.
func NewRouter(s *Server, cfg RouterConfig, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chimw.RequestID)
	r.Use(CORS(cfg.CORS))
	r.Use(AuthMiddleware(cfg.Auth))
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/search/{view}", s.Search)
	if s.invalidator != nil && s.admins != nil {
		r.Post("/admin/permissions/invalidate", s.InvalidatePermissions)
	}
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	return r
}
