package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	capturehandler "github.com/tarawell/tara-companion/backend/internal/handler/capture"
	chathandler "github.com/tarawell/tara-companion/backend/internal/handler/chat"
	partnerhandler "github.com/tarawell/tara-companion/backend/internal/handler/partner"
	"github.com/tarawell/tara-companion/backend/internal/middleware"
	"github.com/tarawell/tara-companion/backend/pkg/utils"
)

// Deps are the services the HTTP surface needs.
type Deps struct {
	Partners *partnerhandler.Handler
	Chats    *chathandler.Handler
	Capture  *capturehandler.Handler
	Log      zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		deps.Partners.RegisterRoutes(api)
		deps.Chats.RegisterRoutes(api)
		if deps.Capture != nil {
			deps.Capture.RegisterRoutes(api)
		}
	})

	return r
}
