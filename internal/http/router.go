package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RouterDeps collects handler dependencies.
type RouterDeps struct {
	API       *API
	WebSocket http.HandlerFunc
	Metrics   http.Handler
	JWTSecret string
	Logger    *zap.Logger
}

// NewRouter wires the health check, metrics, the OCPP endpoint and the
// authenticated API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	r.Get("/ocpp/{chargerID}", deps.WebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(RequestLogger(deps.Logger))
		r.Use(AuthMiddleware(deps.JWTSecret))

		r.Get("/chargers", deps.API.ListChargers)
		r.Post("/chargers", deps.API.AddCharger)
		r.Post("/chargers/{chargerID}/start", deps.API.StartCharging)
		r.Post("/chargers/{chargerID}/stop", deps.API.StopCharging)
		r.Get("/transactions", deps.API.ListTransactions)
	})

	return r
}
