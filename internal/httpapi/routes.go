package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/card-duel-backend/internal/hub"
	"github.com/DoyleJ11/card-duel-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger, opts ws.Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/stats", Stats(h))
	r.Get("/ws", ws.Handler(h, log.Named("ws"), opts))
	return r
}
