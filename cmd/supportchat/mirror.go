package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	telemetry "github.com/Strob0t/supportchat/internal/adapter/otel"
	"github.com/Strob0t/supportchat/internal/adapter/ws"
	"github.com/Strob0t/supportchat/internal/middleware"
)

// newMirrorServer serves the widget mirror on /ws and a health probe.
func newMirrorServer(addr, service string, hub *ws.Hub, log *slog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           mirrorRoutes(service, hub, log),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func mirrorRoutes(service string, hub *ws.Hub, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(chimw.Recoverer)
	r.Use(telemetry.HTTPMiddleware(service))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"connections": hub.ConnectionCount(),
		})
	})
	r.With(middleware.NewConnLimiter(1, 5).Handler).Get("/ws", hub.HandleWS)
	return r
}
