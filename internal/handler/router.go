/*
Package handler provides the HTTP handlers and routing setup for the messenger service.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to the WebSocket endpoints.
*/
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"messenger/internal/app/registry"
	"messenger/internal/pkg/errs"
	"messenger/internal/pkg/limiter"
	"messenger/internal/pkg/logx"
	"messenger/internal/pkg/resp"
)

const (
	// ConnectRate is the sustained number of WebSocket handshakes allowed per IP and second.
	ConnectRate  = 0.5
	ConnectBurst = 10

	readyTimeout = 2 * time.Second
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// ctx bounds the background sweeper of the rate limiter.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	connectLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(ConnectRate), ConnectBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger(deps.InstanceID))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "messenger",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/ready", HandleReady(deps.Checks))

	r.Group(func(ws chi.Router) {
		ws.Use(connectLimiter.Middleware)

		ws.Get("/ws/chat", HandleWebSocket(deps.Gateway, wsUpgrader, registry.PoolChat))
		ws.Get("/ws/presence", HandleWebSocket(deps.Gateway, wsUpgrader, registry.PoolPresence))
	})

	return r
}

// HandleReady reports whether every backing service answers.
func HandleReady(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logx.Warn("Readiness check failed", "check", name, "error", err.Error())
				resp.RespondError(w, r, errs.Wrap(errs.ErrUpstreamUnavailable, err))
				return
			}
		}

		resp.RespondSuccess(w, r, map[string]string{"status": "ready"})
	}
}
