package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"chatrelay/internal/config"
	"chatrelay/internal/domain"
	"chatrelay/internal/presence"
	"chatrelay/internal/rooms"
	"chatrelay/internal/seen"
	"chatrelay/internal/service"
	"chatrelay/internal/ws"

	_ "chatrelay/docs"
	httpSwagger "github.com/swaggo/http-swagger"
)

// HealthReporter exposes the state of background read-state persistence.
type HealthReporter interface {
	Health() seen.Health
}

// Deps are the components the HTTP surface routes to.
type Deps struct {
	Auth     ws.Authenticator
	Realtime *service.RealtimeService
	Users    *service.UserService
	Registry *presence.Registry
	Rooms    *rooms.Manager
	Health   HealthReporter
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewRouter constructs the main HTTP router and wires routes and middleware.
func NewRouter(cfg *config.Config, d Deps, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Internal-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": cfg.AppName, "websocket": "/ws"})
	})
	r.Get("/health", handleHealth(d.Health, d.Registry, d.Rooms))

	// Swagger documentation
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/doc.json"),
	))

	// WebSocket endpoint; long-lived, so it stays outside the timeout group.
	r.Get("/ws", ws.MakeHandler(d.Realtime, d.Auth, ws.Options{
		AllowedOrigins: cfg.CORSOrigins,
		SendBuffer:     cfg.SendBuffer,
		PingInterval:   cfg.PingInterval,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
	}, log))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		// API routes
		r.Route("/api", func(r chi.Router) {
			r.Use(AuthMiddleware(d.Auth, log))

			r.Get("/me", handleMe(d.Users))
			r.Route("/presence", func(r chi.Router) {
				r.Get("/online", handleListOnlineUsers(d.Users))
				r.Get("/{userID}", handleGetPresence(d.Users))
			})
		})

		// Notifications from the REST services that own messages,
		// conversations and friendships.
		r.Route("/internal/events", func(r chi.Router) {
			r.Use(InternalTokenMiddleware(cfg.InternalToken))

			r.Post("/messages", handleNewMessage(d.Realtime))
			r.Post("/messages/deleted", handleMessageDeleted(d.Realtime))
			r.Post("/conversations", handleConversationCreated(d.Realtime))
			r.Post("/friends", handleFriendEvent(d.Realtime))
		})
	})

	return r
}

func handleHealth(health HealthReporter, registry *presence.Registry, rm *rooms.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := health.Health()
		status, code := "healthy", http.StatusOK
		if !h.Healthy {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"status":      status,
			"connections": registry.Len(),
			"onlineUsers": len(registry.OnlineUsers()),
			"rooms":       rm.RoomCount(),
			"persistence": h,
		})
	}
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err)
	}
	if err := validate.StructCtx(r.Context(), dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
