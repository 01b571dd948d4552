package hostapi

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/store"
)

type contextKey string

const requestIDKey contextKey = "request_id"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// RequestIDFromContext extracts the request ID set by the RequestID
// middleware.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// RequestID accepts a caller-supplied X-Request-ID if it matches the
// allowed character set and length, otherwise mints a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || !requestIDPattern.MatchString(id) {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestLogger logs every request with method, path, status, and duration.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// RouterConfig holds the dependencies Router needs to mount middleware and
// handlers.
type RouterConfig struct {
	Logger             *slog.Logger
	Auth               *Authenticator
	Store              *store.Queries
	PerUserRateLimiter *RateLimiter
	CORSAllowedOrigins []string
	Handlers           Handlers
}

// Router builds the host API's chi router: global middleware, health
// endpoints, then the authenticated /v1 surface.
func Router(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestLogger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		Respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(api chi.Router) {
		api.Use(Middleware(cfg.Auth, cfg.Store))
		if cfg.PerUserRateLimiter != nil {
			api.Use(PerUserMiddleware(cfg.PerUserRateLimiter))
		}

		api.Route("/devices", func(r chi.Router) {
			r.Post("/", wrap(cfg.Handlers.RegisterDevice))
			r.Delete("/{deviceID}", wrap(cfg.Handlers.RevokeDevice))
		})

		api.Route("/connectors", func(r chi.Router) {
			r.Post("/google/start", wrap(cfg.Handlers.StartGoogleConnector))
			r.Post("/google/complete", wrap(cfg.Handlers.CompleteGoogleConnector))
			r.Delete("/{connectorID}", wrap(cfg.Handlers.RevokeConnector))
		})

		api.Route("/preferences", func(r chi.Router) {
			r.Get("/", wrap(cfg.Handlers.GetPreferences))
			r.Put("/", wrap(cfg.Handlers.PutPreferences))
		})

		api.Route("/automation-rules", func(r chi.Router) {
			r.Post("/", wrap(cfg.Handlers.CreateAutomationRule))
			r.Get("/", wrap(cfg.Handlers.ListAutomationRules))
			r.Delete("/{ruleID}", wrap(cfg.Handlers.DeleteAutomationRule))
		})

		api.Route("/audit-events", func(r chi.Router) {
			r.Get("/", wrap(cfg.Handlers.ListAuditEvents))
		})

		api.Route("/assistant", func(r chi.Router) {
			r.Post("/query", wrap(cfg.Handlers.AssistantQuery))
			r.Post("/attested-key", wrap(cfg.Handlers.AssistantAttestedKey))
			r.Get("/sessions", wrap(cfg.Handlers.ListAssistantSessions))
			r.Delete("/sessions/{sessionID}", wrap(cfg.Handlers.DeleteAssistantSession))
		})

		api.Route("/privacy", func(r chi.Router) {
			r.Post("/delete-request", wrap(cfg.Handlers.RequestPrivacyDelete))
		})
	})

	return r
}

// wrap guards against an unwired handler reaching a live route during
// incremental rollout.
func wrap(h http.HandlerFunc) http.HandlerFunc {
	if h == nil {
		return func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusNotImplemented, "not_implemented", "endpoint not wired")
		}
	}
	return h
}
