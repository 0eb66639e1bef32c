package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"finance-a2a-backend/internal/config"
	"finance-a2a-backend/internal/handlers"
	"finance-a2a-backend/internal/metrics"
	"finance-a2a-backend/pkg/logger"
)

// RouterDependencies holds all the dependencies required by the router setup,
// primarily handlers and configuration.
type RouterDependencies struct {
	ChatHandler     *handlers.ChatHandlers
	UserHandler     *handlers.UserHandlers
	CallbackHandler *handlers.CallbackHandlers
	AdminHandler    *handlers.AdminHandlers
	Config          *config.Config
}

// NewRouter creates and configures the main Chi router for the application.
func NewRouter(deps RouterDependencies) *chi.Mux {
	log := logger.Get().With("component", "router")
	r := chi.NewRouter()

	// --- Base Middleware Stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	// Turns can wait on a remote agent dispatch.
	r.Use(middleware.Timeout(deps.Config.Agents.DispatchTimeout + 30*time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Chat.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	// --- Public Routes ---
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	limiter := NewRateLimiter(deps.Config.Chat.RateLimitRPS, deps.Config.Chat.RateLimitBurst)

	// --- Authenticated Routes (JWT Required) ---
	r.Group(func(r chi.Router) {
		r.Use(JwtAuthMiddleware(deps.Config.Auth.JWTSecret))

		if deps.ChatHandler != nil {
			r.With(limiter.Middleware).Post("/v1/chats", deps.ChatHandler.HandleChat)
			r.Route("/v1/sessions", func(r chi.Router) {
				r.Get("/", deps.ChatHandler.HandleListSessions)
				r.Get("/{sessionID}/messages", deps.ChatHandler.HandleListMessages)
				r.Post("/{sessionID}/close", deps.ChatHandler.HandleCloseSession)
			})
		} else {
			log.Warn("ChatHandler dependency is nil, skipping /v1/chats and /v1/sessions routes")
		}

		if deps.UserHandler != nil {
			r.Route("/v1/users/me", func(r chi.Router) {
				r.Get("/", deps.UserHandler.HandleGetProfile)
				r.Patch("/", deps.UserHandler.HandleUpdateProfile)
				r.Get("/stats", deps.UserHandler.HandleGetStats)
			})
		} else {
			log.Warn("UserHandler dependency is nil, skipping /v1/users routes")
		}
	})

	// --- Agent callbacks (shared agent key) ---
	if deps.CallbackHandler != nil {
		r.Route("/v1/agent-callbacks/sessions/{sessionID}", func(r chi.Router) {
			r.Use(RequireKey(AgentKeyHeader, deps.Config.Auth.AgentKeyHash))
			r.Post("/portfolio", deps.CallbackHandler.HandlePortfolio)
			r.Post("/recommendations", deps.CallbackHandler.HandleRecommendation)
		})
	} else {
		log.Warn("CallbackHandler dependency is nil, skipping /v1/agent-callbacks routes")
	}

	// --- Admin (shared admin key) ---
	if deps.AdminHandler != nil {
		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(RequireKey(AdminKeyHeader, deps.Config.Auth.AdminKeyHash))
			r.Get("/whitelist", deps.AdminHandler.HandleListWhitelist)
			r.Put("/whitelist/{email}", deps.AdminHandler.HandleUpsertWhitelist)
			r.Delete("/whitelist/{email}", deps.AdminHandler.HandleDeleteWhitelist)
			r.Get("/agents", deps.AdminHandler.HandleListAgents)
			r.Post("/agents/refresh", deps.AdminHandler.HandleRefreshAgents)
			r.Post("/agents/{name}/test", deps.AdminHandler.HandleTestAgent)
		})
	} else {
		log.Warn("AdminHandler dependency is nil, skipping /v1/admin routes")
	}

	return r
}
