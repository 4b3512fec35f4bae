package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rejoinhq/rejoin/internal/database"
	mw "github.com/rejoinhq/rejoin/internal/middleware"
	inats "github.com/rejoinhq/rejoin/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Account handlers
	CreateAccount       http.HandlerFunc
	ListAccounts        http.HandlerFunc
	GetAccount          http.HandlerFunc
	UpdateAccount       http.HandlerFunc
	DeleteAccount       http.HandlerFunc
	OwnershipMiddleware func(http.Handler) http.Handler

	// Conversation handlers
	ListThreads    http.HandlerFunc
	EvaluateThread http.HandlerFunc
	StartOutreach  http.HandlerFunc
	ReopenThread   http.HandlerFunc
	ListMessages   http.HandlerFunc
	ThreadState    http.HandlerFunc

	// Pending dispatch handlers
	ListPendingDispatches http.HandlerFunc
	ApproveDispatch       http.HandlerFunc
	RejectDispatch        http.HandlerFunc

	// Memory handlers
	ListMemories   http.HandlerFunc
	CreateMemory   http.HandlerFunc
	SearchMemories http.HandlerFunc
	DeleteMemory   http.HandlerFunc

	// Skill handlers
	ListSkills          http.HandlerFunc
	ReloadSkills        http.HandlerFunc
	ListCustomizations  http.HandlerFunc
	UpsertCustomization http.HandlerFunc
	DeleteCustomization http.HandlerFunc

	// Governance handlers
	GetQuota      http.HandlerFunc
	ListAuditLogs http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthRateLimiter    func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe: checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public), optionally rate-limited
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthRateLimiter != nil {
				r.Use(cfg.AuthRateLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Skill catalog (read-only, operator-scoped)
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Get("/skills", h.ListSkills)
			r.Post("/skills/reload", h.ReloadSkills)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Route("/accounts", func(r chi.Router) {
				r.Post("/", h.CreateAccount)
				r.Get("/", h.ListAccounts)

				r.Route("/{accountID}", func(r chi.Router) {
					r.Use(h.OwnershipMiddleware)
					r.Get("/", h.GetAccount)
					r.Put("/", h.UpdateAccount)
					r.Delete("/", h.DeleteAccount)

					// Conversation threads
					r.Route("/threads", func(r chi.Router) {
						r.Get("/", h.ListThreads)
						r.Post("/outreach", h.StartOutreach)

						r.Route("/{threadID}", func(r chi.Router) {
							r.Post("/evaluate", h.EvaluateThread)
							r.Post("/reopen", h.ReopenThread)
							r.Get("/messages", h.ListMessages)
							r.Get("/state", h.ThreadState)
						})
					})

					// Pending dispatches (draft approval)
					r.Route("/dispatches", func(r chi.Router) {
						r.Get("/", h.ListPendingDispatches)
						r.Post("/{dispatchID}/approve", h.ApproveDispatch)
						r.Post("/{dispatchID}/reject", h.RejectDispatch)
					})

					// Memory cards
					r.Route("/memories", func(r chi.Router) {
						r.Get("/", h.ListMemories)
						r.Post("/", h.CreateMemory)
						r.Post("/search", h.SearchMemories)
						r.Delete("/{cardID}", h.DeleteMemory)
					})

					// Skill customizations
					r.Route("/skills", func(r chi.Router) {
						r.Get("/customizations", h.ListCustomizations)
						r.Put("/customizations/{skillID}", h.UpsertCustomization)
						r.Delete("/customizations/{skillID}", h.DeleteCustomization)
					})

					// Governance
					r.Get("/quota", h.GetQuota)
					r.Get("/audit", h.ListAuditLogs)
				})
			})
		})
	})

	return r
}
