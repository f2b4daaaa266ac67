package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mintresearch/agent-engine/app"
	"github.com/mintresearch/agent-engine/handlers"
	"github.com/mintresearch/agent-engine/middleware"
	"github.com/mintresearch/agent-engine/utils"
)

const requestTimeout = 60 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "https://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	health := handlers.NewHealthHandler(map[string]handlers.Pinger{
		"memory": deps.Memory,
	}, deps.Logger)
	interaction := handlers.NewInteractionHandler(deps.Interaction, deps.Logger)
	rulesHandler := handlers.NewRulesHandler(deps.Rules, deps.Logger)
	status := handlers.NewStatusHandler(deps.Runtime, deps.Logger)
	memory := handlers.NewMemoryHandler(deps.Memory, deps.Logger)

	// Health check endpoints
	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)

	r.Route("/mcp", func(r chi.Router) {
		r.Post("/infer", interaction.HandleInfer)

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", rulesHandler.HandleListRules)
			r.Post("/check", rulesHandler.HandleCheckPolicy)
		})

		r.Get("/status", status.HandleStatus)
		r.Get("/logs", status.HandleLogs)
		r.Get("/state/{area}", status.HandleState)

		// Memory store, in the wire format the http memory backend speaks,
		// so MEMORY_URL can point at <engine>/mcp
		r.Get("/health", health.HandleHealth)
		r.Route("/memory", func(r chi.Router) {
			r.Get("/", memory.HandleListKeys)
			r.Get("/{key}", memory.HandleGet)
			r.Post("/{key}", memory.HandlePut)
		})
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}
