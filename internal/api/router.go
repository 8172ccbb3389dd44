package api

import (
	"net/http"

	// This blank import is required by swaggo to find the API definitions.
	_ "timeline-ai/backend/docs"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter creates and configures a new chi router with all the application's routes.
func NewRouter(timelineHandler *TimelineHandler) *chi.Mux {
	r := chi.NewRouter()

	// --- Global Middleware ---
	r.Use(middleware.RequestID) // Injects a unique request ID into the context.
	r.Use(middleware.RealIP)    // Sets the remote address to the real IP from proxy headers.
	r.Use(middleware.Logger)    // Logs the start and end of each request with useful info.
	r.Use(middleware.Recoverer) // Recovers from panics and returns a 500 error.

	// Serves the auto-generated Swagger UI for API documentation.
	r.Get("/api/swagger/*", httpSwagger.WrapHandler)

	// Health check for liveness and readiness probes.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	})

	// Streaming routes must NOT have a timeout middleware: a generation holds
	// the connection open for as long as the model keeps writing.
	r.Post("/timeline", timelineHandler.HandleTimeline)
	r.Post("/api/timeline", timelineHandler.HandleTimeline)

	return r
}
