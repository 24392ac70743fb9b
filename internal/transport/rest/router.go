package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/teamtrackhq/workload-management/internal/allocation"
	"github.com/teamtrackhq/workload-management/internal/analytics"
	"github.com/teamtrackhq/workload-management/internal/capacity"
	"github.com/teamtrackhq/workload-management/internal/transport/middleware"
	"github.com/teamtrackhq/workload-management/internal/transport/swagger"
)

// RegisterAllRoutes wires the dashboard API. Everything under /api/v1
// except health requires a session.
func RegisterAllRoutes(router *chi.Mux, backend BackendPinger, capacityHandler *capacity.Handler, allocationHandler *allocation.Handler, analyticsHandler *analytics.Handler, allowedOrigins string, logger *slog.Logger) {
	healthHandler := NewHealthHandler(backend)

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(middleware.SessionContext(logger))

			if capacityHandler != nil {
				pr.Route("/users/{id}/capacity", func(cr chi.Router) {
					cr.Get("/", capacityHandler.GetUserCapacity)
					cr.Post("/validate", capacityHandler.ValidateWorkload)
				})
			}

			if analyticsHandler != nil {
				pr.Get("/analytics/workload", analyticsHandler.GetWorkloadAnalytics)
			}

			if allocationHandler != nil {
				pr.Route("/projects/{id}/members", func(mr chi.Router) {
					mr.Get("/", allocationHandler.GetMembers)
					mr.Post("/", allocationHandler.AddMember)
					mr.Post("/batch", allocationHandler.BatchAddMembers)
					mr.Put("/{userId}/workload", allocationHandler.UpdateWorkload)
					mr.Delete("/{userId}", allocationHandler.RemoveMember)
					mr.Get("/{userId}/workload-history", allocationHandler.GetWorkloadHistory)
				})
			}
		})
	})
}
