package routes

import (
	"net/http"

	"medops-bknd/internal/config"
	"medops-bknd/internal/handlers"
	mdlwr "medops-bknd/internal/middleware"
	"medops-bknd/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Hospital  *handlers.HospitalHandler
	Analytics *handlers.AnalyticsHandler
	Queue     *handlers.QueueHandler
	Dispatch  *handlers.DispatchHandler
	Transfer  *handlers.TransferHandler
	Staff     *handlers.StaffHandler
	Alert     *handlers.AlertHandler
	Dashboard *handlers.DashboardHandler
	Triage    *handlers.TriageHandler
	Stream    *handlers.StreamHandler
}

func NewRouter(cfg *config.Config, authMW *mdlwr.AuthMiddleware, h Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	operators := mdlwr.RequireRole(models.RoleOperator)
	dispatchers := mdlwr.RequireRole(models.RoleDispatcher, models.RoleOperator)
	clinicians := mdlwr.RequireRole(models.RoleDoctor, models.RoleOperator)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", h.Auth.LoginLocal)
			r.Post("/ldap", h.Auth.LoginLDAP)
			r.Post("/refresh", h.Auth.Refresh)

			r.Group(func(r chi.Router) {
				r.Use(authMW.JWTAuth)
				r.Get("/me", h.Auth.Me)
				r.Post("/logout", h.Auth.Logout)
				r.With(mdlwr.RequireRole(models.RoleAdmin)).Post("/register", h.Auth.Register)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(authMW.JWTAuth)

			r.Get("/dashboard", h.Dashboard.Get)
			r.Get("/stream", h.Stream.Serve)
			r.Post("/triage", h.Triage.Classify)

			r.Route("/hospitals", func(r chi.Router) {
				r.Get("/", h.Hospital.List)
				r.Get("/regions", h.Hospital.Regions)
				r.With(operators).Post("/", h.Hospital.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.Hospital.Get)
					r.With(clinicians).Patch("/capacity", h.Hospital.UpdateCapacity)
					r.Get("/capacity-logs", h.Hospital.CapacityLogs)
				})
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/pressure", h.Analytics.Pressure)
				r.Get("/surge", h.Analytics.Surge)
			})

			r.Route("/queue/events", func(r chi.Router) {
				r.Get("/", h.Queue.Recent)
				r.With(clinicians).Post("/", h.Queue.Record)
			})

			r.Route("/dispatches", func(r chi.Router) {
				r.Get("/", h.Dispatch.List)
				r.Get("/recommend", h.Dispatch.Recommend)
				r.With(dispatchers).Post("/", h.Dispatch.Create)
				r.Get("/{id}", h.Dispatch.Get)
				r.With(dispatchers).Post("/{id}/status", h.Dispatch.Transition)
			})

			r.Route("/transfers", func(r chi.Router) {
				r.Get("/", h.Transfer.List)
				r.Get("/{id}", h.Transfer.Get)
				r.Group(func(r chi.Router) {
					r.Use(clinicians)
					r.Post("/", h.Transfer.Create)
					r.Post("/{id}/accept", h.Transfer.Accept)
					r.Post("/{id}/reject", h.Transfer.Reject)
					r.Post("/{id}/start", h.Transfer.StartTransit)
					r.Post("/{id}/complete", h.Transfer.Complete)
					r.Post("/{id}/cancel", h.Transfer.Cancel)
				})
			})

			r.Route("/staff", func(r chi.Router) {
				r.Get("/", h.Staff.List)
				r.Get("/by-department", h.Staff.ByDepartment)
				r.With(operators).Post("/", h.Staff.Create)
				r.With(operators).Patch("/{id}/allocation", h.Staff.Allocate)
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.Alert.List)
				r.With(operators).Post("/", h.Alert.Create)
				r.With(operators).Post("/{id}/acknowledge", h.Alert.Acknowledge)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.Alert.Notifications)
				r.Post("/{id}/read", h.Alert.MarkRead)
			})
		})
	})

	return r
}
