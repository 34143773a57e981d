package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/telehealth-scheduling/internal/auth"
	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

// ScheduleService is the subset of *scheduling.Service the HTTP layer uses.
type ScheduleService interface {
	Execute(ctx context.Context, id scheduling.Identity, req scheduling.Request) (any, error)
	BookAppointment(ctx context.Context, id scheduling.Identity, req scheduling.BookRequest) (*scheduling.Appointment, error)
	BlockSlot(ctx context.Context, id scheduling.Identity, req scheduling.BlockRequest) (*scheduling.Appointment, error)
	CancelAppointment(ctx context.Context, id scheduling.Identity, req scheduling.CancelRequest) (*scheduling.CancelResult, error)
	CreateOrUpdateAvailability(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityUpsert) (*scheduling.Availability, error)
	UpdateAvailability(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityUpdate) (*scheduling.AvailabilityChange, error)
	DeleteAvailability(ctx context.Context, id scheduling.Identity, req scheduling.AvailabilityDelete) (*scheduling.AvailabilityChange, error)
	ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]scheduling.Availability, error)
	GetAppointment(ctx context.Context, id scheduling.Identity, appointmentID uuid.UUID) (*scheduling.Appointment, error)
	ListAppointments(ctx context.Context, id scheduling.Identity, from, to scheduling.Date) ([]scheduling.Appointment, error)
	ListNotifications(ctx context.Context, id scheduling.Identity, limit int) ([]scheduling.Notification, error)
}

var _ ScheduleService = (*scheduling.Service)(nil)

type RouterConfig struct {
	Service  ScheduleService
	Verifier *auth.Verifier
	Limiter  *RateLimiter
	Postgres Pinger
	Redis    Pinger
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier))

		r.Get("/doctors/{doctorID}/availability", listAvailabilityHandler(svc))
		r.Get("/appointments", listAppointmentsHandler(svc))
		r.Get("/appointments/{id}", getAppointmentHandler(svc))
		r.Get("/notifications", listNotificationsHandler(svc))

		r.Group(func(r chi.Router) {
			if cfg.Limiter != nil {
				r.Use(cfg.Limiter.Middleware)
			}

			r.Put("/doctors/{doctorID}/availability", upsertAvailabilityHandler(svc))
			r.Post("/doctors/{doctorID}/blocks", blockSlotHandler(svc))
			r.Patch("/availability/{id}", updateAvailabilityHandler(svc))
			r.Delete("/availability/{id}", deleteAvailabilityHandler(svc))
			r.Post("/appointments", bookAppointmentHandler(svc))
			r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(svc))
			r.Post("/schedule/mutations", mutationHandler(svc))
		})
	})

	return r
}
