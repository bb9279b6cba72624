package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medibook/patient-portal/internal/appointments"
	"github.com/medibook/patient-portal/internal/booking"
	"github.com/medibook/patient-portal/internal/doctors"
	httpmiddleware "github.com/medibook/patient-portal/internal/http/middleware"
	"github.com/medibook/patient-portal/internal/payments"
	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	SessionParser       *session.Parser
	DoctorsHandler      *doctors.Handler
	BookingHandler      *booking.Handler
	AppointmentsHandler *appointments.Handler
	PaymentsHandler     *payments.Handler
	AdminAuthSecret     string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// ReadinessCheck reports whether backing services are reachable (optional).
	ReadinessCheck func(ctx context.Context) error
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", health)
	r.Get("/ready", readiness(cfg.ReadinessCheck))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Patient-facing routes. Anonymous requests pass; routes that need a patient
	// apply session.Require themselves.
	r.Group(func(r chi.Router) {
		parser := cfg.SessionParser
		if parser == nil {
			parser = session.NewParser("")
		}
		r.Use(session.Middleware(parser))

		if cfg.DoctorsHandler != nil {
			doctorRoutes := cfg.DoctorsHandler.Routes()
			if cfg.BookingHandler != nil {
				cfg.BookingHandler.RegisterRoutes(doctorRoutes)
			}
			r.Mount("/doctors", doctorRoutes)
		}

		r.Route("/appointments", func(r chi.Router) {
			if cfg.AppointmentsHandler != nil {
				cfg.AppointmentsHandler.RegisterRoutes(r)
			}
			if cfg.PaymentsHandler != nil {
				cfg.PaymentsHandler.RegisterAppointmentRoutes(r)
			}
		})

		if cfg.PaymentsHandler != nil {
			r.Route("/premium", cfg.PaymentsHandler.RegisterPremiumRoutes)
			r.Get("/verify", cfg.PaymentsHandler.VerifyAppointment)
		}
	})

	// Operator endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(httpmiddleware.OperatorJWT(cfg.AdminAuthSecret))
		if cfg.DoctorsHandler != nil {
			r.Post("/doctors/cache/invalidate", cfg.DoctorsHandler.InvalidateCache)
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readiness(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
