package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/medibook/patient-portal/internal/api/router"
	"github.com/medibook/patient-portal/internal/appointments"
	"github.com/medibook/patient-portal/internal/availability"
	"github.com/medibook/patient-portal/internal/booking"
	appconfig "github.com/medibook/patient-portal/internal/config"
	"github.com/medibook/patient-portal/internal/doctors"
	httpmiddleware "github.com/medibook/patient-portal/internal/http/middleware"
	"github.com/medibook/patient-portal/internal/observability/metrics"
	"github.com/medibook/patient-portal/internal/payments"
	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

// Portal is the assembled HTTP surface plus the resources it owns.
type Portal struct {
	Handler  http.Handler
	Registry *prometheus.Registry

	limiter *httpmiddleware.RateLimiter
}

// Close releases background resources. The Redis client stays with the caller.
func (p *Portal) Close() {
	if p != nil && p.limiter != nil {
		p.limiter.Close()
	}
}

// BuildPortal wires the backend client, caches, services and router.
func BuildPortal(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (*Portal, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if redisClient == nil {
		return nil, errors.New("bootstrap: redis client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	hours := availability.WorkingHours{StartHour: cfg.WorkingHoursStart, EndHour: cfg.WorkingHoursEnd}
	if err := hours.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	portalMetrics := metrics.NewPortalMetrics(registry)

	client := upstream.NewClient(cfg.BackendURL, cfg.UpstreamTimeout, logger).
		WithLatencyObserver(portalMetrics)

	directory := doctors.NewDirectory(client, redisClient, cfg.DoctorCacheTTL, logger).
		WithWorkingHours(hours)

	bookingService := booking.NewService(directory, client, booking.NewSelectionStore(redisClient, cfg.SelectionTTL), logger).
		WithLocation(cfg.Location()).
		WithMetrics(portalMetrics)

	limiter := httpmiddleware.NewRateLimiter(float64(cfg.BookingRatePerMinute)/60, cfg.BookingBurst)
	bookingHandler := booking.NewHandler(bookingService, logger).
		WithSubmitLimiter(httpmiddleware.RateLimit(limiter))

	velocity := payments.NewVelocityChecker(redisClient, payments.VelocityConfig{
		MaxCheckoutsPerPatient: cfg.MaxCheckoutsPerPatient,
		MaxCodeAttempts:        cfg.MaxCodeAttempts,
		Window:                 cfg.VelocityWindow,
	}, logger)

	if cfg.SessionJWTSecret == "" {
		logger.Warn("SESSION_JWT_SECRET not set; patient tokens are decoded without signature checks")
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; operator endpoints will reject every request")
	}

	handler := router.New(&router.Config{
		Logger:              logger,
		SessionParser:       session.NewParser(cfg.SessionJWTSecret),
		DoctorsHandler:      doctors.NewHandler(directory, logger),
		BookingHandler:      bookingHandler,
		AppointmentsHandler: appointments.NewHandler(appointments.NewService(client, logger), logger),
		PaymentsHandler:     payments.NewHandler(payments.NewService(client, velocity, logger), cfg.PublicBaseURL, cfg.CurrencySymbol, logger),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		ReadinessCheck: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	return &Portal{Handler: handler, Registry: registry, limiter: limiter}, nil
}
