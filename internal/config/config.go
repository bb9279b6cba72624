package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Upstream booking backend
	BackendURL      string
	UpstreamTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	RedisDB       int
	// RedisTimeout bounds dial, read and write on every Redis call.
	RedisTimeout  time.Duration

	DoctorCacheTTL time.Duration
	SelectionTTL   time.Duration

	// Default working window applied when a doctor record carries none.
	WorkingHoursStart int
	WorkingHoursEnd   int
	ClinicTimezone    string

	CORSAllowedOrigins []string
	// SessionJWTSecret enables HMAC verification of patient tokens when set.
	SessionJWTSecret string
	// AdminJWTSecret enables the operator endpoints when set.
	AdminJWTSecret string
	CurrencySymbol string

	// Abuse limits
	MaxCheckoutsPerPatient int
	MaxCodeAttempts        int
	VelocityWindow         time.Duration
	BookingRatePerMinute   int
	BookingBurst           int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		BackendURL:         strings.TrimRight(getEnv("BACKEND_URL", ""), "/"),
		UpstreamTimeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", 10*time.Second),
		RedisAddr:          getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisTLS:           getEnvAsBool("REDIS_TLS", false),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		RedisTimeout:       getEnvAsDuration("REDIS_TIMEOUT", 2*time.Second),
		DoctorCacheTTL:     getEnvAsDuration("DOCTOR_CACHE_TTL", time.Minute),
		SelectionTTL:       getEnvAsDuration("SELECTION_TTL", 30*time.Minute),
		WorkingHoursStart:  getEnvAsInt("WORKING_HOURS_START", 10),
		WorkingHoursEnd:    getEnvAsInt("WORKING_HOURS_END", 21),
		ClinicTimezone:     getEnv("CLINIC_TIMEZONE", "UTC"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		SessionJWTSecret:   getEnv("SESSION_JWT_SECRET", ""),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CurrencySymbol:     getEnv("CURRENCY_SYMBOL", "$"),

		MaxCheckoutsPerPatient: getEnvAsInt("VELOCITY_MAX_CHECKOUTS", 5),
		MaxCodeAttempts:        getEnvAsInt("VELOCITY_MAX_CODE_ATTEMPTS", 5),
		VelocityWindow:         getEnvAsDuration("VELOCITY_WINDOW", time.Hour),
		BookingRatePerMinute:   getEnvAsInt("BOOKING_RATE_PER_MINUTE", 6),
		BookingBurst:           getEnvAsInt("BOOKING_BURST", 3),
	}
}

// Validate reports configuration that would make the service unusable.
func (c *Config) Validate() error {
	var errs []error
	if c.BackendURL == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}
	if c.WorkingHoursStart < 0 || c.WorkingHoursEnd > 24 || c.WorkingHoursStart >= c.WorkingHoursEnd {
		errs = append(errs, fmt.Errorf("working hours %d-%d are invalid", c.WorkingHoursStart, c.WorkingHoursEnd))
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		errs = append(errs, fmt.Errorf("CLINIC_TIMEZONE: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Location returns the clinic time zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
