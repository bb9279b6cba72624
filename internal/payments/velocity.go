package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medibook/patient-portal/pkg/logging"
)

var paymentsTracer = otel.Tracer("portal.internal.payments")

// Velocity check types.
const (
	CheckCheckout = "checkout"
	CheckCode     = "code"
)

// VelocityChecker caps how often a patient may open checkouts or try premium codes.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
}

// VelocityConfig contains velocity check configuration.
type VelocityConfig struct {
	// Max checkout sessions (premium or appointment) per patient per window
	MaxCheckoutsPerPatient int
	// Max premium code attempts per patient per window
	MaxCodeAttempts int
	Window          time.Duration
}

// DefaultVelocityConfig returns default velocity limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxCheckoutsPerPatient: 5,
		MaxCodeAttempts:        5,
		Window:                 time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CheckType    string
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// NewVelocityChecker creates a new velocity checker. A nil redis client allows everything.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.Window <= 0 {
		config.Window = DefaultVelocityConfig().Window
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
	}
}

// CheckCheckout counts a checkout attempt for patientID.
func (v *VelocityChecker) CheckCheckout(ctx context.Context, patientID string) (*VelocityResult, error) {
	if v == nil {
		return &VelocityResult{Allowed: true, CheckType: CheckCheckout}, nil
	}
	return v.check(ctx, CheckCheckout, patientID, v.config.MaxCheckoutsPerPatient)
}

// CheckCodeAttempt counts a premium code attempt for patientID.
func (v *VelocityChecker) CheckCodeAttempt(ctx context.Context, patientID string) (*VelocityResult, error) {
	if v == nil {
		return &VelocityResult{Allowed: true, CheckType: CheckCode}, nil
	}
	return v.check(ctx, CheckCode, patientID, v.config.MaxCodeAttempts)
}

func (v *VelocityChecker) check(ctx context.Context, checkType, patientID string, max int) (*VelocityResult, error) {
	ctx, span := paymentsTracer.Start(ctx, "velocity.check_"+checkType)
	defer span.End()
	span.SetAttributes(attribute.String("velocity.check_type", checkType))

	if v.redis == nil || max <= 0 {
		return &VelocityResult{Allowed: true, CheckType: checkType}, nil
	}

	key := v.key(checkType, patientID)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err, "key", key)
		// Fail open - allow the attempt if Redis is down
		return &VelocityResult{Allowed: true, CheckType: checkType, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= max,
		CheckType:    checkType,
		CurrentCount: count,
		MaxAllowed:   max,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d %s attempts in %s", max, checkType, v.config.Window)
		v.logger.Warn("payment velocity exceeded",
			"check_type", checkType,
			"patient_id", patientID,
			"count", count,
			"max", max,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// incrementAndGet increments a counter and returns the new value with expiry time.
func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// Reset clears a patient's counter for checkType.
func (v *VelocityChecker) Reset(ctx context.Context, checkType, patientID string) error {
	if v == nil || v.redis == nil {
		return nil
	}
	return v.redis.Del(ctx, v.key(checkType, patientID)).Err()
}

func (v *VelocityChecker) key(checkType, patientID string) string {
	return fmt.Sprintf("velocity:%s:%s", checkType, patientID)
}
