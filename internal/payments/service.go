// Package payments starts hosted checkouts for premium plans and appointment fees and
// handles the callbacks the payment provider redirects back to.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

var (
	ErrRateLimited   = errors.New("payments: too many attempts")
	ErrMissingParams = errors.New("payments: missing callback parameters")
	ErrMissingCode   = errors.New("payments: premium code required")
)

// Backend is the part of the booking backend that handles payments.
type Backend interface {
	CreatePremiumCheckout(ctx context.Context, token string, req upstream.PremiumCheckoutRequest) (string, error)
	ConfirmPremiumPayment(ctx context.Context, token, sessionID string) (string, error)
	RedeemPremiumCode(ctx context.Context, token, code string) (string, error)
	PremiumStatus(ctx context.Context, token string) (*upstream.PremiumStatus, error)
	StartStripePayment(ctx context.Context, token, appointmentID string) (string, error)
	VerifyStripePayment(ctx context.Context, token, appointmentID, success string) (string, error)
}

// Checkout is a started hosted checkout.
type Checkout struct {
	URL  string `json:"url"`
	Plan *Plan  `json:"plan,omitempty"`
}

type Service struct {
	backend  Backend
	velocity *VelocityChecker
	logger   *logging.Logger
}

// NewService creates the payments service. velocity may be nil to disable limits.
func NewService(backend Backend, velocity *VelocityChecker, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{backend: backend, velocity: velocity, logger: logger}
}

// StartPremiumCheckout opens a checkout for planID and returns where to send the patient.
func (s *Service) StartPremiumCheckout(ctx context.Context, sess session.Session, planID string) (*Checkout, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.premium_checkout")
	defer span.End()
	span.SetAttributes(attribute.String("portal.plan", planID))

	plan, err := LookupPlan(planID)
	if err != nil {
		return nil, err
	}
	if err := s.allow(ctx, s.velocity.CheckCheckout, sess); err != nil {
		return nil, err
	}

	url, err := s.backend.CreatePremiumCheckout(ctx, sess.Token(), upstream.PremiumCheckoutRequest{
		Amount:   plan.Amount(),
		PlanType: plan.ID,
		PlanName: plan.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("payments: premium checkout: %w", err)
	}
	s.logger.Info("premium checkout started", "patient_id", sess.PatientID(), "plan", plan.ID)
	return &Checkout{URL: url, Plan: &plan}, nil
}

// ConfirmPremium activates the subscription paid for in checkout sessionID.
func (s *Service) ConfirmPremium(ctx context.Context, sess session.Session, sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", ErrMissingParams
	}
	msg, err := s.backend.ConfirmPremiumPayment(ctx, sess.Token(), sessionID)
	if err != nil {
		return "", fmt.Errorf("payments: confirm premium: %w", err)
	}
	s.logger.Info("premium activated", "patient_id", sess.PatientID())
	return msg, nil
}

// RedeemCode applies a promotional premium code.
func (s *Service) RedeemCode(ctx context.Context, sess session.Session, code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrMissingCode
	}
	if err := s.allow(ctx, s.velocity.CheckCodeAttempt, sess); err != nil {
		return "", err
	}
	msg, err := s.backend.RedeemPremiumCode(ctx, sess.Token(), code)
	if err != nil {
		return "", fmt.Errorf("payments: redeem code: %w", err)
	}
	return msg, nil
}

func (s *Service) Status(ctx context.Context, sess session.Session) (*upstream.PremiumStatus, error) {
	status, err := s.backend.PremiumStatus(ctx, sess.Token())
	if err != nil {
		return nil, fmt.Errorf("payments: premium status: %w", err)
	}
	return status, nil
}

// PayAppointment opens a checkout for an appointment's fee.
func (s *Service) PayAppointment(ctx context.Context, sess session.Session, appointmentID string) (*Checkout, error) {
	ctx, span := paymentsTracer.Start(ctx, "payments.appointment_checkout")
	defer span.End()
	span.SetAttributes(attribute.String("portal.appointment_id", appointmentID))

	if err := s.allow(ctx, s.velocity.CheckCheckout, sess); err != nil {
		return nil, err
	}
	url, err := s.backend.StartStripePayment(ctx, sess.Token(), appointmentID)
	if err != nil {
		return nil, fmt.Errorf("payments: appointment checkout: %w", err)
	}
	return &Checkout{URL: url}, nil
}

// VerifyAppointment reports the provider callback for an appointment payment.
func (s *Service) VerifyAppointment(ctx context.Context, sess session.Session, appointmentID, success string) (string, error) {
	if strings.TrimSpace(appointmentID) == "" || strings.TrimSpace(success) == "" {
		return "", ErrMissingParams
	}
	msg, err := s.backend.VerifyStripePayment(ctx, sess.Token(), appointmentID, success)
	if err != nil {
		return "", fmt.Errorf("payments: verify appointment: %w", err)
	}
	s.logger.Info("appointment payment verified", "appointment_id", appointmentID, "success", success)
	return msg, nil
}

func (s *Service) allow(ctx context.Context, check func(context.Context, string) (*VelocityResult, error), sess session.Session) error {
	result, err := check(ctx, sess.PatientID())
	if err != nil {
		return fmt.Errorf("payments: velocity: %w", err)
	}
	if !result.Allowed {
		return fmt.Errorf("%w: %s", ErrRateLimited, result.Message)
	}
	return nil
}
