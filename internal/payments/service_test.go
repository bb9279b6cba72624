package payments

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
)

type stubBackend struct {
	mu sync.Mutex

	checkoutURL string
	checkoutReq []upstream.PremiumCheckoutRequest
	confirmed   []string
	confirmErr  error
	codes       []string
	codeErr     error
	status      *upstream.PremiumStatus
	stripeURL   string
	stripeErr   error
	verified    [][2]string
	verifyErr   error
}

func (b *stubBackend) CreatePremiumCheckout(ctx context.Context, token string, req upstream.PremiumCheckoutRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkoutReq = append(b.checkoutReq, req)
	return b.checkoutURL, nil
}

func (b *stubBackend) ConfirmPremiumPayment(ctx context.Context, token, sessionID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmed = append(b.confirmed, sessionID)
	return "Premium activated", b.confirmErr
}

func (b *stubBackend) RedeemPremiumCode(ctx context.Context, token, code string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes = append(b.codes, code)
	return "Code applied", b.codeErr
}

func (b *stubBackend) PremiumStatus(ctx context.Context, token string) (*upstream.PremiumStatus, error) {
	return b.status, nil
}

func (b *stubBackend) StartStripePayment(ctx context.Context, token, appointmentID string) (string, error) {
	return b.stripeURL, b.stripeErr
}

func (b *stubBackend) VerifyStripePayment(ctx context.Context, token, appointmentID, success string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.verified = append(b.verified, [2]string{appointmentID, success})
	return "Payment Successful", b.verifyErr
}

var patient = session.New("tok", "patient-1", time.Time{})

func newBackend() *stubBackend {
	return &stubBackend{
		checkoutURL: "https://checkout.example.com/s/1",
		stripeURL:   "https://checkout.stripe.com/c/pay/cs_1",
		status:      &upstream.PremiumStatus{IsPremium: true, PlanType: "1year"},
	}
}

func TestStartPremiumCheckout(t *testing.T) {
	backend := newBackend()
	svc := NewService(backend, nil, nil)

	checkout, err := svc.StartPremiumCheckout(context.Background(), patient, "1year")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example.com/s/1", checkout.URL)
	require.NotNil(t, checkout.Plan)
	assert.Equal(t, "1year", checkout.Plan.ID)

	require.Len(t, backend.checkoutReq, 1)
	assert.Equal(t, "1year", backend.checkoutReq[0].PlanType)
	assert.Equal(t, "One year", backend.checkoutReq[0].PlanName)
	assert.InDelta(t, 89.99, backend.checkoutReq[0].Amount, 0.0001)

	_, err = svc.StartPremiumCheckout(context.Background(), patient, "lifetime")
	assert.ErrorIs(t, err, ErrUnknownPlan)
	assert.Len(t, backend.checkoutReq, 1)
}

func TestCheckoutVelocity(t *testing.T) {
	redisClient, _, cleanup := setupTestRedis(t)
	defer cleanup()

	backend := newBackend()
	velocity := NewVelocityChecker(redisClient, VelocityConfig{MaxCheckoutsPerPatient: 2, MaxCodeAttempts: 1}, nil)
	svc := NewService(backend, velocity, nil)
	ctx := context.Background()

	_, err := svc.StartPremiumCheckout(ctx, patient, "1month")
	require.NoError(t, err)
	_, err = svc.PayAppointment(ctx, patient, "apt1")
	require.NoError(t, err)
	_, err = svc.PayAppointment(ctx, patient, "apt1")
	assert.ErrorIs(t, err, ErrRateLimited, "premium and appointment checkouts share one budget")

	_, err = svc.RedeemCode(ctx, patient, "WELCOME")
	require.NoError(t, err)
	_, err = svc.RedeemCode(ctx, patient, "WELCOME2")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, []string{"WELCOME"}, backend.codes)
}

func TestConfirmPremium(t *testing.T) {
	backend := newBackend()
	svc := NewService(backend, nil, nil)

	_, err := svc.ConfirmPremium(context.Background(), patient, " ")
	assert.ErrorIs(t, err, ErrMissingParams)

	msg, err := svc.ConfirmPremium(context.Background(), patient, "cs_42")
	require.NoError(t, err)
	assert.Equal(t, "Premium activated", msg)
	assert.Equal(t, []string{"cs_42"}, backend.confirmed)
}

func TestRedeemCodeRequiresCode(t *testing.T) {
	_, err := NewService(newBackend(), nil, nil).RedeemCode(context.Background(), patient, "")
	assert.ErrorIs(t, err, ErrMissingCode)
}

func TestVerifyAppointment(t *testing.T) {
	backend := newBackend()
	svc := NewService(backend, nil, nil)

	_, err := svc.VerifyAppointment(context.Background(), patient, "", "true")
	assert.ErrorIs(t, err, ErrMissingParams)
	assert.Empty(t, backend.verified)

	msg, err := svc.VerifyAppointment(context.Background(), patient, "apt1", "false")
	require.NoError(t, err)
	assert.Equal(t, "Payment Successful", msg)
	assert.Equal(t, [][2]string{{"apt1", "false"}}, backend.verified)

	backend.verifyErr = &upstream.APIError{Status: http.StatusOK, Message: "Payment Failed"}
	_, err = svc.VerifyAppointment(context.Background(), patient, "apt1", "false")
	var apiErr *upstream.APIError
	assert.True(t, errors.As(err, &apiErr))
}
