package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PremiumCheckoutRequest is the body of /api/premium/create-payment.
// Amount is in major currency units, as the backend expects.
type PremiumCheckoutRequest struct {
	Amount   float64 `json:"amount"`
	PlanType string  `json:"planType"`
	PlanName string  `json:"planName"`
}

// PremiumStatus is the patient's subscription state.
type PremiumStatus struct {
	IsPremium bool       `json:"isPremium"`
	PlanType  string     `json:"planType,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// CreatePremiumCheckout starts a subscription checkout and returns the hosted payment URL.
func (c *Client) CreatePremiumCheckout(ctx context.Context, token string, req PremiumCheckoutRequest) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/premium/create-payment",
		endpoint: "premium-create-payment",
		auth:     authBearer,
		token:    token,
		body:     req,
		headers:  idempotencyHeaders("premium-create-payment", token, req.PlanType),
	}, &out)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out.URL) == "" {
		return "", fmt.Errorf("upstream: premium-create-payment: response missing checkout url")
	}
	return out.URL, nil
}

// ConfirmPremiumPayment activates the subscription paid for in checkout sessionID.
func (c *Client) ConfirmPremiumPayment(ctx context.Context, token, sessionID string) (string, error) {
	var out messageResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/premium/payment-success",
		endpoint: "premium-payment-success",
		auth:     authBearer,
		token:    token,
		body:     map[string]string{"session_id": sessionID},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// RedeemPremiumCode applies a promotional premium code.
func (c *Client) RedeemPremiumCode(ctx context.Context, token, code string) (string, error) {
	var out messageResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/premium/validate-code",
		endpoint: "premium-validate-code",
		auth:     authBearer,
		token:    token,
		body:     map[string]string{"code": code},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) PremiumStatus(ctx context.Context, token string) (*PremiumStatus, error) {
	var out PremiumStatus
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/premium/status",
		endpoint: "premium-status",
		auth:     authBearer,
		token:    token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
