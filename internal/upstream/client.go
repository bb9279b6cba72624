// Package upstream is a thin JSON client for the booking backend the portal fronts.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/medibook/patient-portal/pkg/logging"
)

var upstreamTracer = otel.Tracer("portal.internal.upstream")

// ErrUnauthenticated is returned when a call needs a patient token and none was given.
var ErrUnauthenticated = errors.New("upstream: patient token required")

// ErrUnavailable wraps failures to reach the backend at all.
var ErrUnavailable = errors.New("upstream: backend unavailable")

// APIError is a request the backend answered but refused, either with a non-2xx
// status or with {"success": false}.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream: %s: status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("upstream: %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

// LatencyObserver receives the duration of every backend call.
type LatencyObserver interface {
	ObserveUpstream(endpoint, status string, elapsed time.Duration)
}

// Envelope is the {success, message} wrapper used by the /api/user and /api/doctor routes.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e Envelope) envelope() Envelope { return e }

type enveloped interface {
	envelope() Envelope
}

type authStyle int

const (
	authNone authStyle = iota
	// authTokenHeader sends the raw token in a "token" header (/api/user routes).
	authTokenHeader
	// authBearer sends "Authorization: Bearer <token>" (/api/premium routes).
	authBearer
)

// Client calls the booking backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	observer   LatencyObserver
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithHTTPClient overrides the HTTP client (for testing).
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLatencyObserver reports call latency to o.
func (c *Client) WithLatencyObserver(o LatencyObserver) *Client {
	c.observer = o
	return c
}

type call struct {
	method   string
	path     string
	endpoint string
	auth     authStyle
	token    string
	body     any
	headers  map[string]string
}

// do performs the call and decodes the response into out. When out carries an
// Envelope, success=false is converted into *APIError.
func (c *Client) do(ctx context.Context, req call, out any) error {
	ctx, span := upstreamTracer.Start(ctx, "upstream."+req.endpoint)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("portal.upstream.path", req.path),
	)

	if req.auth != authNone && strings.TrimSpace(req.token) == "" {
		return ErrUnauthenticated
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("upstream: %s: encode: %w", req.endpoint, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("upstream: %s: request: %w", req.endpoint, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	switch req.auth {
	case authTokenHeader:
		httpReq.Header.Set("token", req.token)
	case authBearer:
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(req.endpoint, "transport_error", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return fmt.Errorf("upstream: %s: %w: %w", req.endpoint, ErrUnavailable, err)
	}
	defer resp.Body.Close()
	c.observe(req.endpoint, strconv.Itoa(resp.StatusCode), start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("upstream: %s: read body: %w", req.endpoint, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{Endpoint: req.endpoint, Status: resp.StatusCode, Message: errorMessage(data)}
		span.SetStatus(codes.Error, apiErr.Message)
		c.logger.Warn("upstream call failed", "endpoint", req.endpoint, "status", resp.StatusCode, "message", apiErr.Message)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("upstream: %s: decode: %w", req.endpoint, err)
		}
	}
	if env, ok := out.(enveloped); ok {
		if e := env.envelope(); !e.Success {
			span.SetStatus(codes.Error, e.Message)
			return &APIError{Endpoint: req.endpoint, Status: resp.StatusCode, Message: e.Message}
		}
	}
	return nil
}

func (c *Client) observe(endpoint, status string, start time.Time) {
	if c.observer != nil {
		c.observer.ObserveUpstream(endpoint, status, time.Since(start))
	}
}

// errorMessage extracts {"message": ...} from an error body, falling back to the raw text.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(body))
}

// idempotencyNamespace scopes the name-based keys below to this client.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("patient-portal/upstream/idempotency"))

// IdempotencyKey derives a stable key from the parts identifying a write, so a retry of
// the same write carries the same key.
func IdempotencyKey(parts ...string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(strings.Join(parts, "\x00"))).String()
}

func idempotencyHeaders(parts ...string) map[string]string {
	return map[string]string{"Idempotency-Key": IdempotencyKey(parts...)}
}

// HTTPStatus maps an error from this client onto the status a portal handler should
// answer with and a message safe to show the patient.
func HTTPStatus(err error) (int, string) {
	var apiErr *APIError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "login required"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden:
			return http.StatusUnauthorized, apiErr.Message
		case apiErr.Status >= http.StatusInternalServerError:
			return http.StatusBadGateway, "booking backend unavailable"
		default:
			return http.StatusBadRequest, apiErr.Message
		}
	default:
		return http.StatusBadGateway, "booking backend unavailable"
	}
}
