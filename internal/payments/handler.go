package payments

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

// Client-side pages the provider callbacks land on.
const (
	pagePremium        = "/premium"
	pageUploadAnalysis = "/upload-analysis"
	pageLogin          = "/login"
	pageMyAppointments = "/my-appointments"
)

// Handler exposes checkout starts and provider callbacks.
type Handler struct {
	service       *Service
	publicBaseURL string
	currency      string
	logger        *logging.Logger
}

// NewHandler creates the handler. Callback redirects go to publicBaseURL, or stay
// relative when it is not an absolute http(s) URL.
func NewHandler(service *Service, publicBaseURL, currencySymbol string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/")
	if base != "" && !isValidBaseURL(base) {
		logger.Warn("ignoring invalid PUBLIC_BASE_URL for payment redirects", "public_base_url", base)
		base = ""
	}
	if currencySymbol == "" {
		currencySymbol = "$"
	}
	return &Handler{service: service, publicBaseURL: base, currency: currencySymbol, logger: logger}
}

// RegisterPremiumRoutes adds the premium routes to the router serving /premium.
func (h *Handler) RegisterPremiumRoutes(r chi.Router) {
	r.Get("/plans", h.ListPlans)
	r.Get("/success", h.PremiumSuccess)
	r.Group(func(r chi.Router) {
		r.Use(session.Require)
		r.Post("/checkout", h.StartPremiumCheckout)
		r.Post("/code", h.RedeemCode)
		r.Get("/status", h.Status)
	})
}

// RegisterAppointmentRoutes adds the payment route to the router serving /appointments.
func (h *Handler) RegisterAppointmentRoutes(r chi.Router) {
	r.With(session.Require).Post("/{appointmentID}/pay", h.PayAppointment)
}

type planView struct {
	Plan
	Price string `json:"price"`
}

// GET /premium/plans
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	out := make([]planView, 0, len(plans))
	for _, p := range Plans() {
		out = append(out, planView{Plan: p, Price: FormatPrice(h.currency, p.AmountCents)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

// POST /premium/checkout {"plan": "3months"}
func (h *Handler) StartPremiumCheckout(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	var req struct {
		Plan string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	checkout, err := h.service.StartPremiumCheckout(r.Context(), sess, req.Plan)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkout)
}

// PremiumSuccess is where the provider sends the patient after paying for a plan.
// GET /premium/success?session_id=
func (h *Handler) PremiumSuccess(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.redirect(w, r, pageLogin)
		return
	}
	if _, err := h.service.ConfirmPremium(r.Context(), sess, r.URL.Query().Get("session_id")); err != nil {
		h.logger.Warn("premium confirmation failed", "patient_id", sess.PatientID(), "error", err)
		h.redirect(w, r, pagePremium)
		return
	}
	h.redirect(w, r, pageUploadAnalysis)
}

// POST /premium/code {"code": "..."}
func (h *Handler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	msg, err := h.service.RedeemCode(r.Context(), sess, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

// GET /premium/status
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	status, err := h.service.Status(r.Context(), sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// POST /appointments/{appointmentID}/pay
func (h *Handler) PayAppointment(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	checkout, err := h.service.PayAppointment(r.Context(), sess, chi.URLParam(r, "appointmentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_url": checkout.URL})
}

// VerifyAppointment is where the provider sends the patient after an appointment
// checkout. Every outcome lands on the appointments page.
// GET /verify?success=&appointmentId=
func (h *Handler) VerifyAppointment(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	q := r.URL.Query()
	success, appointmentID := q.Get("success"), q.Get("appointmentId")
	if !ok || success == "" || appointmentID == "" {
		h.redirect(w, r, pageMyAppointments)
		return
	}
	if _, err := h.service.VerifyAppointment(r.Context(), sess, appointmentID, success); err != nil {
		h.logger.Warn("appointment payment verification failed", "appointment_id", appointmentID, "error", err)
	}
	h.redirect(w, r, pageMyAppointments)
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, page string) {
	http.Redirect(w, r, h.publicBaseURL+page, http.StatusFound)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownPlan):
		http.Error(w, `{"error": "unknown plan"}`, http.StatusBadRequest)
	case errors.Is(err, ErrMissingCode), errors.Is(err, ErrMissingParams):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.Is(err, ErrRateLimited):
		http.Error(w, `{"error": "too many attempts, try again later"}`, http.StatusTooManyRequests)
	default:
		status, msg := upstream.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("payment request failed", "error", err)
		}
		writeJSON(w, status, map[string]any{"error": msg})
	}
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
