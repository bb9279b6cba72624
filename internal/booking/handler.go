package booking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medibook/patient-portal/internal/doctors"
	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

// Handler exposes availability and the booking flow over HTTP.
type Handler struct {
	service      *Service
	logger       *logging.Logger
	submitLimits func(http.Handler) http.Handler
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// WithSubmitLimiter wraps the submission route, e.g. with a per-patient rate limit.
func (h *Handler) WithSubmitLimiter(mw func(http.Handler) http.Handler) *Handler {
	h.submitLimits = mw
	return h
}

// RegisterRoutes adds the booking routes to the router serving /doctors.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/{doctorID}/availability", h.GetAvailability)
	r.Group(func(r chi.Router) {
		r.Use(session.Require)
		r.Get("/{doctorID}/selection/day", h.GetSelection)
		r.Put("/{doctorID}/selection/day", h.SelectDay)
		r.Put("/{doctorID}/selection/slot", h.SelectSlot)
		if h.submitLimits != nil {
			r.With(h.submitLimits).Post("/{doctorID}/bookings", h.Submit)
		} else {
			r.Post("/{doctorID}/bookings", h.Submit)
		}
	})
}

// GetAvailability returns the seven-day window. ?refresh=true drops cached doctor data.
// GET /doctors/{doctorID}/availability
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	sess, _ := session.FromContext(r.Context())
	refresh := r.URL.Query().Get("refresh") == "true"

	window, err := h.service.Availability(r.Context(), sess, doctorID, refresh)
	if err != nil {
		h.writeError(w, doctorID, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

// GET /doctors/{doctorID}/selection/day
func (h *Handler) GetSelection(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	sess, _ := session.FromContext(r.Context())

	sel, err := h.service.Selection(r.Context(), sess, doctorID)
	if err != nil {
		h.writeError(w, doctorID, err)
		return
	}
	writeSelection(w, sel)
}

type selectDayRequest struct {
	DayIndex *int `json:"day_index"`
}

// SelectDay chooses a day of the window.
// PUT /doctors/{doctorID}/selection/day
func (h *Handler) SelectDay(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	sess, _ := session.FromContext(r.Context())

	var req selectDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DayIndex == nil {
		http.Error(w, `{"error": "day_index required"}`, http.StatusBadRequest)
		return
	}
	sel, err := h.service.SelectDay(r.Context(), sess, doctorID, *req.DayIndex)
	if err != nil {
		h.writeError(w, doctorID, err)
		return
	}
	writeSelection(w, sel)
}

type selectSlotRequest struct {
	Time string `json:"time"`
}

// SelectSlot chooses a time on the selected day.
// PUT /doctors/{doctorID}/selection/slot
func (h *Handler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	sess, _ := session.FromContext(r.Context())

	var req selectSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	sel, err := h.service.SelectSlot(r.Context(), sess, doctorID, req.Time)
	if err != nil {
		h.writeError(w, doctorID, err)
		return
	}
	writeSelection(w, sel)
}

// Submit books the selected slot.
// POST /doctors/{doctorID}/bookings
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	doctorID := chi.URLParam(r, "doctorID")
	sess, _ := session.FromContext(r.Context())

	conf, err := h.service.Submit(r.Context(), sess, doctorID)
	if err != nil {
		h.writeError(w, doctorID, err)
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

func (h *Handler) writeError(w http.ResponseWriter, doctorID string, err error) {
	var validationErr *ValidationError
	var staleErr *StaleDataError
	var apiErr *upstream.APIError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": validationErr.Reason})
	case errors.As(err, &staleErr):
		writeJSON(w, http.StatusConflict, map[string]any{"error": staleErr.Error(), "message": staleErr.Message, "refresh": true})
	case errors.Is(err, doctors.ErrNotFound):
		http.Error(w, `{"error": "doctor not found"}`, http.StatusNotFound)
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, upstream.ErrUnauthenticated):
		http.Error(w, `{"error": "login required"}`, http.StatusUnauthorized)
	case errors.Is(err, upstream.ErrUnavailable), errors.As(err, &apiErr):
		h.logger.Error("booking backend call failed", "doctor_id", doctorID, "error", err)
		http.Error(w, `{"error": "booking backend unavailable"}`, http.StatusBadGateway)
	default:
		h.logger.Error("booking request failed", "doctor_id", doctorID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
	}
}

func writeSelection(w http.ResponseWriter, sel Selection) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     sel.State().String(),
		"selection": sel,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
