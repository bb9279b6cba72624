package appointments

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes adds the appointment routes to the router serving /appointments.
// Every route needs a patient session.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(session.Require)
		r.Get("/", h.List)
		r.Post("/{appointmentID}/cancel", h.Cancel)
	})
}

// GET /appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	list, err := h.service.List(r.Context(), sess)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// POST /appointments/{appointmentID}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	id := chi.URLParam(r, "appointmentID")
	msg, err := h.service.Cancel(r.Context(), sess, id)
	if err != nil {
		h.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (h *Handler) writeUpstreamError(w http.ResponseWriter, err error) {
	status, msg := upstream.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("appointments request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
