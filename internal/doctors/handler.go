package doctors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medibook/patient-portal/pkg/logging"
)

// Handler exposes the doctor directory.
type Handler struct {
	directory *Directory
	logger    *logging.Logger
}

func NewHandler(directory *Directory, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{directory: directory, logger: logger}
}

// Routes mounts under /doctors.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/specialities", h.ListSpecialities)
	r.Get("/{doctorID}", h.Get)
	r.Get("/{doctorID}/related", h.ListRelated)
	return r
}

// List returns doctors, optionally filtered with ?speciality=.
// GET /doctors
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.directory.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list doctors", "error", err)
		http.Error(w, `{"error": "doctor directory unavailable"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doctors": FilterBySpeciality(all, r.URL.Query().Get("speciality")),
	})
}

// GET /doctors/specialities
func (h *Handler) ListSpecialities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"specialities": Specialities})
}

// Get returns one doctor.
// GET /doctors/{doctorID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "doctorID")
	doc, err := h.directory.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error": "doctor not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to get doctor", "doctor_id", id, "error", err)
		http.Error(w, `{"error": "doctor directory unavailable"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListRelated returns other available doctors of the same speciality.
// GET /doctors/{doctorID}/related
func (h *Handler) ListRelated(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "doctorID")
	all, err := h.directory.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list doctors", "error", err)
		http.Error(w, `{"error": "doctor directory unavailable"}`, http.StatusBadGateway)
		return
	}
	related := Related(all, id)
	if related == nil {
		related = []Doctor{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctors": related})
}

// InvalidateCache drops the cached doctor list.
// POST /admin/doctors/cache/invalidate
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Invalidate(r.Context()); err != nil {
		h.logger.Error("failed to invalidate doctor cache", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
