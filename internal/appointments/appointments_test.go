package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
)

type stubBackend struct {
	records   []upstream.AppointmentRecord
	listErr   error
	cancelErr error
	cancelled []string
	tokens    []string
}

func (b *stubBackend) ListAppointments(ctx context.Context, token string) ([]upstream.AppointmentRecord, error) {
	b.tokens = append(b.tokens, token)
	return b.records, b.listErr
}

func (b *stubBackend) CancelAppointment(ctx context.Context, token, id string) (string, error) {
	b.tokens = append(b.tokens, token)
	if b.cancelErr != nil {
		return "", b.cancelErr
	}
	b.cancelled = append(b.cancelled, id)
	return "Appointment Cancelled", nil
}

func sampleAppointments() []upstream.AppointmentRecord {
	return []upstream.AppointmentRecord{
		{ID: "a1", DoctorID: "doc1", SlotDate: "5_3_2025", SlotTime: "10:30 AM", Amount: 50, Cancelled: true},
		{ID: "a2", DoctorID: "doc1", SlotDate: "6_3_2025", SlotTime: "11:00 AM", Amount: 50, IsCompleted: true, Payment: true},
		{ID: "a3", DoctorID: "doc2", SlotDate: "7_3_2025", SlotTime: "4:00 PM", Amount: 60, Payment: true},
		{ID: "a4", DoctorID: "doc2", SlotDate: "8_3_2025", SlotTime: "5:30 PM", Amount: 60,
			Doctor: upstream.AppointmentDoctor{Name: "Dr. Emily Larson"}},
	}
}

var patient = session.New("tok", "patient-1", time.Time{})

func TestListNewestFirstWithStatus(t *testing.T) {
	backend := &stubBackend{records: sampleAppointments()}
	list, err := NewService(backend, nil).List(context.Background(), patient)
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, "a4", list[0].ID)
	assert.Equal(t, StatusAwaitingPayment, list[0].Status)
	assert.True(t, list[0].Payable)
	assert.Equal(t, "8 Mar 2025", list[0].DisplayDate)
	assert.Equal(t, "Dr. Emily Larson", list[0].Doctor.Name)

	assert.Equal(t, StatusPaid, list[1].Status)
	assert.Equal(t, StatusCompleted, list[2].Status)
	assert.Equal(t, StatusCancelled, list[3].Status)
	assert.False(t, list[3].Payable)
	assert.Equal(t, []string{"tok"}, backend.tokens)
}

func TestListError(t *testing.T) {
	cause := errors.New("down")
	_, err := NewService(&stubBackend{listErr: cause}, nil).List(context.Background(), patient)
	assert.ErrorIs(t, err, cause)
}

func TestCancel(t *testing.T) {
	backend := &stubBackend{}
	msg, err := NewService(backend, nil).Cancel(context.Background(), patient, "a4")
	require.NoError(t, err)
	assert.Equal(t, "Appointment Cancelled", msg)
	assert.Equal(t, []string{"a4"}, backend.cancelled)
}

func newRouter(backend Backend) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Patient") != "" {
				r = r.WithContext(session.WithSession(r.Context(), patient))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHandler(NewService(backend, nil), nil).RegisterRoutes(r)
	return r
}

func TestHandlerList(t *testing.T) {
	h := newRouter(&stubBackend{records: sampleAppointments()})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Patient", "1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Appointments []Appointment `json:"appointments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Appointments, 4)
}

func TestHandlerCancelErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"ok", nil, http.StatusOK},
		{"refused", &upstream.APIError{Status: http.StatusOK, Message: "Unauthorized action"}, http.StatusBadRequest},
		{"expired login", &upstream.APIError{Status: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"backend down", upstream.ErrUnavailable, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&stubBackend{cancelErr: tt.err})
			req := httptest.NewRequest(http.MethodPost, "/a4/cancel", nil)
			req.Header.Set("X-Patient", "1")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
