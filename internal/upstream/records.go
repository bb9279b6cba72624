package upstream

import (
	"context"
	"net/http"
)

// Address is the two-line postal address the backend stores for doctors.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
}

// DoctorRecord is a doctor as returned by /api/doctor/list.
type DoctorRecord struct {
	ID                string              `json:"_id"`
	Name              string              `json:"name"`
	Image             string              `json:"image"`
	Speciality        string              `json:"speciality"`
	Degree            string              `json:"degree"`
	Experience        string              `json:"experience"`
	About             string              `json:"about"`
	Available         bool                `json:"available"`
	Fees              float64             `json:"fees"`
	Address           Address             `json:"address"`
	SlotsBooked       map[string][]string `json:"slots_booked"`
	WorkingHoursStart int                 `json:"workingHoursStart,omitempty"`
	WorkingHoursEnd   int                 `json:"workingHoursEnd,omitempty"`
}

// AppointmentDoctor is the doctor snapshot embedded in an appointment.
type AppointmentDoctor struct {
	Name       string  `json:"name"`
	Image      string  `json:"image"`
	Speciality string  `json:"speciality"`
	Address    Address `json:"address"`
}

// AppointmentRecord is one of the patient's appointments.
type AppointmentRecord struct {
	ID          string            `json:"_id"`
	UserID      string            `json:"userId"`
	DoctorID    string            `json:"docId"`
	SlotDate    string            `json:"slotDate"`
	SlotTime    string            `json:"slotTime"`
	Doctor      AppointmentDoctor `json:"docData"`
	Amount      float64           `json:"amount"`
	Date        int64             `json:"date"`
	Cancelled   bool              `json:"cancelled"`
	Payment     bool              `json:"payment"`
	IsCompleted bool              `json:"isCompleted"`
}

// BookingRequest is the body of /api/user/book-appointment.
type BookingRequest struct {
	DoctorID string `json:"docId"`
	SlotDate string `json:"slotDate"`
	SlotTime string `json:"slotTime"`
}

type doctorListResponse struct {
	Envelope
	Doctors []DoctorRecord `json:"doctors"`
}

type appointmentListResponse struct {
	Envelope
	Appointments []AppointmentRecord `json:"appointments"`
}

type stripeSessionResponse struct {
	Envelope
	SessionURL string `json:"session_url"`
}

// ListDoctors returns every doctor with their booked-slot index.
func (c *Client) ListDoctors(ctx context.Context) ([]DoctorRecord, error) {
	var out doctorListResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/api/doctor/list", endpoint: "doctor-list"}, &out); err != nil {
		return nil, err
	}
	return out.Doctors, nil
}

// BookAppointment submits a slot booking. A refusal (slot taken, doctor unavailable)
// comes back as *APIError carrying the backend's message.
func (c *Client) BookAppointment(ctx context.Context, token string, req BookingRequest) (string, error) {
	var out Envelope
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/user/book-appointment",
		endpoint: "book-appointment",
		auth:     authTokenHeader,
		token:    token,
		body:     req,
		headers:  idempotencyHeaders("book-appointment", token, req.DoctorID, req.SlotDate, req.SlotTime),
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// ListAppointments returns the patient's appointments, newest first as the backend orders them.
func (c *Client) ListAppointments(ctx context.Context, token string) ([]AppointmentRecord, error) {
	var out appointmentListResponse
	err := c.do(ctx, call{
		method:   http.MethodGet,
		path:     "/api/user/appointments",
		endpoint: "appointments",
		auth:     authTokenHeader,
		token:    token,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Appointments, nil
}

// CancelAppointment cancels one of the patient's appointments.
func (c *Client) CancelAppointment(ctx context.Context, token, appointmentID string) (string, error) {
	var out Envelope
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/user/cancel-appointment",
		endpoint: "cancel-appointment",
		auth:     authTokenHeader,
		token:    token,
		body:     map[string]string{"appointmentId": appointmentID},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// StartStripePayment opens a hosted checkout for an appointment and returns its URL.
func (c *Client) StartStripePayment(ctx context.Context, token, appointmentID string) (string, error) {
	var out stripeSessionResponse
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/user/payment-stripe",
		endpoint: "payment-stripe",
		auth:     authTokenHeader,
		token:    token,
		body:     map[string]string{"appointmentId": appointmentID},
		headers:  idempotencyHeaders("payment-stripe", token, appointmentID),
	}, &out)
	if err != nil {
		return "", err
	}
	return out.SessionURL, nil
}

// VerifyStripePayment reports the checkout callback outcome back to the backend.
func (c *Client) VerifyStripePayment(ctx context.Context, token, appointmentID, success string) (string, error) {
	var out Envelope
	err := c.do(ctx, call{
		method:   http.MethodPost,
		path:     "/api/user/verifyStripe",
		endpoint: "verify-stripe",
		auth:     authTokenHeader,
		token:    token,
		body:     map[string]string{"appointmentId": appointmentID, "success": success},
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}
