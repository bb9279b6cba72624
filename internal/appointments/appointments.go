// Package appointments lists and cancels a patient's booked appointments.
package appointments

import (
	"context"
	"fmt"

	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

// Status summarizes where an appointment stands.
type Status string

const (
	StatusCancelled       Status = "cancelled"
	StatusCompleted       Status = "completed"
	StatusPaid            Status = "paid"
	StatusAwaitingPayment Status = "awaiting_payment"
)

// Appointment is one booked appointment prepared for display.
type Appointment struct {
	ID          string                     `json:"id"`
	DoctorID    string                     `json:"doctor_id"`
	Doctor      upstream.AppointmentDoctor `json:"doctor"`
	SlotDate    string                     `json:"slot_date"`
	SlotTime    string                     `json:"slot_time"`
	DisplayDate string                     `json:"display_date"`
	Amount      float64                    `json:"amount"`
	Status      Status                     `json:"status"`
	// Payable is true when the patient can still pay online.
	Payable bool `json:"payable"`
}

// Backend is the part of the booking backend this package calls.
type Backend interface {
	ListAppointments(ctx context.Context, token string) ([]upstream.AppointmentRecord, error)
	CancelAppointment(ctx context.Context, token, appointmentID string) (string, error)
}

type Service struct {
	backend Backend
	logger  *logging.Logger
}

func NewService(backend Backend, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{backend: backend, logger: logger}
}

// List returns the patient's appointments, most recent booking first.
func (s *Service) List(ctx context.Context, sess session.Session) ([]Appointment, error) {
	records, err := s.backend.ListAppointments(ctx, sess.Token())
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	out := make([]Appointment, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, fromRecord(records[i]))
	}
	return out, nil
}

// Cancel cancels one appointment and returns the backend's confirmation message.
func (s *Service) Cancel(ctx context.Context, sess session.Session, appointmentID string) (string, error) {
	msg, err := s.backend.CancelAppointment(ctx, sess.Token(), appointmentID)
	if err != nil {
		return "", fmt.Errorf("appointments: cancel %s: %w", appointmentID, err)
	}
	s.logger.Info("appointment cancelled", "appointment_id", appointmentID, "patient_id", sess.PatientID())
	return msg, nil
}

func fromRecord(rec upstream.AppointmentRecord) Appointment {
	a := Appointment{
		ID:          rec.ID,
		DoctorID:    rec.DoctorID,
		Doctor:      rec.Doctor,
		SlotDate:    rec.SlotDate,
		SlotTime:    rec.SlotTime,
		DisplayDate: FormatSlotDate(rec.SlotDate),
		Amount:      rec.Amount,
	}
	switch {
	case rec.Cancelled:
		a.Status = StatusCancelled
	case rec.IsCompleted:
		a.Status = StatusCompleted
	case rec.Payment:
		a.Status = StatusPaid
	default:
		a.Status = StatusAwaitingPayment
		a.Payable = true
	}
	return a
}
