package booking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medibook/patient-portal/internal/availability"
	"github.com/medibook/patient-portal/internal/doctors"
	"github.com/medibook/patient-portal/internal/observability/metrics"
	"github.com/medibook/patient-portal/internal/session"
	"github.com/medibook/patient-portal/internal/upstream"
	"github.com/medibook/patient-portal/pkg/logging"
)

var bookingTracer = otel.Tracer("portal.internal.booking")

// ErrUnauthenticated is returned when the backend no longer accepts the patient's token.
var ErrUnauthenticated = errors.New("booking: patient not authenticated")

// Availability computation sources, used as metric labels.
const (
	sourceView    = "view"
	sourceRefresh = "refresh"
	sourceSelect  = "select"
	sourceSubmit  = "submit"
)

// DoctorDirectory is the subset of the doctor directory the service reads.
type DoctorDirectory interface {
	Get(ctx context.Context, id string) (doctors.Doctor, error)
	Invalidate(ctx context.Context) error
}

// Submitter sends booking requests to the backend.
type Submitter interface {
	BookAppointment(ctx context.Context, token string, req upstream.BookingRequest) (string, error)
}

// Day is one entry of the booking window as shown to the patient.
type Day struct {
	Index   int                   `json:"index"`
	DayKey  string                `json:"day_key"`
	Weekday string                `json:"weekday"`
	Date    int                   `json:"date"`
	Slots   availability.DaySlots `json:"slots"`
}

// Window is a doctor's seven-day availability together with the patient's selection.
type Window struct {
	DoctorID    string    `json:"doctor_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Days        []Day     `json:"days"`
	Selection   Selection `json:"selection"`
	TotalSlots  int       `json:"total_slots"`
}

// Confirmation is returned after the backend accepts a booking.
type Confirmation struct {
	Message string                  `json:"message"`
	Request upstream.BookingRequest `json:"booking"`
}

// Service drives the selection state machine against freshly computed availability.
type Service struct {
	directory DoctorDirectory
	submitter Submitter
	store     *SelectionStore
	clock     availability.Clock
	location  *time.Location
	metrics   *metrics.PortalMetrics
	logger    *logging.Logger
}

func NewService(directory DoctorDirectory, submitter Submitter, store *SelectionStore, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		directory: directory,
		submitter: submitter,
		store:     store,
		clock:     time.Now,
		location:  time.UTC,
		logger:    logger,
	}
}

// WithClock sets the time source for availability.
func (s *Service) WithClock(clock availability.Clock) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLocation sets the clinic timezone that calendar days are cut in.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.location = loc
	}
	return s
}

func (s *Service) WithMetrics(m *metrics.PortalMetrics) *Service {
	s.metrics = m
	return s
}

// Availability computes the doctor's booking window. With refresh set the cached
// doctor record is dropped first, which is how clients recover from a stale booking.
func (s *Service) Availability(ctx context.Context, sess session.Session, doctorID string, refresh bool) (*Window, error) {
	source := sourceView
	if refresh {
		source = sourceRefresh
		if err := s.directory.Invalidate(ctx); err != nil {
			s.logger.Warn("failed to invalidate doctor cache", "doctor_id", doctorID, "error", err)
		}
	}

	now, days, err := s.compute(ctx, doctorID, source)
	if err != nil {
		return nil, err
	}

	sel := NewSelection()
	if sess.PatientID() != "" {
		sel, err = s.store.Get(ctx, sess.PatientID(), doctorID)
		if err != nil {
			return nil, err
		}
	}
	return s.window(doctorID, now, days, sel), nil
}

// Selection returns the patient's current selection for a doctor.
func (s *Service) Selection(ctx context.Context, sess session.Session, doctorID string) (Selection, error) {
	return s.store.Get(ctx, sess.PatientID(), doctorID)
}

// SelectDay moves the patient's selection to day index.
func (s *Service) SelectDay(ctx context.Context, sess session.Session, doctorID string, index int) (Selection, error) {
	sel, err := s.store.Get(ctx, sess.PatientID(), doctorID)
	if err != nil {
		return Selection{}, err
	}
	next, err := sel.SelectDay(index)
	if err != nil {
		return sel, err
	}
	if err := s.store.Save(ctx, sess.PatientID(), doctorID, next); err != nil {
		return sel, err
	}
	s.logger.Debug("booking day selected", "doctor_id", doctorID, "day_index", index, "slot_kept", next.Slot != nil)
	return next, nil
}

// SelectSlot records the slot with the given label on the selected day. The label
// must name a slot in the freshly computed day group.
func (s *Service) SelectSlot(ctx context.Context, sess session.Session, doctorID, label string) (Selection, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return Selection{}, &ValidationError{Reason: "time slot required"}
	}
	sel, err := s.store.Get(ctx, sess.PatientID(), doctorID)
	if err != nil {
		return Selection{}, err
	}
	_, days, err := s.compute(ctx, doctorID, sourceSelect)
	if err != nil {
		return sel, err
	}
	if sel.DayIndex < 0 || sel.DayIndex >= len(days) {
		s.discard(ctx, sess, doctorID)
		return NewSelection(), &ValidationError{Reason: "saved day is no longer valid, select a day again"}
	}
	slot, ok := days[sel.DayIndex].Find(label)
	if !ok {
		return sel, &ValidationError{Reason: fmt.Sprintf("time slot %q is not available on the selected day", label)}
	}
	next := sel.SelectSlot(slot)
	if err := s.store.Save(ctx, sess.PatientID(), doctorID, next); err != nil {
		return sel, err
	}
	return next, nil
}

// Submit books the selected slot. A backend refusal yields *StaleDataError and keeps
// the selection; network failures keep it too so the patient can retry.
func (s *Service) Submit(ctx context.Context, sess session.Session, doctorID string) (*Confirmation, error) {
	ctx, span := bookingTracer.Start(ctx, "booking.submit", trace.WithAttributes(
		attribute.String("portal.doctor_id", doctorID),
	))
	defer span.End()

	sel, err := s.store.Get(ctx, sess.PatientID(), doctorID)
	if err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		return nil, err
	}
	_, days, err := s.compute(ctx, doctorID, sourceSubmit)
	if err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		return nil, err
	}
	if err := checkSelected(sel, days); err != nil {
		s.discard(ctx, sess, doctorID)
		s.metrics.ObserveSubmission(metrics.OutcomeInvalid)
		span.SetStatus(codes.Error, "selection expired")
		return nil, err
	}
	req, err := BuildRequest(sel, days, doctorID)
	if err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomeInvalid)
		span.SetStatus(codes.Error, "invalid selection")
		return nil, err
	}
	span.SetAttributes(attribute.String("portal.slot_date", req.SlotDate), attribute.String("portal.slot_time", req.SlotTime))

	msg, err := s.submitter.BookAppointment(ctx, sess.Token(), req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, s.submitError(ctx, doctorID, err)
	}

	s.discard(ctx, sess, doctorID)
	if err := s.directory.Invalidate(ctx); err != nil {
		s.logger.Warn("failed to invalidate doctor cache", "doctor_id", doctorID, "error", err)
	}
	s.metrics.ObserveSubmission(metrics.OutcomeBooked)
	s.logger.Info("appointment booked", "doctor_id", doctorID, "slot_date", req.SlotDate, "slot_time", req.SlotTime)
	return &Confirmation{Message: msg, Request: req}, nil
}

func (s *Service) submitError(ctx context.Context, doctorID string, err error) error {
	if errors.Is(err, upstream.ErrUnauthenticated) {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	var apiErr *upstream.APIError
	if !errors.As(err, &apiErr) {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		s.logger.Error("booking submission failed", "doctor_id", doctorID, "error", err)
		return fmt.Errorf("booking: submit: %w", err)
	}
	if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		return fmt.Errorf("%w: %s", ErrUnauthenticated, apiErr.Message)
	}
	if apiErr.Status >= http.StatusInternalServerError {
		s.metrics.ObserveSubmission(metrics.OutcomeError)
		s.logger.Error("booking backend error", "doctor_id", doctorID, "status", apiErr.Status, "error", err)
		return fmt.Errorf("booking: submit: %w", err)
	}

	s.metrics.ObserveSubmission(metrics.OutcomeRejected)
	if invErr := s.directory.Invalidate(ctx); invErr != nil {
		s.logger.Warn("failed to invalidate doctor cache", "doctor_id", doctorID, "error", invErr)
	}
	s.logger.Info("booking rejected by backend", "doctor_id", doctorID, "message", apiErr.Message)
	return &StaleDataError{DoctorID: doctorID, Message: apiErr.Message, Err: err}
}

// checkSelected confirms a saved selection still names a slot offered at the same
// instant in the current window.
func checkSelected(sel Selection, days []availability.DaySlots) error {
	if sel.DayIndex < 0 || sel.DayIndex >= len(days) {
		return &ValidationError{Reason: "saved day is no longer valid, select a day again"}
	}
	if sel.Slot == nil {
		return nil
	}
	slot, ok := days[sel.DayIndex].Find(sel.Slot.Label)
	if !ok || !slot.StartsAt.Equal(sel.Slot.StartsAt) {
		return &ValidationError{Reason: "selected time slot is no longer available, select another"}
	}
	return nil
}

// discard drops a selection that can no longer be booked.
func (s *Service) discard(ctx context.Context, sess session.Session, doctorID string) {
	if err := s.store.Clear(ctx, sess.PatientID(), doctorID); err != nil {
		s.logger.Warn("failed to clear booking selection", "doctor_id", doctorID, "error", err)
	}
}

func (s *Service) compute(ctx context.Context, doctorID, source string) (time.Time, []availability.DaySlots, error) {
	doc, err := s.directory.Get(ctx, doctorID)
	if err != nil {
		return time.Time{}, nil, err
	}
	now := s.clock().In(s.location)
	days := availability.Compute(now, doc.Hours, doc.SlotsBooked)
	s.metrics.ObserveAvailability(source, availability.Total(days))
	return now, days, nil
}

func (s *Service) window(doctorID string, now time.Time, days []availability.DaySlots, sel Selection) *Window {
	out := &Window{
		DoctorID:    doctorID,
		GeneratedAt: now,
		Days:        make([]Day, len(days)),
		Selection:   sel,
		TotalSlots:  availability.Total(days),
	}
	for i, slots := range days {
		date := time.Date(now.Year(), now.Month(), now.Day()+i, 0, 0, 0, 0, now.Location())
		out.Days[i] = Day{
			Index:   i,
			DayKey:  availability.DayKey(date),
			Weekday: strings.ToUpper(date.Weekday().String()[:3]),
			Date:    date.Day(),
			Slots:   slots,
		}
	}
	return out
}
