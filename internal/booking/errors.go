package booking

import "fmt"

// ValidationError is a booking attempt the portal refuses locally. Retrying the same
// request cannot succeed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "booking: " + e.Reason
}

// StaleDataError means the backend refused the booking, usually because the slot was
// taken after availability was computed. Callers should refresh availability.
type StaleDataError struct {
	DoctorID string
	Message  string
	Err      error
}

func (e *StaleDataError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking: doctor %s: availability changed", e.DoctorID)
	}
	return fmt.Sprintf("booking: doctor %s: %s", e.DoctorID, e.Message)
}

func (e *StaleDataError) Unwrap() error { return e.Err }
