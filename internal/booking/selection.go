// Package booking holds a patient's in-progress slot selection for a doctor and turns
// it into a booking submission.
package booking

import (
	"fmt"

	"github.com/medibook/patient-portal/internal/availability"
	"github.com/medibook/patient-portal/internal/upstream"
)

// State is the position of a selection in the booking flow.
type State int

const (
	// DaySelected means a day is chosen but no time slot yet.
	DaySelected State = iota
	// SlotSelected means the selection can be submitted.
	SlotSelected
)

func (s State) String() string {
	switch s {
	case SlotSelected:
		return "slot_selected"
	default:
		return "day_selected"
	}
}

// Selection is the day and slot a patient has picked. The zero value is the
// initial state: today, no slot.
type Selection struct {
	DayIndex int                    `json:"day_index"`
	Slot     *availability.TimeSlot `json:"slot,omitempty"`
}

// NewSelection returns the initial selection.
func NewSelection() Selection {
	return Selection{}
}

func (s Selection) State() State {
	if s.Slot != nil {
		return SlotSelected
	}
	return DaySelected
}

// SelectDay moves to day i. Choosing a different day clears the slot; choosing the
// current day again keeps it.
func (s Selection) SelectDay(i int) (Selection, error) {
	if i < 0 || i >= availability.Days {
		return s, &ValidationError{Reason: fmt.Sprintf("day index %d outside 0..%d", i, availability.Days-1)}
	}
	if i == s.DayIndex {
		return s, nil
	}
	return Selection{DayIndex: i}, nil
}

// SelectSlot records slot as the chosen time.
func (s Selection) SelectSlot(slot availability.TimeSlot) Selection {
	s.Slot = &slot
	return s
}

// BuildRequest turns a complete selection into the backend's booking body.
//
// SlotDate is taken from the first slot of the selected day group rather than the
// selected slot. Every slot in a group shares one calendar date, so the two agree.
func BuildRequest(sel Selection, days []availability.DaySlots, doctorID string) (upstream.BookingRequest, error) {
	if sel.Slot == nil {
		return upstream.BookingRequest{}, &ValidationError{Reason: "no time slot selected"}
	}
	if sel.DayIndex < 0 || sel.DayIndex >= len(days) || len(days[sel.DayIndex]) == 0 {
		return upstream.BookingRequest{}, &ValidationError{Reason: "selected day has no available slots"}
	}
	return upstream.BookingRequest{
		DoctorID: doctorID,
		SlotDate: days[sel.DayIndex][0].DayKey(),
		SlotTime: sel.Slot.Label,
	}, nil
}
