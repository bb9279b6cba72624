// Package doctors serves the doctor directory the patient browses before booking.
package doctors

import (
	"strings"

	"github.com/medibook/patient-portal/internal/availability"
	"github.com/medibook/patient-portal/internal/upstream"
)

// Specialities lists the directory filters offered to patients.
var Specialities = []string{
	"General physician",
	"Gynecologist",
	"Dermatologist",
	"Pediatricians",
	"Neurologist",
	"Gastroenterologist",
}

// Doctor is a bookable doctor and the slots already taken on their calendar.
type Doctor struct {
	ID          string                       `json:"id"`
	Name        string                       `json:"name"`
	Image       string                       `json:"image,omitempty"`
	Speciality  string                       `json:"speciality"`
	Degree      string                       `json:"degree,omitempty"`
	Experience  string                       `json:"experience,omitempty"`
	About       string                       `json:"about,omitempty"`
	Available   bool                         `json:"available"`
	Fees        float64                      `json:"fees"`
	Address     upstream.Address             `json:"address"`
	SlotsBooked availability.BookedSlotIndex `json:"slots_booked"`
	Hours       availability.WorkingHours    `json:"working_hours"`
}

// FromRecord converts a backend record, filling in fallback working hours when the
// record carries none or an unusable window.
func FromRecord(rec upstream.DoctorRecord, fallback availability.WorkingHours) Doctor {
	hours := availability.WorkingHours{StartHour: rec.WorkingHoursStart, EndHour: rec.WorkingHoursEnd}
	if hours.Validate() != nil {
		hours = fallback
	}
	booked := availability.BookedSlotIndex(rec.SlotsBooked)
	if booked == nil {
		booked = availability.BookedSlotIndex{}
	}
	return Doctor{
		ID:          rec.ID,
		Name:        rec.Name,
		Image:       rec.Image,
		Speciality:  rec.Speciality,
		Degree:      rec.Degree,
		Experience:  rec.Experience,
		About:       rec.About,
		Available:   rec.Available,
		Fees:        rec.Fees,
		Address:     rec.Address,
		SlotsBooked: booked,
		Hours:       hours,
	}
}

// FilterBySpeciality returns doctors whose speciality matches, ignoring case.
// An empty speciality returns the full list.
func FilterBySpeciality(all []Doctor, speciality string) []Doctor {
	speciality = strings.TrimSpace(speciality)
	if speciality == "" {
		return all
	}
	out := make([]Doctor, 0, len(all))
	for _, d := range all {
		if strings.EqualFold(d.Speciality, speciality) {
			out = append(out, d)
		}
	}
	return out
}

// Related returns other available doctors sharing the speciality of id.
func Related(all []Doctor, id string) []Doctor {
	var speciality string
	for _, d := range all {
		if d.ID == id {
			speciality = d.Speciality
			break
		}
	}
	if speciality == "" {
		return nil
	}
	var out []Doctor
	for _, d := range all {
		if d.ID != id && d.Available && strings.EqualFold(d.Speciality, speciality) {
			out = append(out, d)
		}
	}
	return out
}
