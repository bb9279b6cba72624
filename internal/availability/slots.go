// Package availability computes the rolling window of bookable appointment slots for a doctor.
package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// Days is the number of calendar days in the booking window, today included.
	Days = 7
	// SlotLength is the duration of one bookable appointment.
	SlotLength = 30 * time.Minute

	DefaultStartHour = 10
	DefaultEndHour   = 21

	// LabelLayout renders slot labels the way the booking backend stores them ("10:00 AM").
	LabelLayout = "3:04 PM"
)

// Clock supplies the current instant. Callers inject it so the window is reproducible.
type Clock func() time.Time

// WorkingHours is a doctor's daily bookable window, [StartHour:00, EndHour:00).
type WorkingHours struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// DefaultWorkingHours returns the clinic-wide 10:00-21:00 window.
func DefaultWorkingHours() WorkingHours {
	return WorkingHours{StartHour: DefaultStartHour, EndHour: DefaultEndHour}
}

// Validate rejects windows that cannot produce a slot.
func (w WorkingHours) Validate() error {
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return fmt.Errorf("availability: invalid working hours %d-%d", w.StartHour, w.EndHour)
	}
	return nil
}

// TimeSlot is one bookable half-hour window.
type TimeSlot struct {
	StartsAt time.Time `json:"datetime"`
	Label    string    `json:"time"`
}

// DayKey returns the slot's day key.
func (s TimeSlot) DayKey() string {
	return DayKey(s.StartsAt)
}

// DaySlots is one calendar day's bookable windows in ascending order.
type DaySlots []TimeSlot

// Find returns the slot with the given label.
func (d DaySlots) Find(label string) (TimeSlot, bool) {
	want, structured := ParseLabel(label)
	for _, slot := range d {
		if slot.Label == label {
			return slot, true
		}
		if structured && minuteOfDay(slot.StartsAt) == want {
			return slot, true
		}
	}
	return TimeSlot{}, false
}

// DayKey formats t as "{day}_{month}_{year}" without zero padding, e.g. "5_3_2025".
func DayKey(t time.Time) string {
	return fmt.Sprintf("%d_%d_%d", t.Day(), int(t.Month()), t.Year())
}

// ParseDayKey parses a day key into midnight of that date in loc.
func ParseDayKey(key string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(key), "_")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("availability: malformed day key %q", key)
	}
	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return time.Time{}, fmt.Errorf("availability: malformed day key %q: %w", key, err)
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("availability: day key %q out of range", key)
	}
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("availability: day key %q is not a calendar date", key)
	}
	return t, nil
}

// Label renders the clock time of t, e.g. "8:30 PM".
func Label(t time.Time) string {
	return t.Format(LabelLayout)
}

var labelLayouts = []string{"3:04PM", "15:04"}

// ParseLabel converts a stored time label into minutes after midnight. It accepts
// zero-padded and unpadded 12-hour labels in any case ("08:30 PM", "8:30pm") and
// 24-hour labels ("20:30").
func ParseLabel(label string) (int, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	normalized = strings.NewReplacer(" ", "", ".", "", "\u202f", "").Replace(normalized)
	if normalized == "" {
		return 0, false
	}
	for _, layout := range labelLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return minuteOfDay(t), true
		}
	}
	return 0, false
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
