package availability

import "time"

// BookedSlotIndex maps a day key to the time labels already booked on that day.
// It is supplied by the doctor record and never mutated here.
type BookedSlotIndex map[string][]string

// IsBooked reports whether the half-hour starting at t is already taken.
// Labels are compared as clock times, so formatting drift ("08:30 PM" vs "8:30 PM")
// cannot make a booked slot look free.
func (b BookedSlotIndex) IsBooked(t time.Time) bool {
	labels := b[DayKey(t)]
	if len(labels) == 0 {
		return false
	}
	label := Label(t)
	want := minuteOfDay(t)
	for _, booked := range labels {
		if booked == label {
			return true
		}
		if got, ok := ParseLabel(booked); ok && got == want {
			return true
		}
	}
	return false
}

// Compute returns exactly Days groups of bookable slots, index-aligned with day
// offsets 0..6 from now. All instants are in now's location.
//
// Day 0 starts at the next hour when now is already past the opening hour, on the
// :30 boundary when now is past the half hour. That rule can land behind now
// (10:45 rounds to 10:30), so day-0 slots before now are dropped.
func Compute(now time.Time, hours WorkingHours, booked BookedSlotIndex) []DaySlots {
	days := make([]DaySlots, Days)
	for i := 0; i < Days; i++ {
		date := now.AddDate(0, 0, i)
		end := time.Date(date.Year(), date.Month(), date.Day(), hours.EndHour, 0, 0, 0, now.Location())

		slots := DaySlots{}
		for cursor := dayStart(now, date, i, hours); cursor.Before(end); cursor = cursor.Add(SlotLength) {
			if cursor.Before(now) {
				continue
			}
			if booked.IsBooked(cursor) {
				continue
			}
			slots = append(slots, TimeSlot{StartsAt: cursor, Label: Label(cursor)})
		}
		days[i] = slots
	}
	return days
}

func dayStart(now, date time.Time, offset int, hours WorkingHours) time.Time {
	if offset > 0 {
		return time.Date(date.Year(), date.Month(), date.Day(), hours.StartHour, 0, 0, 0, now.Location())
	}
	hour := hours.StartHour
	if now.Hour() > hours.StartHour {
		hour = now.Hour() + 1
	}
	minute := 0
	if now.Minute() > 30 {
		minute = 30
	}
	// hour may be 24; time.Date rolls it into tomorrow, which is past end.
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, now.Location())
}

// Total counts the slots across all day groups.
func Total(days []DaySlots) int {
	n := 0
	for _, d := range days {
		n += len(d)
	}
	return n
}
