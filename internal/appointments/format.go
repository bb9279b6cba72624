package appointments

import (
	"time"

	"github.com/medibook/patient-portal/internal/availability"
)

// FormatSlotDate renders a day key such as "5_3_2025" as "5 Mar 2025". Keys that do
// not parse are returned unchanged.
func FormatSlotDate(dayKey string) string {
	t, err := availability.ParseDayKey(dayKey, time.UTC)
	if err != nil {
		return dayKey
	}
	return t.Format("2 Jan 2006")
}
