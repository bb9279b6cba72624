package payments

import (
	"errors"
	"fmt"
)

// ErrUnknownPlan is returned for a plan id that is not offered.
var ErrUnknownPlan = errors.New("payments: unknown premium plan")

// Plan is a premium subscription option.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Months      int    `json:"months"`
}

var plans = []Plan{
	{ID: "1month", Name: "One month", AmountCents: 999, Months: 1},
	{ID: "3months", Name: "Three months", AmountCents: 2499, Months: 3},
	{ID: "1year", Name: "One year", AmountCents: 8999, Months: 12},
}

// Plans returns the offered plans, shortest first.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func LookupPlan(id string) (Plan, error) {
	for _, p := range plans {
		if p.ID == id {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPlan, id)
}

// Amount is the price in major currency units, the form the backend expects.
func (p Plan) Amount() float64 {
	return float64(p.AmountCents) / 100
}

// FormatPrice renders cents with a currency symbol, e.g. "$24.99".
func FormatPrice(symbol string, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%s%d.%02d", sign, symbol, cents/100, cents%100)
}
