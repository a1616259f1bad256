package renewal

import (
	"fmt"
	"time"

	"github.com/subtrackd/subtrackd/app/models"
)

// Fixed day-count periods per billing frequency. Deliberately not
// calendar-aware: monthly is always 30 days, yearly always 365.
var periodDays = map[string]int{
	models.FrequencyDaily:   1,
	models.FrequencyWeekly:  7,
	models.FrequencyMonthly: 30,
	models.FrequencyYearly:  365,
}

// PeriodDays returns the fixed renewal period for a frequency. The second
// return value is false for a missing or unknown frequency; callers must not
// derive a renewal date from a zero period.
func PeriodDays(frequency string) (int, bool) {
	days, ok := periodDays[frequency]
	return days, ok
}

// DeriveRenewalDate computes startDate + period(frequency). A missing or
// unknown frequency is an error; deriving from a zero period would yield
// renewalDate == startDate, a subscription expired at birth.
func DeriveRenewalDate(startDate time.Time, frequency string) (time.Time, error) {
	days, ok := periodDays[frequency]
	if !ok {
		return time.Time{}, fmt.Errorf("cannot derive renewal date: unknown frequency %q", frequency)
	}
	return startDate.AddDate(0, 0, days), nil
}

// ComputeStatus evaluates the subscription status at a point in time.
// Cancelled is terminal and absorbing; otherwise a renewal date in the past
// means expired.
func ComputeStatus(renewalDate time.Time, currentStatus string, now time.Time) string {
	if currentStatus == models.SubscriptionStatusCancelled {
		return models.SubscriptionStatusCancelled
	}
	if renewalDate.Before(now) {
		return models.SubscriptionStatusExpired
	}
	return models.SubscriptionStatusActive
}
