package renewal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/subtrackd/subtrackd/app/models"
)

func TestDeriveRenewalDate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		frequency string
		want      time.Time
		wantErr   bool
	}{
		{"Daily", models.FrequencyDaily, start.AddDate(0, 0, 1), false},
		{"Weekly", models.FrequencyWeekly, start.AddDate(0, 0, 7), false},
		{"Monthly is 30 fixed days", models.FrequencyMonthly, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), false},
		{"Yearly", models.FrequencyYearly, start.AddDate(0, 0, 365), false},
		{"Empty frequency", "", time.Time{}, true},
		{"Unknown frequency", "biweekly", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveRenewalDate(start, tt.frequency)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPeriodDays(t *testing.T) {
	tests := []struct {
		frequency string
		days      int
		ok        bool
	}{
		{models.FrequencyDaily, 1, true},
		{models.FrequencyWeekly, 7, true},
		{models.FrequencyMonthly, 30, true},
		{models.FrequencyYearly, 365, true},
		{"", 0, false},
		{"quarterly", 0, false},
	}

	for _, tt := range tests {
		days, ok := PeriodDays(tt.frequency)
		assert.Equal(t, tt.days, days, "frequency %q", tt.frequency)
		assert.Equal(t, tt.ok, ok, "frequency %q", tt.frequency)
	}
}

func TestComputeStatus(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		renewalDate time.Time
		current     string
		want        string
	}{
		{"Future renewal stays active", now.AddDate(0, 0, 10), models.SubscriptionStatusActive, models.SubscriptionStatusActive},
		{"Past renewal expires", now.AddDate(0, 0, -1), models.SubscriptionStatusActive, models.SubscriptionStatusExpired},
		{"Renewal exactly now is not expired", now, models.SubscriptionStatusActive, models.SubscriptionStatusActive},
		{"Cancelled is absorbing with future renewal", now.AddDate(0, 0, 10), models.SubscriptionStatusCancelled, models.SubscriptionStatusCancelled},
		{"Cancelled is never flipped to expired", now.AddDate(0, 0, -10), models.SubscriptionStatusCancelled, models.SubscriptionStatusCancelled},
		{"Expired with past renewal stays expired", now.AddDate(0, 0, -10), models.SubscriptionStatusExpired, models.SubscriptionStatusExpired},
		{"Expired recovers when renewal moved forward", now.AddDate(0, 0, 5), models.SubscriptionStatusExpired, models.SubscriptionStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStatus(tt.renewalDate, tt.current, now))
		})
	}
}
