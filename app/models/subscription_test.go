package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSubscription() Subscription {
	start := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	return Subscription{
		UserID:        1,
		Name:          "Spotify",
		Price:         9.99,
		Currency:      "USD",
		Frequency:     FrequencyMonthly,
		Category:      CategoryEntertainment,
		PaymentMethod: PaymentMethodPayPal,
		Status:        SubscriptionStatusActive,
		StartDate:     start,
		RenewalDate:   start.AddDate(0, 0, 30),
	}
}

func TestSubscriptionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Subscription)
		wantErr bool
	}{
		{"Valid", func(s *Subscription) {}, false},
		{"Empty name", func(s *Subscription) { s.Name = "" }, true},
		{"Name too short", func(s *Subscription) { s.Name = "ab" }, true},
		{"Negative price", func(s *Subscription) { s.Price = -1 }, true},
		{"Unknown currency", func(s *Subscription) { s.Currency = "BTC" }, true},
		{"Unknown frequency", func(s *Subscription) { s.Frequency = "hourly" }, true},
		{"Missing frequency is allowed", func(s *Subscription) { s.Frequency = "" }, false},
		{"Unknown category", func(s *Subscription) { s.Category = "gaming" }, true},
		{"Unknown payment method", func(s *Subscription) { s.PaymentMethod = "cash" }, true},
		{"Unknown status", func(s *Subscription) { s.Status = "paused" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubscription()
			tt.mutate(&sub)
			err := sub.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubscriptionStatusHelpers(t *testing.T) {
	sub := validSubscription()
	assert.True(t, sub.IsActive())
	assert.False(t, sub.IsCancelled())

	sub.Status = SubscriptionStatusCancelled
	assert.False(t, sub.IsActive())
	assert.True(t, sub.IsCancelled())

	sub.Status = SubscriptionStatusExpired
	assert.False(t, sub.IsActive())
	assert.False(t, sub.IsCancelled())
}
