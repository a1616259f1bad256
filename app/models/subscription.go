package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyYearly  = "yearly"
)

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

const (
	CategoryEntertainment = "entertainment"
	CategoryNews          = "news"
	CategorySports        = "sports"
	CategoryEducation     = "education"
	CategoryFinance       = "finance"
	CategoryPolitics      = "politics"
	CategoryTechnology    = "technology"
	CategoryHealth        = "health"
	CategoryOther         = "other"
)

const (
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodDebitCard    = "debit_card"
	PaymentMethodPayPal       = "paypal"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodOther        = "other"
)

// Subscription is a recurring payment tracked for a user. RenewalDate is
// derived from StartDate+Frequency when not supplied explicitly; Status is
// re-evaluated lazily on every read path.
type Subscription struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Name          string    `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=3,max=100"`
	Price         float64   `gorm:"type:decimal(10,2);not null" json:"price" validate:"gte=0"`
	Currency      string    `gorm:"type:varchar(3);not null;default:'INR'" json:"currency" validate:"oneof=USD EUR GBP INR JPY"`
	Frequency     string    `gorm:"type:varchar(16)" json:"frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly yearly"`
	Category      string    `gorm:"type:varchar(32);not null" json:"category" validate:"oneof=entertainment news sports education finance politics technology health other"`
	PaymentMethod string    `gorm:"type:varchar(32);not null" json:"payment_method" validate:"oneof=credit_card debit_card paypal bank_transfer other"`
	Status        string    `gorm:"type:varchar(16);not null;default:'active';index" json:"status" validate:"oneof=active expired cancelled"`
	StartDate     time.Time `gorm:"type:timestamp;not null" json:"start_date"`
	RenewalDate   time.Time `gorm:"type:timestamp;not null;index" json:"renewal_date"`
	RemindersSent int64     `gorm:"not null;default:0" json:"reminders_sent"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) Validate() error {
	v := validator.New()

	return v.Struct(s)
}

// IsActive reports whether the subscription status is active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsCancelled reports whether the subscription has been cancelled (terminal)
func (s *Subscription) IsCancelled() bool {
	return s.Status == SubscriptionStatusCancelled
}
