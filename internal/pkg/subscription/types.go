package subscription

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound means no subscription exists for the given id.
	ErrNotFound = errors.New("subscription not found")
	// ErrNotOwner means the caller does not own the subscription.
	ErrNotOwner = errors.New("caller is not the subscription owner")
)

// ValidationError reports rejected input on create/update. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// CreateInput carries the caller-writable fields for a new subscription.
// Owner and status are never taken from the request.
type CreateInput struct {
	Name          string     `json:"name"`
	Price         float64    `json:"price"`
	Currency      string     `json:"currency"`
	Frequency     string     `json:"frequency"`
	Category      string     `json:"category"`
	PaymentMethod string     `json:"payment_method"`
	StartDate     time.Time  `json:"start_date"`
	RenewalDate   *time.Time `json:"renewal_date,omitempty"`
}

// UpdateInput is the allow-listed partial update. Nil fields are untouched.
// Status and user id are deliberately absent.
type UpdateInput struct {
	Name          *string    `json:"name,omitempty"`
	Price         *float64   `json:"price,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	Frequency     *string    `json:"frequency,omitempty"`
	Category      *string    `json:"category,omitempty"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	StartDate     *time.Time `json:"start_date,omitempty"`
	RenewalDate   *time.Time `json:"renewal_date,omitempty"`
}

// WorkflowTrigger starts and abandons reminder workflows for subscriptions.
// Triggering is idempotent per subscription id.
type WorkflowTrigger interface {
	Trigger(subscriptionID uint) error
	Abandon(subscriptionID uint) error
}
