package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/models"
	"github.com/subtrackd/subtrackd/internal/pkg/renewal"
)

// Service owns the subscription lifecycle: validation, renewal-date
// derivation, lazy status evaluation and the hand-off to the reminder
// workflow engine.
type Service struct {
	repo Repository
	flow WorkflowTrigger
	now  func() time.Time
}

// NewService creates a subscription service from an injected repository and
// workflow trigger.
func NewService(repo Repository, flow WorkflowTrigger) *Service {
	return &Service{repo: repo, flow: flow, now: time.Now}
}

// NewServiceFromDB creates a subscription service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, flow WorkflowTrigger) *Service {
	return NewService(NewRepository(db), flow)
}

// WithNow overrides the time source (tests).
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates the input, derives the renewal date when absent and
// persists the subscription. The reminder workflow is triggered afterwards;
// a trigger failure never rolls back the persisted row — the reconciliation
// sweep picks the subscription up later.
func (s *Service) Create(ctx context.Context, callerID uint, in CreateInput) (*models.Subscription, error) {
	_ = ctx
	now := s.now()

	if in.StartDate.IsZero() {
		return nil, validationErrorf("start date is required")
	}
	if in.StartDate.After(now) {
		return nil, validationErrorf("start date cannot be in the future")
	}

	currency := in.Currency
	if currency == "" {
		currency = "INR"
	}

	sub := &models.Subscription{
		UserID:        callerID,
		Name:          in.Name,
		Price:         in.Price,
		Currency:      currency,
		Frequency:     in.Frequency,
		Category:      in.Category,
		PaymentMethod: in.PaymentMethod,
		Status:        models.SubscriptionStatusActive,
		StartDate:     in.StartDate,
	}

	if in.RenewalDate != nil {
		sub.RenewalDate = *in.RenewalDate
	} else {
		derived, err := renewal.DeriveRenewalDate(in.StartDate, in.Frequency)
		if err != nil {
			return nil, validationErrorf("frequency is required to derive a renewal date")
		}
		sub.RenewalDate = derived
	}

	// A renewal date already in the past makes the subscription expired on
	// creation; the workflow aborts on its first evaluation.
	sub.Status = renewal.ComputeStatus(sub.RenewalDate, sub.Status, now)

	if err := sub.Validate(); err != nil {
		return nil, wrapValidatorError(err)
	}

	if err := s.repo.Create(sub); err != nil {
		return nil, err
	}

	if sub.IsActive() {
		if err := s.flow.Trigger(sub.ID); err != nil {
			log.Errorf("[Subscription] Failed to trigger reminder workflow for subscription %d: %v", sub.ID, err)
		}
	}

	return sub, nil
}

// GetByID returns a single subscription after an ownership check, with its
// status re-evaluated against the current time.
func (s *Service) GetByID(ctx context.Context, callerID, id uint) (*models.Subscription, error) {
	_ = ctx
	sub, err := s.getOwned(callerID, id)
	if err != nil {
		return nil, err
	}
	s.refreshStatus(sub)
	return sub, nil
}

// ListByUser returns all subscriptions of a user. Callers may only list their
// own subscriptions.
func (s *Service) ListByUser(ctx context.Context, callerID, userID uint) ([]models.Subscription, error) {
	_ = ctx
	if callerID != userID {
		return nil, ErrNotOwner
	}
	subs, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		s.refreshStatus(&subs[i])
	}
	return subs, nil
}

// Update applies an allow-listed partial update under a per-row lock. When
// frequency or start date change and no explicit renewal date is supplied in
// the same request, the renewal date is recomputed.
func (s *Service) Update(ctx context.Context, callerID, id uint, in UpdateInput) (*models.Subscription, error) {
	_ = ctx
	now := s.now()

	sub, err := s.repo.UpdateLocked(id, func(sub *models.Subscription) error {
		if sub.UserID != callerID {
			return ErrNotOwner
		}

		rederive := false
		if in.Name != nil {
			sub.Name = *in.Name
		}
		if in.Price != nil {
			sub.Price = *in.Price
		}
		if in.Currency != nil {
			sub.Currency = *in.Currency
		}
		if in.Frequency != nil {
			sub.Frequency = *in.Frequency
			rederive = true
		}
		if in.Category != nil {
			sub.Category = *in.Category
		}
		if in.PaymentMethod != nil {
			sub.PaymentMethod = *in.PaymentMethod
		}
		if in.StartDate != nil {
			if in.StartDate.After(now) {
				return validationErrorf("start date cannot be in the future")
			}
			sub.StartDate = *in.StartDate
			rederive = true
		}

		if in.RenewalDate != nil {
			sub.RenewalDate = *in.RenewalDate
		} else if rederive {
			derived, derr := renewal.DeriveRenewalDate(sub.StartDate, sub.Frequency)
			if derr != nil {
				return validationErrorf("frequency is required to derive a renewal date")
			}
			sub.RenewalDate = derived
		}

		sub.Status = renewal.ComputeStatus(sub.RenewalDate, sub.Status, now)

		if verr := sub.Validate(); verr != nil {
			return wrapValidatorError(verr)
		}
		return nil
	})
	if err != nil {
		return nil, mapRecordNotFound(err)
	}
	return sub, nil
}

// Cancel sets the status to cancelled. Cancelling an already-cancelled
// subscription is an idempotent no-op reported via the second return value.
func (s *Service) Cancel(ctx context.Context, callerID, id uint) (*models.Subscription, bool, error) {
	_ = ctx
	already := false
	sub, err := s.repo.UpdateLocked(id, func(sub *models.Subscription) error {
		if sub.UserID != callerID {
			return ErrNotOwner
		}
		if sub.IsCancelled() {
			already = true
			return nil
		}
		sub.Status = models.SubscriptionStatusCancelled
		return nil
	})
	if err != nil {
		return nil, false, mapRecordNotFound(err)
	}
	return sub, already, nil
}

// Delete removes the subscription and abandons any in-flight reminder
// workflow. The suspended workflow itself is not interrupted; it aborts on
// its next wake-up once the run state is gone and the row no longer exists.
func (s *Service) Delete(ctx context.Context, callerID, id uint) error {
	_ = ctx
	sub, err := s.getOwned(callerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(sub.ID); err != nil {
		return err
	}
	if err := s.flow.Abandon(sub.ID); err != nil {
		log.Errorf("[Subscription] Failed to abandon reminder workflow for subscription %d: %v", sub.ID, err)
	}
	return nil
}

// UpcomingRenewals returns the caller's active subscriptions renewing within
// the given number of days (default 7).
func (s *Service) UpcomingRenewals(ctx context.Context, callerID uint, withinDays int) ([]models.Subscription, error) {
	_ = ctx
	if withinDays <= 0 {
		withinDays = 7
	}
	now := s.now()
	return s.repo.FindUpcoming(callerID, now, now.AddDate(0, 0, withinDays))
}

func (s *Service) getOwned(callerID, id uint) (*models.Subscription, error) {
	sub, err := s.repo.GetByID(id)
	if err != nil {
		return nil, mapRecordNotFound(err)
	}
	if sub.UserID != callerID {
		return nil, ErrNotOwner
	}
	return sub, nil
}

// refreshStatus re-evaluates the stored status against the current time and
// persists a newly observed expiry. Storage is never trusted to be fresh.
// The write goes through the row lock and recomputes from the locked row, so
// a cancellation committed after the unlocked read wins: cancelled is
// absorbing in ComputeStatus and is never overwritten here.
func (s *Service) refreshStatus(sub *models.Subscription) {
	now := s.now()
	if renewal.ComputeStatus(sub.RenewalDate, sub.Status, now) == sub.Status {
		return
	}
	updated, err := s.repo.UpdateLocked(sub.ID, func(locked *models.Subscription) error {
		locked.Status = renewal.ComputeStatus(locked.RenewalDate, locked.Status, now)
		return nil
	})
	if err != nil {
		log.Errorf("[Subscription] Failed to persist status change for subscription %d: %v", sub.ID, err)
		return
	}
	*sub = *updated
}

func mapRecordNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func wrapValidatorError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &ValidationError{Reason: verrs.Error()}
	}
	return &ValidationError{Reason: err.Error()}
}
