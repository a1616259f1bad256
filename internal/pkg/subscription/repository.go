package subscription

import (
	"time"

	"github.com/subtrackd/subtrackd/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the subscription service.
type Repository interface {
	Create(sub *models.Subscription) error
	GetByID(id uint) (*models.Subscription, error)
	ListByUser(userID uint) ([]models.Subscription, error)
	Save(sub *models.Subscription) error
	Delete(id uint) error
	// UpdateLocked loads the row under a per-row write lock, applies fn and
	// persists the result in one transaction. Concurrent read-modify-write on
	// the same subscription is serialized here.
	UpdateLocked(id uint, fn func(sub *models.Subscription) error) (*models.Subscription, error)
	FindUpcoming(userID uint, from, to time.Time) ([]models.Subscription, error)
	// FindActiveRenewingBefore returns all active subscriptions renewing in
	// (now, cutoff], regardless of owner. Used by the reconciliation sweep;
	// both bounds come from the caller's clock.
	FindActiveRenewingBefore(now, cutoff time.Time) ([]models.Subscription, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(sub *models.Subscription) error {
	return r.db.Create(sub).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("renewal_date ASC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) Save(sub *models.Subscription) error {
	return r.db.Save(sub).Error
}

func (r *gormRepository) Delete(id uint) error {
	return r.db.Delete(&models.Subscription{}, id).Error
}

func (r *gormRepository) UpdateLocked(id uint, fn func(sub *models.Subscription) error) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sub, id).Error; err != nil {
			return err
		}
		if err := fn(&sub); err != nil {
			return err
		}
		return tx.Save(&sub).Error
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindUpcoming(userID uint, from, to time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("user_id = ? AND status = ? AND renewal_date >= ? AND renewal_date <= ?",
			userID, models.SubscriptionStatusActive, from, to).
		Order("renewal_date ASC").
		Find(&subs).Error
	return subs, err
}

func (r *gormRepository) FindActiveRenewingBefore(now, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.
		Where("status = ? AND renewal_date > ? AND renewal_date <= ?", models.SubscriptionStatusActive, now, cutoff).
		Find(&subs).Error
	return subs, err
}
