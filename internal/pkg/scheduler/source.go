package scheduler

import (
	"time"

	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/models"
)

// dbSource reads subscriptions and owner addresses straight from the
// database so every wake-up observes current state.
type dbSource struct {
	db *gorm.DB
}

// NewDBSource creates a SubscriptionSource backed by GORM.
func NewDBSource(db *gorm.DB) SubscriptionSource {
	return &dbSource{db: db}
}

func (s *dbSource) GetByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *dbSource) GetOwnerEmail(userID uint) (string, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *dbSource) FindActiveRenewingBefore(now, cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.
		Where("status = ? AND renewal_date > ? AND renewal_date <= ?", models.SubscriptionStatusActive, now, cutoff).
		Find(&subs).Error
	return subs, err
}
