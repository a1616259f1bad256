package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/models"
)

// tokenBlacklistRepository implements the TokenBlacklistRepository interface
type tokenBlacklistRepository struct {
	db *gorm.DB
}

// NewTokenBlacklistRepository creates a new token blacklist repository instance
func NewTokenBlacklistRepository(db *gorm.DB) TokenBlacklistRepository {
	return &tokenBlacklistRepository{db: db}
}

// Add records a revoked token until its natural expiry
func (r *tokenBlacklistRepository) Add(token string, expiresAt time.Time) error {
	entry := models.TokenBlacklist{
		Token:     token,
		ExpiresAt: expiresAt,
	}
	return r.db.Create(&entry).Error
}

// IsBlacklisted reports whether the token has been revoked and is still within
// its expiry window. Expired entries are purged opportunistically first; the
// tokens they belong to are no longer valid anyway.
func (r *tokenBlacklistRepository) IsBlacklisted(token string, now time.Time) (bool, error) {
	if _, err := r.PurgeExpired(now); err != nil {
		return false, err
	}

	var count int64
	err := r.db.Model(&models.TokenBlacklist{}).
		Where("token = ? AND expires_at > ?", token, now).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurgeExpired removes blacklist entries whose tokens have expired on their own
func (r *tokenBlacklistRepository) PurgeExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", now).Delete(&models.TokenBlacklist{})
	return result.RowsAffected, result.Error
}
