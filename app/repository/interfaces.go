package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/subtrackd/subtrackd/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// TokenBlacklistRepository defines the interface for revoked-token bookkeeping
type TokenBlacklistRepository interface {
	Add(token string, expiresAt time.Time) error
	IsBlacklisted(token string, now time.Time) (bool, error)
	PurgeExpired(now time.Time) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User           UserRepository
	TokenBlacklist TokenBlacklistRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:           NewUserRepository(db),
		TokenBlacklist: NewTokenBlacklistRepository(db),
	}
}
