package models

import "time"

// TokenBlacklist stores revoked JWTs until their natural expiry. Rows past
// ExpiresAt are purged opportunistically on lookup.
type TokenBlacklist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"type:varchar(512);not null;index" json:"token"`
	ExpiresAt time.Time `gorm:"type:timestamp;not null;index" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
