package database

import "gorm.io/gorm"

// DB is the global database handle initialized by SetupDatabase
var DB *gorm.DB

// GetDB returns the global database handle
func GetDB() *gorm.DB {
	return DB
}

// SetDB overrides the global handle (used by tests)
func SetDB(db *gorm.DB) {
	DB = db
}
