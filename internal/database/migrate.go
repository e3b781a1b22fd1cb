package database

import (
	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/models"
)

// Migrate creates or updates the messaging schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Message{},
		&models.Discussion{},
		&models.Comment{},
		&models.DeletionRecord{},
		&models.Notification{},
		&models.UploadRecord{},
	)
}
