package migrations

import (
	"fmt"

	"hubtask/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RunMigrations creates or updates every table the service owns.
func RunMigrations(db *gorm.DB) error {
	logrus.Info("Running migrations...")

	if err := db.AutoMigrate(&models.OAuthToken{}); err != nil {
		return fmt.Errorf("failed to migrate OAuthToken: %w", err)
	}

	if err := db.AutoMigrate(&models.Task{}, &models.TaskMember{}); err != nil {
		return fmt.Errorf("failed to migrate Task: %w", err)
	}

	if err := db.AutoMigrate(&models.Comment{}); err != nil {
		return fmt.Errorf("failed to migrate Comment: %w", err)
	}

	if err := db.AutoMigrate(&models.SyncLog{}); err != nil {
		return fmt.Errorf("failed to migrate SyncLog: %w", err)
	}

	// Vector index backing semantic search.
	if err := db.AutoMigrate(&models.TaskEmbedding{}); err != nil {
		return fmt.Errorf("failed to migrate TaskEmbedding: %w", err)
	}

	logrus.Info("Migrations completed successfully!")
	return nil
}
