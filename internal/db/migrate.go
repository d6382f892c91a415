package db

import (
	"fmt"

	"github.com/pactops/fieldops/internal/config"
	"github.com/pactops/fieldops/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns the list of all GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.TaskBudget{},
		&models.BudgetTransaction{},
		&models.BudgetAlert{},
		&models.Notification{},
		&models.Profile{},
		&models.Project{},
		&models.ProjectMember{},
		&models.SiteVisit{},
		&models.UserSettings{},
		&models.EmailLog{},
	}
}

// AutoMigrate creates or updates all fieldops tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedProjects upserts Project rows from configuration.
func SeedProjects(db *gorm.DB, projects []config.ProjectConfig) error {
	for _, pc := range projects {
		project := models.Project{
			ID:      pc.ID,
			Name:    pc.Name,
			Country: pc.Country,
			Active:  true,
		}

		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "country", "active"}),
		}).Create(&project)
		if result.Error != nil {
			return fmt.Errorf("db: seed project %q: %w", pc.Name, result.Error)
		}
	}
	return nil
}
