package repository

import (
	"fmt"

	"github.com/amirphl/tablecast/models"
	"gorm.io/gorm"
)

// schemaModels lists the tables owned by this service, parents before children
var schemaModels = []any{
	&models.Customer{},
	&models.Branch{},
	&models.MenuItem{},
	&models.Order{},
	&models.OrderItem{},
	&models.MessageTemplate{},
	&models.CampaignRun{},
}

// Migrate creates or updates the service tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(schemaModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
