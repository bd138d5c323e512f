package database

import (
	"fmt"
	"log"

	"prediclaw/internal/models"
	"prediclaw/internal/services"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
	})

	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established successfully")
	return nil
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate() error {
	return Migrate(DB)
}

// Migrate runs automatic migrations against the given database handle
func Migrate(db *gorm.DB) error {
	// Settlement models first: the ledger and markets are referenced by
	// everything else.
	coreModels := []interface{}{
		&models.Bot{},
		&models.LedgerEntry{},
		&models.Market{},
		&models.MarketOutcome{},
		&models.MarketResolver{},
		&models.Trade{},
		&models.DiscussionPost{},
	}

	for _, model := range coreModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Printf("Warning: migration issue for %T: %v", model, err)
		}
	}

	// Resolution models
	resolutionModels := []interface{}{
		&models.ResolutionVote{},
		&models.Resolution{},
	}

	for _, model := range resolutionModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Printf("Warning: migration issue for %T: %v", model, err)
		}
	}

	// Webhook outbox models
	webhookModels := []interface{}{
		&models.WebhookSubscription{},
		&models.Event{},
		&models.WebhookDelivery{},
		&services.EventSequence{},
	}

	for _, model := range webhookModels {
		if err := db.AutoMigrate(model); err != nil {
			log.Printf("Warning: migration issue for %T: %v", model, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
