package config

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bellapacxx/bingo-live/models"
	"github.com/bellapacxx/bingo-live/utils/logger"
)

// SetupDatabase connects to postgres and runs migrations.
func SetupDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Card{},
		&models.Game{},
		&models.CurrentGame{},
		&models.Ownership{},
	); err != nil {
		return nil, err
	}

	logger.Infof("database connected and migrated")
	return db, nil
}
