package database

import (
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Initialize opens the client-local preference database and migrates its schema
func Initialize(dbPath string, log zerolog.Logger) error {
	db, err := Open(dbPath)
	if err != nil {
		return err
	}
	DB = db

	log.Info().Str("path", dbPath).Msg("Database connected successfully")

	if err := RunMigrations(DB, log); err != nil {
		return err
	}

	log.Info().Msg("Database migration completed")
	return nil
}

// Open connects to dbPath and auto-migrates the schema without touching the package global.
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&models.Preference{}); err != nil {
		return nil, err
	}
	return db, nil
}

func GetDB() *gorm.DB {
	return DB
}
