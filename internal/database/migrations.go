package database

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// legacyKeys maps preference keys written by older builds to their namespaced form
var legacyKeys = map[string]string{
	"dashboard.assetSort": "folio.dashboard.assetSort",
}

// RunMigrations runs any custom data migrations after schema changes.
// Safe to run multiple times.
func RunMigrations(db *gorm.DB, log zerolog.Logger) error {
	if err := migrateLegacyKeys(db, log); err != nil {
		return err
	}
	return cleanupEmptyPreferences(db, log)
}

// migrateLegacyKeys renames un-namespaced keys unless the namespaced key already exists
func migrateLegacyKeys(db *gorm.DB, log zerolog.Logger) error {
	for oldKey, newKey := range legacyKeys {
		var count int64
		if err := db.Table("preferences").Where("key = ?", newKey).Count(&count).Error; err != nil {
			return err
		}

		if count > 0 {
			result := db.Exec(`DELETE FROM preferences WHERE key = ?`, oldKey)
			if result.Error != nil {
				return result.Error
			}
			continue
		}

		result := db.Exec(`UPDATE preferences SET key = ? WHERE key = ?`, newKey, oldKey)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			log.Info().Str("from", oldKey).Str("to", newKey).Msg("Migrated legacy preference key")
		}
	}
	return nil
}

// cleanupEmptyPreferences drops rows with no value so readers fall back to defaults
func cleanupEmptyPreferences(db *gorm.DB, log zerolog.Logger) error {
	result := db.Exec(`DELETE FROM preferences WHERE value IS NULL OR TRIM(value) = ''`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Warn().Int64("rows", result.RowsAffected).Msg("Removed empty preference rows")
	}
	return nil
}
