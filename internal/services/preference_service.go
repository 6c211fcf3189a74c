package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetSortPreferenceKey is where the dashboard row order is persisted
const AssetSortPreferenceKey = "folio.dashboard.assetSort"

// PreferenceService stores client-local settings as JSON rows
type PreferenceService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewPreferenceService(db *gorm.DB, log zerolog.Logger) *PreferenceService {
	return &PreferenceService{
		db:  db,
		log: log.With().Str("service", "preferences").Logger(),
	}
}

// AssetSort returns the stored row order. Missing, unreadable or invalid values give
// DefaultAssetSort; this never fails.
func (s *PreferenceService) AssetSort(ctx context.Context) AssetSort {
	var order AssetSort
	found, err := s.get(ctx, AssetSortPreferenceKey, &order)
	if err != nil {
		s.log.Warn().Err(err).Str("key", AssetSortPreferenceKey).Msg("Stored sort order unreadable, using default")
		return DefaultAssetSort
	}
	if !found {
		return DefaultAssetSort
	}
	if err := order.Validate(); err != nil {
		s.log.Warn().Err(err).Str("key", AssetSortPreferenceKey).Msg("Stored sort order invalid, using default")
		return DefaultAssetSort
	}
	return order
}

// SetAssetSort persists the row order
func (s *PreferenceService) SetAssetSort(ctx context.Context, order AssetSort) error {
	if err := order.Validate(); err != nil {
		return err
	}
	return s.put(ctx, AssetSortPreferenceKey, order)
}

func (s *PreferenceService) get(ctx context.Context, key string, out any) (bool, error) {
	var pref models.Preference
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&pref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read preference %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(pref.Value), out); err != nil {
		return false, fmt.Errorf("failed to decode preference %s: %w", key, err)
	}
	return true, nil
}

func (s *PreferenceService) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}
	pref := models.Preference{Key: key, Value: string(raw), UpdatedAt: time.Now()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	return nil
}
