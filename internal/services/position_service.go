package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

// ErrUpsert marks a position write the backend rejected or could not process
var ErrUpsert = errors.New("position upsert failed")

// UpsertError wraps a failed position write
type UpsertError struct {
	PortfolioID string
	Err         error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("failed to save position in portfolio %s: %v", e.PortfolioID, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }

func (e *UpsertError) Is(target error) bool { return target == ErrUpsert }

// UserMessage returns the backend's explanation when there is one
func (e *UpsertError) UserMessage() string {
	var apiErr *APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.UserMessage()
	}
	return "could not save position"
}

// SavedEvent is published after every successful upsert
type SavedEvent struct {
	PortfolioID string
	AssetID     string
	Outcome     models.UpsertOutcome
	Position    models.Position
	At          time.Time
}

// PositionBackend is the part of the backend API that writes positions
type PositionBackend interface {
	UpsertPosition(ctx context.Context, portfolioID string, payload models.UpsertPayload) (*models.UpsertResult, error)
}

// PositionService submits position upserts and notifies subscribers on success
type PositionService struct {
	backend PositionBackend
	log     zerolog.Logger

	mu          sync.RWMutex
	subscribers []func(SavedEvent)
}

func NewPositionService(backend PositionBackend, log zerolog.Logger) *PositionService {
	return &PositionService{
		backend: backend,
		log:     log.With().Str("service", "positions").Logger(),
	}
}

// Subscribe registers fn for SavedEvents. fn runs synchronously after the upsert.
func (s *PositionService) Subscribe(fn func(SavedEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Upsert sends the payload; the backend applies ADD or SET and reports created or updated
func (s *PositionService) Upsert(ctx context.Context, portfolioID string, payload models.UpsertPayload) (*models.UpsertResult, error) {
	portfolioID = strings.TrimSpace(portfolioID)
	if portfolioID == "" {
		return nil, &ValidationError{Fields: FieldErrors{FieldPortfolio: "select a portfolio"}}
	}
	if payload.AssetID == "" {
		return nil, &ValidationError{Fields: FieldErrors{FieldAsset: "select an asset"}}
	}
	mode := string(payload.Mode)
	if mode == "" {
		mode = string(models.MergeAdd)
	}

	result, err := s.backend.UpsertPosition(ctx, portfolioID, payload)
	if err != nil {
		metrics.PositionUpsertsTotal.WithLabelValues("failed", mode).Inc()
		s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Str("asset_id", payload.AssetID).Msg("Position upsert failed")
		return nil, &UpsertError{PortfolioID: portfolioID, Err: err}
	}

	metrics.PositionUpsertsTotal.WithLabelValues(string(result.Mode), mode).Inc()
	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("asset_id", payload.AssetID).
		Str("mode", mode).
		Str("value_mode", string(payload.ValueMode)).
		Str("outcome", string(result.Mode)).
		Msg("Position saved")

	event := SavedEvent{
		PortfolioID: portfolioID,
		AssetID:     payload.AssetID,
		Outcome:     result.Mode,
		Position:    result.Position,
		At:          time.Now(),
	}
	s.mu.RLock()
	subscribers := append([]func(SavedEvent){}, s.subscribers...)
	s.mu.RUnlock()
	for _, fn := range subscribers {
		fn(event)
	}

	return result, nil
}
