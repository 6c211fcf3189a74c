package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

// ErrResolution marks failures to find or create the asset a position attaches to
var ErrResolution = errors.New("asset resolution failed")

// ResolutionError wraps a backend failure while resolving an asset
type ResolutionError struct {
	Kind       string // "manual" or "crypto"
	Identifier string // asset name or symbol
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s asset %q: %v", e.Kind, e.Identifier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// AssetBackend is the part of the backend API the resolver needs
type AssetBackend interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	CreateAsset(ctx context.Context, req models.CreateAssetRequest) (*models.Asset, error)
	GetOrCreateCryptoAsset(ctx context.Context, symbol string) (*models.Asset, models.ResolveOutcome, error)
}

// AssetResolver finds or creates the asset a position is attached to and keeps the
// list of selectable non-crypto assets
type AssetResolver struct {
	backend  AssetBackend
	currency string
	log      zerolog.Logger

	mu     sync.RWMutex
	assets []models.Asset
}

func NewAssetResolver(backend AssetBackend, currency string, log zerolog.Logger) *AssetResolver {
	return &AssetResolver{
		backend:  backend,
		currency: strings.ToUpper(currency),
		log:      log.With().Str("service", "asset_resolver").Logger(),
	}
}

// ResolveManual creates a non-crypto asset and refreshes the selectable list so the new
// asset can be picked. Invalid input fails with a ValidationError before any call.
func (r *AssetResolver) ResolveManual(ctx context.Context, assetType models.AssetType, name, symbol string) (*models.Asset, error) {
	draft := ManualAssetDraft{
		Type:   models.NormalizeAssetType(string(assetType)),
		Name:   strings.TrimSpace(name),
		Symbol: strings.TrimSpace(symbol),
	}
	if errs := ValidateManualAssetDraft(draft); len(errs) > 0 {
		metrics.AssetResolutionsTotal.WithLabelValues("manual", "invalid").Inc()
		return nil, &ValidationError{Fields: errs}
	}

	asset, err := r.backend.CreateAsset(ctx, models.CreateAssetRequest{
		Type:     draft.Type,
		Name:     draft.Name,
		Symbol:   models.NormalizeSymbol(draft.Symbol),
		Currency: r.currency,
	})
	if err == nil && (asset == nil || asset.ID == "") {
		err = errors.New("backend returned no asset id")
	}
	if err != nil {
		metrics.AssetResolutionsTotal.WithLabelValues("manual", "failed").Inc()
		return nil, &ResolutionError{Kind: "manual", Identifier: draft.Name, Err: err}
	}
	metrics.AssetResolutionsTotal.WithLabelValues("manual", string(models.ResolveCreated)).Inc()

	if err := r.RefreshAssets(ctx); err != nil {
		r.log.Warn().Err(err).Str("asset_id", asset.ID).Msg("Asset created but list refresh failed")
		r.appendAsset(*asset)
	}

	r.log.Info().Str("asset_id", asset.ID).Str("type", string(asset.Type)).Msg("Created manual asset")
	return asset, nil
}

// ResolveCrypto gets or creates the crypto asset for symbol. The backend is idempotent
// by symbol; the outcome says whether this call created it.
func (r *AssetResolver) ResolveCrypto(ctx context.Context, symbol string) (*models.Asset, models.ResolveOutcome, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		metrics.AssetResolutionsTotal.WithLabelValues("crypto", "invalid").Inc()
		return nil, "", &ValidationError{Fields: FieldErrors{FieldSymbol: "select a cryptocurrency"}}
	}

	asset, outcome, err := r.backend.GetOrCreateCryptoAsset(ctx, symbol)
	if err == nil && (asset == nil || asset.ID == "") {
		err = errors.New("backend returned no asset id")
	}
	if err != nil {
		metrics.AssetResolutionsTotal.WithLabelValues("crypto", "failed").Inc()
		return nil, "", &ResolutionError{Kind: "crypto", Identifier: symbol, Err: err}
	}
	if outcome == "" {
		outcome = models.ResolveExisting
	}
	metrics.AssetResolutionsTotal.WithLabelValues("crypto", string(outcome)).Inc()

	r.log.Debug().Str("symbol", symbol).Str("asset_id", asset.ID).Str("outcome", string(outcome)).Msg("Resolved crypto asset")
	return asset, outcome, nil
}

// RefreshAssets reloads the selectable non-crypto asset list
func (r *AssetResolver) RefreshAssets(ctx context.Context) error {
	all, err := r.backend.ListAssets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list assets: %w", err)
	}

	selectable := make([]models.Asset, 0, len(all))
	for _, a := range all {
		if !a.Type.IsCrypto() {
			selectable = append(selectable, a)
		}
	}

	r.mu.Lock()
	r.assets = selectable
	r.mu.Unlock()
	return nil
}

func (r *AssetResolver) appendAsset(a models.Asset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.assets {
		if existing.ID == a.ID {
			return
		}
	}
	r.assets = append(r.assets, a)
}

// SelectableAssets returns the cached non-crypto assets
func (r *AssetResolver) SelectableAssets() []models.Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Asset(nil), r.assets...)
}
