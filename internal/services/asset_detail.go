package services

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrAssetNotInSummary is returned when the root summary has no row for the asset
var ErrAssetNotInSummary = errors.New("asset not found in dashboard summary")

type positionLister interface {
	ListPositions(ctx context.Context, assetID string) ([]models.PositionListing, error)
}

// AssetDetailService builds the per-asset drill-down from the root summary, a live price
// and the position list
type AssetDetailService struct {
	summaries SummarySource
	prices    priceFetcher
	positions positionLister
	log       zerolog.Logger
}

func NewAssetDetailService(summaries SummarySource, prices priceFetcher, positions positionLister, log zerolog.Logger) *AssetDetailService {
	return &AssetDetailService{
		summaries: summaries,
		prices:    prices,
		positions: positions,
		log:       log.With().Str("service", "asset_detail").Logger(),
	}
}

// Load returns the detail for assetID. Price and distribution failures degrade to
// empty values; only the summary fetch can fail it.
func (s *AssetDetailService) Load(ctx context.Context, assetID string) (*models.AssetDetail, error) {
	summary, err := s.summaries.GetSummary(ctx, "")
	if err != nil {
		return nil, &SummaryLoadError{Err: err}
	}

	var row *models.AssetTotal
	for i := range summary.ByAsset {
		if summary.ByAsset[i].AssetID == assetID {
			row = &summary.ByAsset[i]
			break
		}
	}
	if row == nil {
		return nil, ErrAssetNotInSummary
	}

	detail := &models.AssetDetail{
		AssetID:  row.AssetID,
		Name:     row.Name,
		Type:     models.NormalizeAssetType(string(row.Type)),
		Currency: summary.Currency,
		Total:    row.Total,
	}
	if row.Symbol != nil {
		detail.Symbol = *row.Symbol
	}
	if row.ProviderRef != nil {
		detail.ProviderRef = models.NormalizeProviderRef(*row.ProviderRef)
	}
	if summary.Totals.Total > 0 {
		detail.WeightPct = row.Total / summary.Totals.Total * 100
	}

	var g errgroup.Group
	var unitPrice *float64
	var shares []models.PortfolioShare

	if detail.Type.IsCrypto() && detail.ProviderRef != "" {
		g.Go(func() error {
			prices, err := s.prices.GetPrices(ctx, []string{detail.ProviderRef}, summary.Currency)
			if err != nil {
				metrics.EnrichmentDegradedTotal.WithLabelValues("price").Inc()
				s.log.Warn().Err(err).Str("asset_id", assetID).Msg("Asset price unavailable")
				return nil
			}
			if p, ok := prices[detail.ProviderRef]; ok && p > 0 {
				unitPrice = &p
			}
			return nil
		})
	}
	g.Go(func() error {
		shares = s.distribution(ctx, assetID)
		return nil
	})
	_ = g.Wait()

	detail.UnitPrice = unitPrice
	if unitPrice != nil {
		qty := detail.Total / *unitPrice
		detail.Quantity = &qty
	}
	detail.ByPortfolio = shares
	detail.PortfoliosCount = len(shares)
	return detail, nil
}

// distribution groups the asset's positions by portfolio. The filtered listing is tried
// first, then the full listing.
func (s *AssetDetailService) distribution(ctx context.Context, assetID string) []models.PortfolioShare {
	listings, err := s.positions.ListPositions(ctx, assetID)
	if err != nil {
		s.log.Debug().Err(err).Msg("Filtered position listing failed, trying full listing")
		listings, err = s.positions.ListPositions(ctx, "")
	}
	if err != nil {
		s.log.Warn().Err(err).Str("asset_id", assetID).Msg("Position distribution unavailable")
		return []models.PortfolioShare{}
	}
	return GroupByPortfolio(listings, assetID)
}

// GroupByPortfolio sums an asset's position values and quantities per portfolio
func GroupByPortfolio(listings []models.PositionListing, assetID string) []models.PortfolioShare {
	byID := map[string]*models.PortfolioShare{}
	var order []string

	for _, p := range listings {
		if p.AssetID != assetID || p.PortfolioID == "" {
			continue
		}
		share, ok := byID[p.PortfolioID]
		if !ok {
			share = &models.PortfolioShare{PortfolioID: p.PortfolioID, PortfolioName: listingPortfolioName(p)}
			byID[p.PortfolioID] = share
			order = append(order, p.PortfolioID)
		}
		share.Value += listingValue(p)
		if p.Quantity != nil && !math.IsNaN(*p.Quantity) && !math.IsInf(*p.Quantity, 0) {
			q := *p.Quantity
			if share.Quantity != nil {
				q += *share.Quantity
			}
			share.Quantity = &q
		}
	}

	var total float64
	for _, id := range order {
		total += byID[id].Value
	}

	out := make([]models.PortfolioShare, 0, len(order))
	for _, id := range order {
		share := *byID[id]
		if total > 0 {
			share.Pct = share.Value / total * 100
		}
		out = append(out, share)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

func listingPortfolioName(p models.PositionListing) string {
	if p.PortfolioName != "" {
		return p.PortfolioName
	}
	if p.Portfolio != nil && p.Portfolio.Name != "" {
		return p.Portfolio.Name
	}
	return "Portfolio"
}

func listingValue(p models.PositionListing) float64 {
	switch {
	case p.Value != nil:
		return *p.Value
	case p.ValueAmount != nil:
		return *p.ValueAmount
	case p.Total != nil:
		return *p.Total
	default:
		return 0
	}
}
