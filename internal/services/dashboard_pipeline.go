package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrSummaryLoad marks a failed scope summary fetch; the scope cannot be shown
var ErrSummaryLoad = errors.New("dashboard summary load failed")

// SummaryLoadError wraps the summary fetch failure. errors.Is(err, ErrUnauthorized)
// tells the caller to send the user to login.
type SummaryLoadError struct {
	PortfolioID string
	Err         error
}

func (e *SummaryLoadError) Error() string {
	scope := e.PortfolioID
	if scope == "" {
		scope = "root"
	}
	return fmt.Sprintf("failed to load dashboard for scope %s: %v", scope, e.Err)
}

func (e *SummaryLoadError) Unwrap() error { return e.Err }

func (e *SummaryLoadError) Is(target error) bool { return target == ErrSummaryLoad }

// SummarySource serves pre-aggregated dashboard summaries
type SummarySource interface {
	GetSummary(ctx context.Context, portfolioID string) (*models.DashboardSummary, error)
}

type priceFetcher interface {
	GetPrices(ctx context.Context, providerRefs []string, vs string) (map[string]float64, error)
}

type logoSource interface {
	Logos(ctx context.Context) map[string]string
	Snapshot() (map[string]string, bool)
}

// Pipeline loads a scope summary and enriches it with live prices and logos
type Pipeline struct {
	summaries SummarySource
	prices    priceFetcher
	logos     logoSource
	log       zerolog.Logger
}

func NewPipeline(summaries SummarySource, prices priceFetcher, logos logoSource, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		summaries: summaries,
		prices:    prices,
		logos:     logos,
		log:       log.With().Str("service", "dashboard").Logger(),
	}
}

// LoadScope runs the pipeline for portfolioID ("" for the root scope). Only the summary
// fetch can fail it; price and logo problems degrade the rows instead.
func (p *Pipeline) LoadScope(ctx context.Context, portfolioID string) (*models.EnrichedSummary, error) {
	start := time.Now()
	defer func() {
		metrics.ScopeLoadDuration.Observe(time.Since(start).Seconds())
	}()

	// the catalog fetch runs next to the summary fetch; waiting for it stops once the summary is in
	g, gctx := errgroup.WithContext(ctx)
	logoCtx, stopLogoWait := context.WithCancel(gctx)
	defer stopLogoWait()

	var summary *models.DashboardSummary
	var logos map[string]string
	g.Go(func() error {
		defer stopLogoWait()
		s, err := p.summaries.GetSummary(gctx, portfolioID)
		if err != nil {
			return &SummaryLoadError{PortfolioID: portfolioID, Err: err}
		}
		summary = s
		return nil
	})
	g.Go(func() error {
		logos = p.logos.Logos(logoCtx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := BuildEnrichedSummary(summary, portfolioID)

	refs := CryptoProviderRefs(out.Rows)
	if len(refs) > 0 {
		prices, err := p.prices.GetPrices(ctx, refs, summary.Currency)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			metrics.EnrichmentDegradedTotal.WithLabelValues("price").Inc()
			p.log.Warn().Err(err).Int("ids", len(refs)).Msg("Price enrichment failed, serving rows without prices")
			prices = nil
		} else {
			out.PricesAvailable = true
		}
		MergePrices(out.Rows, prices)
	}

	if len(logos) == 0 {
		if snap, ok := p.logos.Snapshot(); ok {
			logos = snap
		}
	}
	MergeLogos(out.Rows, logos)

	return out, nil
}

// BuildEnrichedSummary derives the scope flag, chart series and un-priced rows from a summary
func BuildEnrichedSummary(summary *models.DashboardSummary, requestedID string) *models.EnrichedSummary {
	scopeID := summary.ScopeID()
	if scopeID == "" {
		scopeID = requestedID
	}

	isRoot := scopeID == ""
	if scopeID == "" {
		// root scope without an id: the root entry is the one without a parent
		for _, bp := range summary.ByPortfolio {
			if bp.ParentID == nil {
				scopeID = bp.ID
				break
			}
		}
	} else {
		for _, bp := range summary.ByPortfolio {
			if bp.ID == scopeID {
				isRoot = bp.ParentID == nil
				break
			}
		}
	}

	out := &models.EnrichedSummary{
		Summary:        *summary,
		IsRoot:         isRoot,
		ByTypeSeries:   make([]models.SeriesPoint, 0, len(summary.ByType)),
		ChildrenSeries: []models.SeriesPoint{},
		ByAssetSeries:  make([]models.SeriesPoint, 0, len(summary.ByAsset)),
		Rows:           make([]models.EnrichedAssetRow, 0, len(summary.ByAsset)),
	}

	for _, t := range summary.ByType {
		out.ByTypeSeries = append(out.ByTypeSeries, models.SeriesPoint{Label: string(t.Type), Value: t.Total})
	}
	for _, bp := range summary.ByPortfolio {
		if scopeID != "" && bp.ParentID != nil && *bp.ParentID == scopeID {
			out.ChildrenSeries = append(out.ChildrenSeries, models.SeriesPoint{Label: bp.Name, Value: bp.Total})
		}
	}

	total := summary.Totals.Total
	for _, a := range summary.ByAsset {
		row := models.EnrichedAssetRow{
			AssetID:     a.AssetID,
			Name:        a.Name,
			Type:        models.NormalizeAssetType(string(a.Type)),
			ValueAmount: a.Total,
		}
		if a.Symbol != nil {
			row.Symbol = *a.Symbol
		}
		if a.ProviderRef != nil {
			row.ProviderRef = models.NormalizeProviderRef(*a.ProviderRef)
		}
		if total > 0 {
			row.WeightPct = a.Total / total * 100
		}
		out.Rows = append(out.Rows, row)

		label := row.Symbol
		if label == "" {
			label = row.Name
		}
		out.ByAssetSeries = append(out.ByAssetSeries, models.SeriesPoint{Label: label, Value: a.Total})
	}

	return out
}

// CryptoProviderRefs returns the distinct lower-cased provider ids of CRYPTO rows
func CryptoProviderRefs(rows []models.EnrichedAssetRow) []string {
	var refs []string
	for _, r := range rows {
		if r.Type.IsCrypto() && r.ProviderRef != "" {
			refs = append(refs, r.ProviderRef)
		}
	}
	return NormalizeProviderRefs(refs)
}

// MergePrices sets unit price and derived quantity on CRYPTO rows with a usable price.
// Every other row ends with nil price and quantity.
func MergePrices(rows []models.EnrichedAssetRow, prices map[string]float64) {
	for i := range rows {
		rows[i].UnitPrice = nil
		rows[i].Quantity = nil
		if !rows[i].Type.IsCrypto() || rows[i].ProviderRef == "" {
			continue
		}
		price, ok := prices[models.NormalizeProviderRef(rows[i].ProviderRef)]
		if !ok {
			continue
		}
		if q, ok := (models.PriceQuote{Price: &price}).Usable(); ok {
			unit := q
			qty := rows[i].ValueAmount / unit
			rows[i].UnitPrice = &unit
			rows[i].Quantity = &qty
		}
	}
}

// MergeLogos fills LogoURL by provider id
func MergeLogos(rows []models.EnrichedAssetRow, logos map[string]string) {
	for i := range rows {
		if rows[i].ProviderRef == "" {
			continue
		}
		if url, ok := logos[models.NormalizeProviderRef(rows[i].ProviderRef)]; ok {
			rows[i].LogoURL = url
		}
	}
}
