package models

// DashboardScope identifies the portfolio subtree a summary was computed for
type DashboardScope struct {
	PortfolioID *string `json:"portfolioId"`
	Name        string  `json:"name,omitempty"`
}

type DashboardTotals struct {
	Total          float64 `json:"total"`
	PositionsCount int     `json:"positionsCount"`
}

type PortfolioTotal struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	ParentID *string `json:"parentId"`
	Currency string  `json:"currency,omitempty"`
	Total    float64 `json:"total"`
}

type TypeTotal struct {
	Type  AssetType `json:"type"`
	Total float64   `json:"total"`
}

type AssetTotal struct {
	AssetID     string    `json:"assetId"`
	Name        string    `json:"name"`
	Symbol      *string   `json:"symbol,omitempty"`
	Type        AssetType `json:"type"`
	ProviderRef *string   `json:"providerRef,omitempty"`
	Total       float64   `json:"total"`
}

// DashboardSummary is the backend's pre-aggregated snapshot for a scope.
// The backend guarantees sum(ByType) == sum(ByAsset) == Totals.Total.
type DashboardSummary struct {
	Currency    string           `json:"currency"`
	Scope       DashboardScope   `json:"scope"`
	Totals      DashboardTotals  `json:"totals"`
	ByPortfolio []PortfolioTotal `json:"byPortfolio"`
	ByType      []TypeTotal      `json:"byType"`
	ByAsset     []AssetTotal     `json:"byAsset"`
}

// ScopeID returns the scope portfolio id, or "" for the root scope
func (s *DashboardSummary) ScopeID() string {
	if s.Scope.PortfolioID == nil {
		return ""
	}
	return *s.Scope.PortfolioID
}

// SeriesPoint is one label/value pair of a chart series
type SeriesPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// EnrichedAssetRow is a byAsset entry augmented with weight, live price and logo.
// UnitPrice and Quantity are nil unless a positive live price resolved.
type EnrichedAssetRow struct {
	AssetID     string    `json:"assetId"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Type        AssetType `json:"type"`
	ProviderRef string    `json:"providerRef,omitempty"`
	LogoURL     string    `json:"logoUrl,omitempty"`
	ValueAmount float64   `json:"valueAmount"`
	WeightPct   float64   `json:"weightPct"`
	UnitPrice   *float64  `json:"unitPrice"`
	Quantity    *float64  `json:"quantity"`
}

// EnrichedSummary is the output of the dashboard pipeline for one scope
type EnrichedSummary struct {
	Summary         DashboardSummary   `json:"summary"`
	IsRoot          bool               `json:"isRoot"`
	ByTypeSeries    []SeriesPoint      `json:"byTypeSeries"`
	ChildrenSeries  []SeriesPoint      `json:"childrenSeries"`
	ByAssetSeries   []SeriesPoint      `json:"byAssetSeries"`
	Rows            []EnrichedAssetRow `json:"rows"`
	PricesAvailable bool               `json:"pricesAvailable"`
}

// PortfolioShare is one portfolio's slice of an asset's holdings
type PortfolioShare struct {
	PortfolioID   string   `json:"portfolioId"`
	PortfolioName string   `json:"portfolioName"`
	Quantity      *float64 `json:"quantity"`
	Value         float64  `json:"value"`
	Pct           float64  `json:"pct"`
}

// AssetDetail is the per-asset drill-down view
type AssetDetail struct {
	AssetID         string           `json:"assetId"`
	Name            string           `json:"name"`
	Symbol          string           `json:"symbol"`
	Type            AssetType        `json:"type"`
	ProviderRef     string           `json:"providerRef,omitempty"`
	Currency        string           `json:"currency"`
	Total           float64          `json:"total"`
	WeightPct       float64          `json:"weightPct"`
	UnitPrice       *float64         `json:"unitPrice"`
	Quantity        *float64         `json:"quantity"`
	ByPortfolio     []PortfolioShare `json:"byPortfolio"`
	PortfoliosCount int              `json:"portfoliosCount"`
}
