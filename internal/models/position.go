package models

import (
	"strings"
	"time"
)

// ValueMode says how a position's value is captured
type ValueMode string

const (
	ValueModeManual ValueMode = "MANUAL" // user declares a monetary amount
	ValueModeMarket ValueMode = "MARKET" // user declares a quantity, value comes from live prices
)

// MergeMode says how an upsert is applied to an existing position
type MergeMode string

const (
	MergeAdd MergeMode = "ADD" // accumulate onto the existing position
	MergeSet MergeMode = "SET" // replace the existing position
)

// ParseMergeMode accepts ADD/SET in any case; empty defaults to ADD.
func ParseMergeMode(raw string) (MergeMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "", "ADD":
		return MergeAdd, true
	case "SET":
		return MergeSet, true
	default:
		return "", false
	}
}

// ParseValueMode accepts MANUAL/MARKET in any case
func ParseValueMode(raw string) (ValueMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MANUAL":
		return ValueModeManual, true
	case "MARKET":
		return ValueModeMarket, true
	default:
		return "", false
	}
}

type Position struct {
	ID            string    `json:"id"`
	PortfolioID   string    `json:"portfolioId"`
	AssetID       string    `json:"assetId"`
	ValueMode     ValueMode `json:"valueMode"`
	ValueAmount   *float64  `json:"valueAmount"`
	ValueCurrency *string   `json:"valueCurrency"`
	Quantity      *float64  `json:"quantity"`
	CostAmount    *float64  `json:"costAmount"`
	CostCurrency  *string   `json:"costCurrency"`
	Notes         *string   `json:"notes"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// UpsertPayload is the body for POST portfolios/{id}/positions.
// Only the fields required by the valuation mode are set; the rest are omitted on the wire.
type UpsertPayload struct {
	AssetID       string    `json:"assetId"`
	Mode          MergeMode `json:"mode"`
	ValueMode     ValueMode `json:"valueMode"`
	ValueAmount   *float64  `json:"valueAmount,omitempty"`
	ValueCurrency *string   `json:"valueCurrency,omitempty"`
	Quantity      *float64  `json:"quantity,omitempty"`
	CostAmount    *float64  `json:"costAmount,omitempty"`
	CostCurrency  *string   `json:"costCurrency,omitempty"`
	Notes         *string   `json:"notes,omitempty"`
}

// UpsertOutcome is reported by the backend after an upsert
type UpsertOutcome string

const (
	UpsertCreated UpsertOutcome = "created"
	UpsertUpdated UpsertOutcome = "updated"
)

// UpsertResult is the backend response for an upsert
type UpsertResult struct {
	OK       bool          `json:"ok"`
	Mode     UpsertOutcome `json:"mode"`
	Position Position      `json:"position"`
}

// PositionListResponse is the backend response for position listings
type PositionListResponse struct {
	OK        bool              `json:"ok"`
	Positions []PositionListing `json:"positions"`
}

// PositionListing is a position as returned by listing endpoints, which may embed
// the portfolio and a computed value.
type PositionListing struct {
	Position
	PortfolioName string         `json:"portfolioName,omitempty"`
	Value         *float64       `json:"value,omitempty"`
	Total         *float64       `json:"total,omitempty"`
	Portfolio     *PortfolioStub `json:"portfolio,omitempty"`
}

// PortfolioStub is the minimal portfolio shape embedded in other payloads
type PortfolioStub struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// AssetStub is the minimal asset shape embedded in other payloads
type AssetStub struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol,omitempty"`
	Name   string `json:"name,omitempty"`
}

// PositionLog is an audit entry written by the backend for every market upsert
type PositionLog struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	PortfolioID   string         `json:"portfolioId"`
	AssetID       string         `json:"assetId"`
	Action        MergeMode      `json:"action"`
	ValueMode     ValueMode      `json:"valueMode"`
	OldQuantity   *string        `json:"oldQuantity"`
	DeltaQuantity string         `json:"deltaQuantity"`
	NewQuantity   string         `json:"newQuantity"`
	CreatedAt     time.Time      `json:"createdAt"`
	Asset         *AssetStub     `json:"asset,omitempty"`
	Portfolio     *PortfolioStub `json:"portfolio,omitempty"`
}

// PositionLogQuery filters the position log listing
type PositionLogQuery struct {
	PortfolioID string
	AssetID     string
	Limit       int
	Offset      int
}

// PositionLogPage is the backend response for GET logs
type PositionLogPage struct {
	Items []PositionLog `json:"items"`
	Count int           `json:"count"`
}
