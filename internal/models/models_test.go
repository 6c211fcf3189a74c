package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want PortfolioCategory
	}{
		{"upper crypto", "CRYPTO", CategoryCrypto},
		{"lower crypto", "crypto", CategoryCrypto},
		{"padded metals", "  metals ", CategoryMetals},
		{"empty defaults to general", "", CategoryGeneral},
		{"unknown defaults to general", "REAL_ESTATE", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCategory(tt.raw))
		})
	}
}

func TestPortfolioNodeIsRoot(t *testing.T) {
	parent := "p1"
	empty := ""

	assert.True(t, PortfolioNode{ID: "r"}.IsRoot())
	assert.True(t, PortfolioNode{ID: "r", ParentID: &empty}.IsRoot())
	assert.False(t, PortfolioNode{ID: "c", ParentID: &parent}.IsRoot())
}

func TestParseMergeMode(t *testing.T) {
	tests := []struct {
		raw    string
		want   MergeMode
		wantOK bool
	}{
		{"", MergeAdd, true},
		{"add", MergeAdd, true},
		{"SET", MergeSet, true},
		{"replace", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseMergeMode(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPriceQuoteUsable(t *testing.T) {
	ptr := func(f float64) *float64 { return &f }

	tests := []struct {
		name   string
		price  *float64
		want   float64
		wantOK bool
	}{
		{"positive", ptr(50000), 50000, true},
		{"nil", nil, 0, false},
		{"zero", ptr(0), 0, false},
		{"negative", ptr(-3), 0, false},
		{"nan", ptr(math.NaN()), 0, false},
		{"inf", ptr(math.Inf(1)), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PriceQuote{Price: tt.price}.Usable()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpsertPayloadOmitsAbsentFields(t *testing.T) {
	q := 0.5
	payload := UpsertPayload{
		AssetID:   "a1",
		Mode:      MergeAdd,
		ValueMode: ValueModeMarket,
		Quantity:  &q,
	}

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var keys map[string]any
	require.NoError(t, json.Unmarshal(raw, &keys))

	assert.Equal(t, "MARKET", keys["valueMode"])
	assert.Equal(t, 0.5, keys["quantity"])
	assert.NotContains(t, keys, "valueAmount")
	assert.NotContains(t, keys, "valueCurrency")
	assert.NotContains(t, keys, "costAmount")
	assert.NotContains(t, keys, "notes")
}

func TestDashboardSummaryDecode(t *testing.T) {
	body := `{
		"currency": "EUR",
		"scope": {"portfolioId": null},
		"totals": {"total": 1000, "positionsCount": 1},
		"byPortfolio": [{"id": "root", "name": "Main", "parentId": null, "total": 1000}],
		"byType": [{"type": "CRYPTO", "total": 1000}],
		"byAsset": [{"assetId": "btc", "name": "Bitcoin", "symbol": "BTC", "type": "CRYPTO", "providerRef": "bitcoin", "total": 1000}]
	}`

	var s DashboardSummary
	require.NoError(t, json.Unmarshal([]byte(body), &s))

	assert.Equal(t, "", s.ScopeID())
	assert.Nil(t, s.ByPortfolio[0].ParentID)
	require.NotNil(t, s.ByAsset[0].ProviderRef)
	assert.Equal(t, "bitcoin", *s.ByAsset[0].ProviderRef)
	assert.Equal(t, AssetTypeCrypto, s.ByAsset[0].Type)
}
