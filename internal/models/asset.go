package models

import (
	"strings"
)

// AssetType is the instrument type of an asset
type AssetType string

const (
	AssetTypeCrypto AssetType = "CRYPTO"
	AssetTypeMetal  AssetType = "METAL"
	AssetTypeETF    AssetType = "ETF"
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeCash   AssetType = "CASH"
	AssetTypeOther  AssetType = "OTHER"
)

// ManualAssetTypes returns the asset types a user may create by hand.
// CRYPTO assets only come from the catalog.
func ManualAssetTypes() []AssetType {
	return []AssetType{
		AssetTypeMetal,
		AssetTypeETF,
		AssetTypeStock,
		AssetTypeCash,
		AssetTypeOther,
	}
}

// NormalizeAssetType maps a raw type to an AssetType, keeping unknown values upper-cased
// so the backend stays the authority on the full type list.
func NormalizeAssetType(raw string) AssetType {
	return AssetType(strings.ToUpper(strings.TrimSpace(raw)))
}

// IsCrypto returns true for CRYPTO assets
func (t AssetType) IsCrypto() bool {
	return t == AssetTypeCrypto
}

type Asset struct {
	ID          string    `json:"id"`
	Type        AssetType `json:"type"`
	Name        string    `json:"name"`
	Symbol      *string   `json:"symbol,omitempty"`
	Currency    string    `json:"currency"`
	ProviderRef *string   `json:"providerRef,omitempty"`
}

// AssetListResponse is the backend response for GET assets
type AssetListResponse struct {
	OK     bool    `json:"ok"`
	Assets []Asset `json:"assets"`
}

// CreateAssetRequest is the body for POST assets
type CreateAssetRequest struct {
	Type     AssetType `json:"type"`
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol,omitempty"`
	Currency string    `json:"currency,omitempty"`
}

// CreateAssetResponse is the backend response for POST assets
type CreateAssetResponse struct {
	OK    bool  `json:"ok"`
	Asset Asset `json:"asset"`
}

// ResolveOutcome tells whether a get-or-create call created the asset
type ResolveOutcome string

const (
	ResolveCreated  ResolveOutcome = "created"
	ResolveExisting ResolveOutcome = "existing"
)

// CryptoAssetRequest is the body for POST assets/crypto
type CryptoAssetRequest struct {
	Symbol string `json:"symbol"`
}

// CryptoAssetResponse is the backend response for POST assets/crypto
type CryptoAssetResponse struct {
	OK    bool           `json:"ok"`
	Mode  ResolveOutcome `json:"mode"`
	Asset Asset          `json:"asset"`
}

// CryptoCatalogItem is one entry of the crypto catalog
type CryptoCatalogItem struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	ProviderRef string `json:"providerRef"`
	LogoURL     string `json:"logoUrl,omitempty"`
}

// CryptoCatalogResponse is the backend response for GET crypto/catalog
type CryptoCatalogResponse struct {
	OK       bool                `json:"ok"`
	Provider string              `json:"provider"`
	Cryptos  []CryptoCatalogItem `json:"cryptos"`
}

// NormalizeProviderRef trims and lower-cases a price provider id
func NormalizeProviderRef(ref string) string {
	return strings.ToLower(strings.TrimSpace(ref))
}

// NormalizeSymbol trims and upper-cases a display symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
