package models

import (
	"strings"
	"time"
)

// PortfolioCategory constrains what kind of positions a portfolio may hold
type PortfolioCategory string

const (
	CategoryGeneral PortfolioCategory = "GENERAL"
	CategoryCrypto  PortfolioCategory = "CRYPTO"
	CategoryMetals  PortfolioCategory = "METALS"
	CategoryETF     PortfolioCategory = "ETF"
	CategoryStocks  PortfolioCategory = "STOCKS"
	CategoryCash    PortfolioCategory = "CASH"
	CategoryOther   PortfolioCategory = "OTHER"
)

// AllPortfolioCategories returns all valid portfolio categories
func AllPortfolioCategories() []PortfolioCategory {
	return []PortfolioCategory{
		CategoryGeneral,
		CategoryCrypto,
		CategoryMetals,
		CategoryETF,
		CategoryStocks,
		CategoryCash,
		CategoryOther,
	}
}

// IsCrypto reports whether positions in this category are crypto positions.
func (c PortfolioCategory) IsCrypto() bool {
	return c == CategoryCrypto
}

// NormalizeCategory maps a raw category string to a PortfolioCategory.
// Empty or unknown values become GENERAL.
func NormalizeCategory(raw string) PortfolioCategory {
	c := PortfolioCategory(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range AllPortfolioCategories() {
		if c == known {
			return c
		}
	}
	return CategoryGeneral
}

// PortfolioNode is one node of the user's portfolio tree
type PortfolioNode struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId,omitempty"`
	ParentID  *string           `json:"parentId"`
	Name      string            `json:"name"`
	Currency  string            `json:"currency,omitempty"`
	Category  PortfolioCategory `json:"category"`
	SortOrder int               `json:"sortOrder"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Children  []PortfolioNode   `json:"children"`
}

// IsRoot returns true for nodes without a parent
func (n PortfolioNode) IsRoot() bool {
	return n.ParentID == nil || *n.ParentID == ""
}

// PortfolioTreeResponse is the backend response for GET portfolios/tree
type PortfolioTreeResponse struct {
	OK    bool            `json:"ok"`
	Roots []PortfolioNode `json:"roots"`
}

// CreatePortfolioRequest is the body for POST portfolios
type CreatePortfolioRequest struct {
	Name      string            `json:"name"`
	ParentID  string            `json:"parentId,omitempty"`
	Category  PortfolioCategory `json:"category,omitempty"`
	Currency  string            `json:"currency,omitempty"`
	SortOrder *int              `json:"sortOrder,omitempty"`
}

// CreatePortfolioResponse is the backend response for POST portfolios
type CreatePortfolioResponse struct {
	OK        bool          `json:"ok"`
	Portfolio PortfolioNode `json:"portfolio"`
}
