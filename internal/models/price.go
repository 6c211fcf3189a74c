package models

import (
	"math"
	"time"
)

// PriceQuote is one provider price in the requested currency. Price is nil when the
// provider has no price for the id.
type PriceQuote struct {
	Price    *float64 `json:"price"`
	Currency string   `json:"currency"`
}

// Usable returns the price when it is finite and strictly positive
func (q PriceQuote) Usable() (float64, bool) {
	if q.Price == nil {
		return 0, false
	}
	p := *q.Price
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return 0, false
	}
	return p, true
}

// CryptoPricesResponse is the backend response for GET prices/crypto
type CryptoPricesResponse struct {
	OK        bool                  `json:"ok"`
	Provider  string                `json:"provider,omitempty"`
	Vs        string                `json:"vs,omitempty"`
	Data      map[string]PriceQuote `json:"data"`
	FetchedAt *time.Time            `json:"fetchedAt,omitempty"`
}
