package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codyseavey/folio/internal/models"
)

// SortKey is a sortable column of the enriched asset rows
type SortKey string

const (
	SortByWeight    SortKey = "weightPct"
	SortByQuantity  SortKey = "quantity"
	SortByValue     SortKey = "valueAmount"
	SortByUnitPrice SortKey = "unitPrice"
)

// SortDir is ascending or descending
type SortDir string

const (
	SortAsc  SortDir = "asc"
	SortDesc SortDir = "desc"
)

// missingSortValue stands in for a nil quantity or unit price so those rows sort lowest
const missingSortValue = -1

// AssetSort is a persisted sort order
type AssetSort struct {
	Key SortKey `json:"key"`
	Dir SortDir `json:"dir"`
}

// DefaultAssetSort is used when nothing (or nothing valid) is stored
var DefaultAssetSort = AssetSort{Key: SortByValue, Dir: SortDesc}

func ParseSortKey(raw string) (SortKey, bool) {
	switch k := SortKey(strings.TrimSpace(raw)); k {
	case SortByWeight, SortByQuantity, SortByValue, SortByUnitPrice:
		return k, true
	default:
		return "", false
	}
}

func ParseSortDir(raw string) (SortDir, bool) {
	switch d := SortDir(strings.ToLower(strings.TrimSpace(raw))); d {
	case SortAsc, SortDesc:
		return d, true
	default:
		return "", false
	}
}

// Validate checks both fields
func (s AssetSort) Validate() error {
	if _, ok := ParseSortKey(string(s.Key)); !ok {
		return fmt.Errorf("unknown sort key %q", s.Key)
	}
	if _, ok := ParseSortDir(string(s.Dir)); !ok {
		return fmt.Errorf("unknown sort direction %q", s.Dir)
	}
	return nil
}

func sortValue(r models.EnrichedAssetRow, key SortKey) float64 {
	switch key {
	case SortByWeight:
		return r.WeightPct
	case SortByQuantity:
		if r.Quantity == nil {
			return missingSortValue
		}
		return *r.Quantity
	case SortByUnitPrice:
		if r.UnitPrice == nil {
			return missingSortValue
		}
		return *r.UnitPrice
	default:
		return r.ValueAmount
	}
}

// SortRows returns a sorted copy of rows. Nil quantities and unit prices count as -1;
// equal keys keep their input order.
func SortRows(rows []models.EnrichedAssetRow, order AssetSort) []models.EnrichedAssetRow {
	out := append([]models.EnrichedAssetRow(nil), rows...)
	desc := order.Dir == SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		a, b := sortValue(out[i], order.Key), sortValue(out[j], order.Key)
		if desc {
			return a > b
		}
		return a < b
	})
	return out
}
