package services

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/codyseavey/folio/internal/models"
	"github.com/shopspring/decimal"
)

const (
	// amounts are currency values with cent precision
	amountDecimals = 2
	// quantities cover fractional crypto units (satoshi needs 8, wei-scale tokens 18)
	quantityDecimals = 18
	// maxAssetNameLength bounds manual asset names, in characters
	maxAssetNameLength = 120
)

// ErrValidation marks local validation failures; they never reach the network
var ErrValidation = errors.New("validation failed")

// ValidationError carries per-field messages
type ValidationError struct {
	Fields FieldErrors
}

func (e *ValidationError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrUnresolvedAsset is returned when a crypto payload is built without a resolved asset id
var ErrUnresolvedAsset = errors.New("crypto asset not resolved")

// RequiredFields lists the fields that must be filled for the form's current kind
func RequiredFields(s FormState) []string {
	fields := []string{FieldPortfolio}
	switch s.Target.(type) {
	case CryptoTarget:
		fields = append(fields, FieldSymbol)
	default:
		fields = append(fields, FieldAsset)
	}
	switch s.Capture.(type) {
	case MarketCapture:
		fields = append(fields, FieldQuantity)
	default:
		fields = append(fields, FieldAmount)
	}
	return append(fields, FieldMergeMode)
}

// Validate checks the form for its current kind and returns per-field errors.
// An empty result means the form can be submitted.
func Validate(s FormState) FieldErrors {
	errs := FieldErrors{}

	if s.PortfolioID == "" {
		errs[FieldPortfolio] = "select a portfolio"
	} else if s.CategoryPending {
		errs[FieldPortfolio] = "portfolio details are still loading"
	}

	switch t := s.Target.(type) {
	case ManualAssetTarget:
		if t.AssetID == "" {
			errs[FieldAsset] = "select an asset"
		}
	case CryptoTarget:
		if t.Symbol == "" {
			errs[FieldSymbol] = "select a cryptocurrency"
		}
	default:
		errs[FieldAsset] = "select an asset"
	}

	switch c := s.Capture.(type) {
	case ManualCapture:
		if msg := checkPositive(c.Amount, amountDecimals); msg != "" {
			errs[FieldAmount] = msg
		}
	case MarketCapture:
		if msg := checkPositive(c.Quantity, quantityDecimals); msg != "" {
			errs[FieldQuantity] = msg
		}
		if msg := checkOptionalNonNegative(c.Cost, amountDecimals); msg != "" {
			errs[FieldCost] = msg
		}
	}

	if s.MergeMode != models.MergeAdd && s.MergeMode != models.MergeSet {
		errs[FieldMergeMode] = "choose ADD or SET"
	}

	return errs
}

func checkPositive(in DecimalInput, places int32) string {
	switch {
	case in.IsEmpty():
		return "required"
	case in.IsInvalid():
		return "must be a number"
	case !in.Value.IsPositive():
		return "must be greater than 0"
	case !fitsPrecision(*in.Value, places):
		return fmt.Sprintf("at most %d decimal places", places)
	}
	return ""
}

func checkOptionalNonNegative(in DecimalInput, places int32) string {
	switch {
	case in.IsEmpty():
		return ""
	case in.IsInvalid():
		return "must be a number"
	case in.Value.IsNegative():
		return "must not be negative"
	case !fitsPrecision(*in.Value, places):
		return fmt.Sprintf("at most %d decimal places", places)
	}
	return ""
}

func fitsPrecision(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

// BuildPayload turns a valid form into an upsert payload. resolvedAssetID is the crypto
// asset id from the resolver and is ignored for NON_CRYPTO forms. Only the fields of the
// form's valuation mode are set.
func BuildPayload(s FormState, resolvedAssetID, currency string) (models.UpsertPayload, error) {
	if errs := Validate(s); len(errs) > 0 {
		return models.UpsertPayload{}, &ValidationError{Fields: errs}
	}

	payload := models.UpsertPayload{
		Mode:      s.MergeMode,
		ValueMode: s.ValueMode(),
	}

	switch t := s.Target.(type) {
	case ManualAssetTarget:
		payload.AssetID = t.AssetID
	case CryptoTarget:
		if strings.TrimSpace(resolvedAssetID) == "" {
			return models.UpsertPayload{}, ErrUnresolvedAsset
		}
		payload.AssetID = resolvedAssetID
	}

	currency = strings.ToUpper(currency)
	switch c := s.Capture.(type) {
	case ManualCapture:
		amount := c.Amount.Value.InexactFloat64()
		payload.ValueAmount = &amount
		payload.ValueCurrency = &currency
	case MarketCapture:
		qty := c.Quantity.Value.InexactFloat64()
		payload.Quantity = &qty
		if c.Cost.Value != nil {
			cost := c.Cost.Value.InexactFloat64()
			payload.CostAmount = &cost
			payload.CostCurrency = &currency
		}
	}

	if notes := strings.TrimSpace(s.Notes); notes != "" {
		payload.Notes = &notes
	}
	return payload, nil
}

// ValidateManualAssetDraft checks the inline create-asset sub-form
func ValidateManualAssetDraft(d ManualAssetDraft) FieldErrors {
	errs := FieldErrors{}
	name := strings.TrimSpace(d.Name)
	switch {
	case name == "":
		errs[FieldAssetName] = "required"
	case utf8.RuneCountInString(name) > maxAssetNameLength:
		errs[FieldAssetName] = fmt.Sprintf("at most %d characters", maxAssetNameLength)
	}
	if d.Type == "" {
		errs[FieldAssetType] = "required"
	} else if d.Type.IsCrypto() {
		errs[FieldAssetType] = "crypto assets come from the catalog"
	}
	return errs
}

// FormView is the JSON shape of a form session
type FormView struct {
	ID                      string            `json:"id"`
	Kind                    FormKind          `json:"kind"`
	PortfolioID             string            `json:"portfolioId"`
	PortfolioMode           PortfolioMode     `json:"portfolioMode"`
	CategoryPending         bool              `json:"categoryPending"`
	ValueMode               models.ValueMode  `json:"valueMode"`
	ValuationModeSelectable bool              `json:"valuationModeSelectable"`
	AssetID                 string            `json:"assetId,omitempty"`
	CreatingAsset           bool              `json:"creatingAsset"`
	AssetDraft              *AssetDraftView   `json:"assetDraft,omitempty"`
	CryptoSymbol            string            `json:"cryptoSymbol,omitempty"`
	ValueAmount             string            `json:"valueAmount,omitempty"`
	Quantity                string            `json:"quantity,omitempty"`
	CostAmount              string            `json:"costAmount,omitempty"`
	MergeMode               models.MergeMode  `json:"mergeMode"`
	Notes                   string            `json:"notes,omitempty"`
	RequiredFields          []string          `json:"requiredFields"`
	Errors                  map[string]string `json:"errors"`
}

type AssetDraftView struct {
	Type   models.AssetType `json:"type"`
	Name   string           `json:"name"`
	Symbol string           `json:"symbol,omitempty"`
}

// View renders the form for clients
func View(id string, s FormState) FormView {
	v := FormView{
		ID:                      id,
		Kind:                    s.Kind(),
		PortfolioID:             s.PortfolioID,
		PortfolioMode:           s.PortfolioMode,
		CategoryPending:         s.CategoryPending,
		ValueMode:               s.ValueMode(),
		ValuationModeSelectable: s.ValuationModeSelectable(),
		MergeMode:               s.MergeMode,
		Notes:                   s.Notes,
		RequiredFields:          RequiredFields(s),
		Errors:                  maps.Clone(s.Errors),
	}
	if v.Errors == nil {
		v.Errors = map[string]string{}
	}

	switch t := s.Target.(type) {
	case ManualAssetTarget:
		v.AssetID = t.AssetID
		v.CreatingAsset = t.Creating
		if t.Creating {
			v.AssetDraft = &AssetDraftView{Type: t.Draft.Type, Name: t.Draft.Name, Symbol: t.Draft.Symbol}
		}
	case CryptoTarget:
		v.CryptoSymbol = t.Symbol
	}

	switch c := s.Capture.(type) {
	case ManualCapture:
		v.ValueAmount = c.Amount.Raw
	case MarketCapture:
		v.Quantity = c.Quantity.Raw
		v.CostAmount = c.Cost.Raw
	}
	sort.Strings(v.RequiredFields)
	return v
}
