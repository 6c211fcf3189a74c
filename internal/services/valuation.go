package services

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/codyseavey/folio/internal/models"
	"github.com/shopspring/decimal"
)

// Form field names, shared by field errors and required-field lists
const (
	FieldPortfolio   = "portfolioId"
	FieldAsset       = "assetId"
	FieldSymbol      = "cryptoSymbol"
	FieldAmount      = "valueAmount"
	FieldQuantity    = "quantity"
	FieldCost        = "costAmount"
	FieldMergeMode   = "mergeMode"
	FieldValueMode   = "valueMode"
	FieldAssetName   = "assetName"
	FieldAssetType   = "assetType"
	FieldAssetSymbol = "assetSymbol"
)

var (
	// ErrValuationModeLocked is returned when changing valuation mode outside CRYPTO mode
	ErrValuationModeLocked = errors.New("valuation mode is only selectable for crypto portfolios")
	// ErrFieldNotApplicable is returned when setting a field the current form kind does not have
	ErrFieldNotApplicable = errors.New("field not applicable in current mode")
)

// FormKind is the discriminant of a position form: portfolio mode x valuation mode
type FormKind string

const (
	KindNonCryptoManual FormKind = "NON_CRYPTO/MANUAL"
	KindCryptoManual    FormKind = "CRYPTO/MANUAL"
	KindCryptoMarket    FormKind = "CRYPTO/MARKET"
)

// FieldErrors maps a field name to a user-facing message
type FieldErrors map[string]string

// DecimalInput keeps what the user typed next to its parsed value.
// Value is nil when Raw is empty or not a number.
type DecimalInput struct {
	Raw   string
	Value *decimal.Decimal
}

// ParseDecimalInput trims raw and parses it, accepting a decimal comma
func ParseDecimalInput(raw string) DecimalInput {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DecimalInput{}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", "."))
	if err != nil {
		return DecimalInput{Raw: raw}
	}
	return DecimalInput{Raw: raw, Value: &d}
}

func (in DecimalInput) IsEmpty() bool   { return in.Raw == "" }
func (in DecimalInput) IsInvalid() bool { return in.Raw != "" && in.Value == nil }

// AssetTarget is what the position will be attached to
type AssetTarget interface {
	isAssetTarget()
}

// ManualAssetDraft holds the inline "create asset" sub-form
type ManualAssetDraft struct {
	Type   models.AssetType
	Name   string
	Symbol string
}

// ManualAssetTarget is an existing non-crypto asset, optionally with the create sub-flow open
type ManualAssetTarget struct {
	AssetID  string
	Creating bool
	Draft    ManualAssetDraft
}

// CryptoTarget is a catalog symbol, resolved to an asset id at submit time
type CryptoTarget struct {
	Symbol string
}

func (ManualAssetTarget) isAssetTarget() {}
func (CryptoTarget) isAssetTarget()      {}

// ValueCapture is how the position's value is declared
type ValueCapture interface {
	valueMode() models.ValueMode
}

// ManualCapture is a monetary amount
type ManualCapture struct {
	Amount DecimalInput
}

// MarketCapture is a quantity with an optional cost basis
type MarketCapture struct {
	Quantity DecimalInput
	Cost     DecimalInput
}

func (ManualCapture) valueMode() models.ValueMode { return models.ValueModeManual }
func (MarketCapture) valueMode() models.ValueMode { return models.ValueModeMarket }

// FormState is one position form. Target and Capture always agree with PortfolioMode:
// NON_CRYPTO forms hold a ManualAssetTarget and a ManualCapture; CRYPTO forms hold a
// CryptoTarget and either capture. Build states with NewFormState and the transition
// functions; they never mutate their input.
type FormState struct {
	PortfolioID     string
	PortfolioMode   PortfolioMode
	CategoryPending bool
	Target          AssetTarget
	Capture         ValueCapture
	MergeMode       models.MergeMode
	Notes           string
	Errors          FieldErrors
}

// NewFormState returns an empty NON_CRYPTO/MANUAL form merging with ADD
func NewFormState() FormState {
	return FormState{
		PortfolioMode: PortfolioModeNonCrypto,
		Target:        ManualAssetTarget{},
		Capture:       ManualCapture{},
		MergeMode:     models.MergeAdd,
		Errors:        FieldErrors{},
	}
}

func (s FormState) ValueMode() models.ValueMode {
	return s.Capture.valueMode()
}

func (s FormState) Kind() FormKind {
	if s.PortfolioMode != PortfolioModeCrypto {
		return KindNonCryptoManual
	}
	if s.ValueMode() == models.ValueModeMarket {
		return KindCryptoMarket
	}
	return KindCryptoManual
}

// ValuationModeSelectable reports whether the user may switch MANUAL/MARKET
func (s FormState) ValuationModeSelectable() bool {
	return s.PortfolioMode == PortfolioModeCrypto
}

func (s FormState) clone() FormState {
	s.Errors = maps.Clone(s.Errors)
	if s.Errors == nil {
		s.Errors = FieldErrors{}
	}
	return s
}

func (s FormState) clearErrors(fields ...string) FormState {
	for _, f := range fields {
		delete(s.Errors, f)
	}
	return s
}

// SelectPortfolio binds the form to a portfolio and re-evaluates its mode. While the
// category is pending the previous configuration is kept.
func SelectPortfolio(s FormState, portfolioID string, index CategoryLookup) FormState {
	s = s.clone()
	s.PortfolioID = strings.TrimSpace(portfolioID)
	s = s.clearErrors(FieldPortfolio)
	return evaluatePortfolioMode(s, index)
}

// Reevaluate re-runs the mode evaluation for the current portfolio. Applying the same
// resolved category again yields the same state.
func Reevaluate(s FormState, index CategoryLookup) FormState {
	return evaluatePortfolioMode(s.clone(), index)
}

func evaluatePortfolioMode(s FormState, index CategoryLookup) FormState {
	if s.PortfolioID == "" {
		s.CategoryPending = false
		return applyPortfolioMode(s, PortfolioModeNonCrypto)
	}

	category, status := index.Lookup(s.PortfolioID)
	if status == LookupPending {
		s.CategoryPending = true
		return s
	}
	s.CategoryPending = false
	return applyPortfolioMode(s, ModeForCategory(category, status))
}

func applyPortfolioMode(s FormState, mode PortfolioMode) FormState {
	if s.PortfolioMode == mode {
		return s
	}

	switch mode {
	case PortfolioModeCrypto:
		// manual asset selection and its create sub-flow do not exist in crypto mode
		s.Target = CryptoTarget{}
		s = s.clearErrors(FieldAsset, FieldAssetName, FieldAssetType, FieldAssetSymbol)
	default:
		s.Target = ManualAssetTarget{}
		s = s.clearErrors(FieldSymbol, FieldValueMode)
		if _, ok := s.Capture.(ManualCapture); !ok {
			s.Capture = ManualCapture{}
			s = s.clearErrors(FieldQuantity, FieldCost)
		}
	}
	s.PortfolioMode = mode
	return s
}

// SetValuationMode switches between MANUAL and MARKET capture. Fields of the old
// capture are dropped together with their errors.
func SetValuationMode(s FormState, mode models.ValueMode) (FormState, error) {
	if !s.ValuationModeSelectable() {
		return s, ErrValuationModeLocked
	}
	if s.ValueMode() == mode {
		return s, nil
	}

	s = s.clone()
	switch mode {
	case models.ValueModeManual:
		s.Capture = ManualCapture{}
		s = s.clearErrors(FieldQuantity, FieldCost)
	case models.ValueModeMarket:
		s.Capture = MarketCapture{}
		s = s.clearErrors(FieldAmount)
	default:
		return s, fmt.Errorf("unknown valuation mode %q", mode)
	}
	s = s.clearErrors(FieldValueMode)
	return s, nil
}

// SetAsset picks an existing non-crypto asset and closes the create sub-flow
func SetAsset(s FormState, assetID string) (FormState, error) {
	if _, ok := s.Target.(ManualAssetTarget); !ok {
		return s, fmt.Errorf("%s: %w", FieldAsset, ErrFieldNotApplicable)
	}
	s = s.clone()
	s.Target = ManualAssetTarget{AssetID: strings.TrimSpace(assetID)}
	return s.clearErrors(FieldAsset, FieldAssetName, FieldAssetType, FieldAssetSymbol), nil
}

// SetCryptoSymbol picks a catalog symbol; it is stored upper-cased
func SetCryptoSymbol(s FormState, symbol string) (FormState, error) {
	if _, ok := s.Target.(CryptoTarget); !ok {
		return s, fmt.Errorf("%s: %w", FieldSymbol, ErrFieldNotApplicable)
	}
	s = s.clone()
	s.Target = CryptoTarget{Symbol: models.NormalizeSymbol(symbol)}
	return s.clearErrors(FieldSymbol), nil
}

func SetAmount(s FormState, raw string) (FormState, error) {
	if _, ok := s.Capture.(ManualCapture); !ok {
		return s, fmt.Errorf("%s: %w", FieldAmount, ErrFieldNotApplicable)
	}
	s = s.clone()
	s.Capture = ManualCapture{Amount: ParseDecimalInput(raw)}
	return s.clearErrors(FieldAmount), nil
}

func SetQuantity(s FormState, raw string) (FormState, error) {
	c, ok := s.Capture.(MarketCapture)
	if !ok {
		return s, fmt.Errorf("%s: %w", FieldQuantity, ErrFieldNotApplicable)
	}
	s = s.clone()
	c.Quantity = ParseDecimalInput(raw)
	s.Capture = c
	return s.clearErrors(FieldQuantity), nil
}

func SetCost(s FormState, raw string) (FormState, error) {
	c, ok := s.Capture.(MarketCapture)
	if !ok {
		return s, fmt.Errorf("%s: %w", FieldCost, ErrFieldNotApplicable)
	}
	s = s.clone()
	c.Cost = ParseDecimalInput(raw)
	s.Capture = c
	return s.clearErrors(FieldCost), nil
}

func SetNotes(s FormState, notes string) FormState {
	s = s.clone()
	s.Notes = notes
	return s
}

func SetMergeMode(s FormState, mode models.MergeMode) (FormState, error) {
	if mode != models.MergeAdd && mode != models.MergeSet {
		return s, fmt.Errorf("unknown merge mode %q", mode)
	}
	s = s.clone()
	s.MergeMode = mode
	return s.clearErrors(FieldMergeMode), nil
}

// OpenManualAssetFlow opens the inline create-asset sub-form (NON_CRYPTO only)
func OpenManualAssetFlow(s FormState) (FormState, error) {
	t, ok := s.Target.(ManualAssetTarget)
	if !ok {
		return s, fmt.Errorf("manual asset: %w", ErrFieldNotApplicable)
	}
	if t.Creating {
		return s, nil
	}
	s = s.clone()
	t.Creating = true
	t.Draft = ManualAssetDraft{Type: models.AssetTypeMetal}
	s.Target = t
	return s, nil
}

// SetManualAssetDraft updates the create-asset sub-form
func SetManualAssetDraft(s FormState, draft ManualAssetDraft) (FormState, error) {
	t, ok := s.Target.(ManualAssetTarget)
	if !ok || !t.Creating {
		return s, fmt.Errorf("manual asset: %w", ErrFieldNotApplicable)
	}
	s = s.clone()
	if draft.Type == "" {
		draft.Type = models.AssetTypeMetal
	}
	t.Draft = draft
	s.Target = t
	return s.clearErrors(FieldAssetName, FieldAssetType, FieldAssetSymbol), nil
}

// CloseManualAssetFlow discards the create-asset sub-form
func CloseManualAssetFlow(s FormState) FormState {
	t, ok := s.Target.(ManualAssetTarget)
	if !ok || !t.Creating {
		return s
	}
	s = s.clone()
	t.Creating = false
	t.Draft = ManualAssetDraft{}
	s.Target = t
	return s.clearErrors(FieldAssetName, FieldAssetType, FieldAssetSymbol)
}

// WithFieldErrors returns s carrying errs in place of its current field errors
func WithFieldErrors(s FormState, errs FieldErrors) FormState {
	s.Errors = maps.Clone(errs)
	if s.Errors == nil {
		s.Errors = FieldErrors{}
	}
	return s
}
