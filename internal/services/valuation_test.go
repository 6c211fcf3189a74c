package services

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticLookup is a CategoryLookup with fixed answers
type staticLookup struct {
	pending    bool
	categories map[string]models.PortfolioCategory
}

func (l staticLookup) Lookup(id string) (models.PortfolioCategory, LookupStatus) {
	if cat, ok := l.categories[id]; ok {
		return cat, LookupKnown
	}
	if l.pending {
		return "", LookupPending
	}
	return "", LookupUnknown
}

func loadedLookup() staticLookup {
	return staticLookup{categories: map[string]models.PortfolioCategory{
		"crypto": models.CategoryCrypto,
		"metals": models.CategoryMetals,
		"gold":   models.CategoryMetals,
	}}
}

// mustState unwraps a (FormState, error) pair: mustState(t)(SetX(...))
func mustState(t *testing.T) func(FormState, error) FormState {
	return func(s FormState, err error) FormState {
		t.Helper()
		require.NoError(t, err)
		return s
	}
}

func marshalPayload(t *testing.T, p models.UpsertPayload) map[string]any {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestParseDecimalInput(t *testing.T) {
	tests := []struct {
		raw     string
		empty   bool
		invalid bool
		want    string
	}{
		{raw: "", empty: true},
		{raw: "   ", empty: true},
		{raw: "12.5", want: "12.5"},
		{raw: " 0,02 ", want: "0.02"},
		{raw: "abc", invalid: true},
		{raw: "1.2.3", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			in := ParseDecimalInput(tt.raw)
			assert.Equal(t, tt.empty, in.IsEmpty())
			assert.Equal(t, tt.invalid, in.IsInvalid())
			if tt.want != "" {
				require.NotNil(t, in.Value)
				assert.Equal(t, tt.want, in.Value.String())
			}
		})
	}
}

func TestSelectPortfolio_ModeMatrix(t *testing.T) {
	index := loadedLookup()

	tests := []struct {
		name        string
		portfolioID string
		valueMode   models.ValueMode
		wantKind    FormKind
		wantFields  []string
	}{
		{
			name:        "non crypto portfolio forces manual",
			portfolioID: "metals",
			wantKind:    KindNonCryptoManual,
			wantFields:  []string{FieldAmount, FieldAsset, FieldMergeMode, FieldPortfolio},
		},
		{
			name:        "crypto portfolio defaults to manual",
			portfolioID: "crypto",
			wantKind:    KindCryptoManual,
			wantFields:  []string{FieldSymbol, FieldAmount, FieldMergeMode, FieldPortfolio},
		},
		{
			name:        "crypto portfolio in market mode",
			portfolioID: "crypto",
			valueMode:   models.ValueModeMarket,
			wantKind:    KindCryptoMarket,
			wantFields:  []string{FieldSymbol, FieldMergeMode, FieldPortfolio, FieldQuantity},
		},
		{
			name:        "unknown portfolio behaves as non crypto",
			portfolioID: "missing",
			wantKind:    KindNonCryptoManual,
			wantFields:  []string{FieldAmount, FieldAsset, FieldMergeMode, FieldPortfolio},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := SelectPortfolio(NewFormState(), tt.portfolioID, index)
			if tt.valueMode != "" {
				s = mustState(t)(SetValuationMode(s, tt.valueMode))
			}
			assert.Equal(t, tt.wantKind, s.Kind())
			assert.ElementsMatch(t, tt.wantFields, RequiredFields(s))
		})
	}
}

func TestSetValuationMode_LockedOutsideCrypto(t *testing.T) {
	s := SelectPortfolio(NewFormState(), "metals", loadedLookup())

	next, err := SetValuationMode(s, models.ValueModeMarket)
	require.ErrorIs(t, err, ErrValuationModeLocked)
	assert.Equal(t, models.ValueModeManual, next.ValueMode())
	assert.False(t, s.ValuationModeSelectable())
}

func TestSetValuationMode_DropsOtherCaptureFields(t *testing.T) {
	s := SelectPortfolio(NewFormState(), "crypto", loadedLookup())
	s = mustState(t)(SetAmount(s, "100"))
	s = WithFieldErrors(s, FieldErrors{FieldAmount: "must be greater than 0"})

	s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
	assert.Equal(t, MarketCapture{}, s.Capture)
	assert.NotContains(t, s.Errors, FieldAmount)

	s = mustState(t)(SetQuantity(s, "0.5"))
	s = mustState(t)(SetValuationMode(s, models.ValueModeManual))
	assert.Equal(t, ManualCapture{}, s.Capture)

	_, err := SetQuantity(s, "1")
	assert.ErrorIs(t, err, ErrFieldNotApplicable)
}

func TestNonCryptoForm_NeverHasMarketFields(t *testing.T) {
	index := loadedLookup()

	s := SelectPortfolio(NewFormState(), "crypto", index)
	s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
	s = mustState(t)(SetCryptoSymbol(s, "btc"))
	s = mustState(t)(SetQuantity(s, "0.5"))
	s = mustState(t)(SetCost(s, "1000"))
	s = WithFieldErrors(s, FieldErrors{FieldQuantity: "x", FieldCost: "y", FieldSymbol: "z"})

	s = SelectPortfolio(s, "metals", index)

	assert.Equal(t, KindNonCryptoManual, s.Kind())
	assert.Equal(t, ManualCapture{}, s.Capture)
	assert.Equal(t, ManualAssetTarget{}, s.Target)
	assert.Empty(t, s.Errors)

	view := View("f1", s)
	assert.Empty(t, view.Quantity)
	assert.Empty(t, view.CostAmount)
	assert.Empty(t, view.CryptoSymbol)
	assert.NotContains(t, view.RequiredFields, FieldQuantity)
}

func TestCryptoForm_NeverRequiresManualAsset(t *testing.T) {
	index := loadedLookup()

	s := SelectPortfolio(NewFormState(), "metals", index)
	s = mustState(t)(OpenManualAssetFlow(s))
	s = mustState(t)(SetManualAssetDraft(s, ManualAssetDraft{Name: "Gold bar"}))
	s = WithFieldErrors(s, FieldErrors{FieldAsset: "select an asset", FieldAssetName: "required"})

	s = SelectPortfolio(s, "crypto", index)

	assert.Equal(t, CryptoTarget{}, s.Target)
	assert.NotContains(t, RequiredFields(s), FieldAsset)
	assert.Empty(t, s.Errors)
	assert.False(t, View("f1", s).CreatingAsset)

	_, err := OpenManualAssetFlow(s)
	assert.ErrorIs(t, err, ErrFieldNotApplicable)
	_, err = SetAsset(s, "a1")
	assert.ErrorIs(t, err, ErrFieldNotApplicable)
}

func TestSwitchFromCryptoToMetals_ClearsSymbolAndRequiresAsset(t *testing.T) {
	index := loadedLookup()

	s := SelectPortfolio(NewFormState(), "crypto", index)
	s = mustState(t)(SetCryptoSymbol(s, "ETH"))
	s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
	s = mustState(t)(SetQuantity(s, "2"))

	s = SelectPortfolio(s, "gold", index)

	view := View("f1", s)
	assert.Empty(t, view.CryptoSymbol)
	assert.Equal(t, models.ValueModeManual, view.ValueMode)
	assert.Contains(t, view.RequiredFields, FieldAsset)
	assert.Empty(t, view.AssetID)

	errs := Validate(s)
	assert.Equal(t, "select an asset", errs[FieldAsset])
	assert.Equal(t, "required", errs[FieldAmount])
}

func TestPendingCategory_KeepsConfigurationUntilResolved(t *testing.T) {
	index := NewCategoryIndex(zerolog.Nop())

	s := SelectPortfolio(NewFormState(), "crypto", index)
	assert.True(t, s.CategoryPending)
	assert.Equal(t, KindNonCryptoManual, s.Kind())
	assert.Equal(t, "portfolio details are still loading", Validate(s)[FieldPortfolio])

	index.Replace(sampleTree())
	s = Reevaluate(s, index)
	assert.False(t, s.CategoryPending)
	assert.Equal(t, KindCryptoManual, s.Kind())
	assert.NotContains(t, Validate(s), FieldPortfolio)
}

func TestPendingCategory_FetchFailureFallsBackToNonCrypto(t *testing.T) {
	index := NewCategoryIndex(zerolog.Nop())

	s := SelectPortfolio(NewFormState(), "crypto", index)
	require.True(t, s.CategoryPending)

	index.MarkFailed(errors.New("connection refused"))
	s = Reevaluate(s, index)

	assert.False(t, s.CategoryPending)
	assert.Equal(t, KindNonCryptoManual, s.Kind())
}

func TestReevaluate_Idempotent(t *testing.T) {
	index := loadedLookup()

	s := SelectPortfolio(NewFormState(), "crypto", index)
	s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
	s = mustState(t)(SetCryptoSymbol(s, "BTC"))
	s = mustState(t)(SetQuantity(s, "0.25"))

	once := Reevaluate(s, index)
	twice := Reevaluate(once, index)

	assert.Equal(t, s, once)
	assert.Equal(t, once, twice)
}

func TestTransitions_DoNotMutateInput(t *testing.T) {
	s := SelectPortfolio(NewFormState(), "metals", loadedLookup())
	s = WithFieldErrors(s, FieldErrors{FieldAmount: "required"})

	next := mustState(t)(SetAmount(s, "10"))

	assert.Contains(t, s.Errors, FieldAmount)
	assert.NotContains(t, next.Errors, FieldAmount)
	assert.Equal(t, ManualCapture{}, s.Capture)
}

func TestValidate(t *testing.T) {
	index := loadedLookup()

	tests := []struct {
		name  string
		build func(t *testing.T) FormState
		want  FieldErrors
	}{
		{
			name:  "empty form",
			build: func(t *testing.T) FormState { return NewFormState() },
			want: FieldErrors{
				FieldPortfolio: "select a portfolio",
				FieldAsset:     "select an asset",
				FieldAmount:    "required",
			},
		},
		{
			name: "manual amount must be positive",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "metals", index)
				s = mustState(t)(SetAsset(s, "a1"))
				return mustState(t)(SetAmount(s, "0"))
			},
			want: FieldErrors{FieldAmount: "must be greater than 0"},
		},
		{
			name: "manual amount precision",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "metals", index)
				s = mustState(t)(SetAsset(s, "a1"))
				return mustState(t)(SetAmount(s, "10.001"))
			},
			want: FieldErrors{FieldAmount: "at most 2 decimal places"},
		},
		{
			name: "market quantity not a number and negative cost",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "crypto", index)
				s = mustState(t)(SetCryptoSymbol(s, "BTC"))
				s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
				s = mustState(t)(SetQuantity(s, "lots"))
				return mustState(t)(SetCost(s, "-1"))
			},
			want: FieldErrors{FieldQuantity: "must be a number", FieldCost: "must not be negative"},
		},
		{
			name: "market quantity accepts satoshi precision",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "crypto", index)
				s = mustState(t)(SetCryptoSymbol(s, "BTC"))
				s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
				return mustState(t)(SetQuantity(s, "0.00000001"))
			},
			want: FieldErrors{},
		},
		{
			name: "crypto symbol required",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "crypto", index)
				return mustState(t)(SetAmount(s, "50"))
			},
			want: FieldErrors{FieldSymbol: "select a cryptocurrency"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.build(t)))
		})
	}
}

func TestBuildPayload_CryptoMarketOmitsManualFields(t *testing.T) {
	s := SelectPortfolio(NewFormState(), "crypto", loadedLookup())
	s = mustState(t)(SetCryptoSymbol(s, "btc"))
	s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
	s = mustState(t)(SetQuantity(s, "0.5"))

	payload, err := BuildPayload(s, "crypto-btc", "eur")
	require.NoError(t, err)

	body := marshalPayload(t, payload)
	assert.Equal(t, map[string]any{
		"assetId":   "crypto-btc",
		"mode":      "ADD",
		"valueMode": "MARKET",
		"quantity":  0.5,
	}, body)
	assert.NotContains(t, body, "valueAmount")
}

func TestBuildPayload(t *testing.T) {
	index := loadedLookup()

	tests := []struct {
		name       string
		build      func(t *testing.T) FormState
		resolvedID string
		want       map[string]any
		wantErr    error
	}{
		{
			name: "non crypto manual",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "metals", index)
				s = mustState(t)(SetAsset(s, "gold-bar"))
				s = mustState(t)(SetAmount(s, "1250,50"))
				s = mustState(t)(SetMergeMode(s, models.MergeSet))
				return SetNotes(s, "  vault  ")
			},
			resolvedID: "ignored",
			want: map[string]any{
				"assetId":       "gold-bar",
				"mode":          "SET",
				"valueMode":     "MANUAL",
				"valueAmount":   1250.5,
				"valueCurrency": "EUR",
				"notes":         "vault",
			},
		},
		{
			name: "crypto manual uses resolved id",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "crypto", index)
				s = mustState(t)(SetCryptoSymbol(s, "ETH"))
				return mustState(t)(SetAmount(s, "300"))
			},
			resolvedID: "crypto-eth",
			want: map[string]any{
				"assetId":       "crypto-eth",
				"mode":          "ADD",
				"valueMode":     "MANUAL",
				"valueAmount":   300.0,
				"valueCurrency": "EUR",
			},
		},
		{
			name: "crypto market with cost",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "crypto", index)
				s = mustState(t)(SetCryptoSymbol(s, "BTC"))
				s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
				s = mustState(t)(SetQuantity(s, "0.02"))
				return mustState(t)(SetCost(s, "800"))
			},
			resolvedID: "crypto-btc",
			want: map[string]any{
				"assetId":      "crypto-btc",
				"mode":         "ADD",
				"valueMode":    "MARKET",
				"quantity":     0.02,
				"costAmount":   800.0,
				"costCurrency": "EUR",
			},
		},
		{
			name: "crypto without resolved id",
			build: func(t *testing.T) FormState {
				s := SelectPortfolio(NewFormState(), "crypto", index)
				s = mustState(t)(SetCryptoSymbol(s, "BTC"))
				return mustState(t)(SetAmount(s, "10"))
			},
			wantErr: ErrUnresolvedAsset,
		},
		{
			name:    "invalid form",
			build:   func(t *testing.T) FormState { return NewFormState() },
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := BuildPayload(tt.build(t), tt.resolvedID, "eur")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, marshalPayload(t, payload))
		})
	}
}

func TestManualAssetFlow(t *testing.T) {
	s := SelectPortfolio(NewFormState(), "metals", loadedLookup())

	s = mustState(t)(OpenManualAssetFlow(s))
	view := View("f1", s)
	require.NotNil(t, view.AssetDraft)
	assert.Equal(t, models.AssetTypeMetal, view.AssetDraft.Type)

	s = mustState(t)(SetManualAssetDraft(s, ManualAssetDraft{Type: models.AssetTypeETF, Name: "World ETF", Symbol: "VWCE"}))
	assert.Equal(t, "World ETF", s.Target.(ManualAssetTarget).Draft.Name)

	s = mustState(t)(SetAsset(s, "asset-world-etf"))
	target := s.Target.(ManualAssetTarget)
	assert.False(t, target.Creating)
	assert.Equal(t, "asset-world-etf", target.AssetID)

	s = mustState(t)(OpenManualAssetFlow(s))
	s = CloseManualAssetFlow(s)
	assert.False(t, View("f1", s).CreatingAsset)
}

func TestValidateManualAssetDraft(t *testing.T) {
	long := make([]rune, maxAssetNameLength+1)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name  string
		draft ManualAssetDraft
		want  FieldErrors
	}{
		{name: "valid", draft: ManualAssetDraft{Type: models.AssetTypeMetal, Name: "Gold"}, want: FieldErrors{}},
		{name: "missing name", draft: ManualAssetDraft{Type: models.AssetTypeMetal, Name: "  "}, want: FieldErrors{FieldAssetName: "required"}},
		{name: "name too long", draft: ManualAssetDraft{Type: models.AssetTypeOther, Name: string(long)}, want: FieldErrors{FieldAssetName: "at most 120 characters"}},
		{name: "crypto type", draft: ManualAssetDraft{Type: models.AssetTypeCrypto, Name: "Coin"}, want: FieldErrors{FieldAssetType: "crypto assets come from the catalog"}},
		{name: "missing type", draft: ManualAssetDraft{Name: "Cash"}, want: FieldErrors{FieldAssetType: "required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateManualAssetDraft(tt.draft))
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: FieldErrors{FieldQuantity: "required", FieldAsset: "select an asset"}}
	assert.Equal(t, "validation failed: assetId: select an asset; quantity: required", err.Error())
	assert.ErrorIs(t, err, ErrValidation)
}
