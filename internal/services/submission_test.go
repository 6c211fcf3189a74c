package services

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	asset   *models.Asset
	outcome models.ResolveOutcome
	err     error
	calls   int
	after   func()
}

func (r *stubResolver) ResolveCrypto(ctx context.Context, symbol string) (*models.Asset, models.ResolveOutcome, error) {
	r.calls++
	if r.after != nil {
		defer r.after()
	}
	return r.asset, r.outcome, r.err
}

type stubUpserter struct {
	calls    int
	payloads []models.UpsertPayload
	err      error
}

func (u *stubUpserter) Upsert(ctx context.Context, portfolioID string, payload models.UpsertPayload) (*models.UpsertResult, error) {
	u.calls++
	u.payloads = append(u.payloads, payload)
	if u.err != nil {
		return nil, u.err
	}
	return &models.UpsertResult{OK: true, Mode: models.UpsertCreated}, nil
}

func cryptoMarketForm(t *testing.T) FormState {
	s := SelectPortfolio(NewFormState(), "crypto", loadedLookup())
	s = mustState(t)(SetCryptoSymbol(s, "BTC"))
	s = mustState(t)(SetValuationMode(s, models.ValueModeMarket))
	return mustState(t)(SetQuantity(s, "0.5"))
}

func TestSubmit_ResolverFailureSkipsUpsert(t *testing.T) {
	resolver := &stubResolver{err: &ResolutionError{Kind: "crypto", Identifier: "BTC", Err: errors.New("502")}}
	upserter := &stubUpserter{}
	sub := NewSubmitter(resolver, upserter, "EUR", zerolog.Nop())

	_, err := sub.Submit(context.Background(), cryptoMarketForm(t))

	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PhaseResolve, serr.Phase)
	assert.ErrorIs(t, err, ErrResolution)
	assert.Equal(t, 1, resolver.calls)
	assert.Zero(t, upserter.calls)
}

func TestSubmit_ValidationMakesNoCalls(t *testing.T) {
	resolver := &stubResolver{}
	upserter := &stubUpserter{}
	sub := NewSubmitter(resolver, upserter, "EUR", zerolog.Nop())

	s := SelectPortfolio(NewFormState(), "crypto", loadedLookup())
	_, err := sub.Submit(context.Background(), s)

	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, PhaseValidate, serr.Phase)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, resolver.calls)
	assert.Zero(t, upserter.calls)
}

func TestSubmit_AbortedAfterResolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	resolver := &stubResolver{
		asset:   &models.Asset{ID: "crypto-btc"},
		outcome: models.ResolveCreated,
		after:   cancel,
	}
	upserter := &stubUpserter{}
	sub := NewSubmitter(resolver, upserter, "EUR", zerolog.Nop())

	_, err := sub.Submit(ctx, cryptoMarketForm(t))

	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, upserter.calls)
}

func TestSubmit_NonCryptoSkipsResolver(t *testing.T) {
	resolver := &stubResolver{}
	upserter := &stubUpserter{}
	sub := NewSubmitter(resolver, upserter, "EUR", zerolog.Nop())

	s := SelectPortfolio(NewFormState(), "metals", loadedLookup())
	s = mustState(t)(SetAsset(s, "gold-bar"))
	s = mustState(t)(SetAmount(s, "99.99"))

	res, err := sub.Submit(context.Background(), s)
	require.NoError(t, err)
	assert.Zero(t, resolver.calls)
	assert.Nil(t, res.ResolvedAsset)
	require.Len(t, upserter.payloads, 1)
	assert.Equal(t, "gold-bar", upserter.payloads[0].AssetID)
}

func TestSubmit_EndToEnd(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.catalog = sampleCatalog()

	positions := NewPositionService(client, zerolog.Nop())
	var events []SavedEvent
	positions.Subscribe(func(e SavedEvent) { events = append(events, e) })

	sub := NewSubmitter(NewAssetResolver(client, "EUR", zerolog.Nop()), positions, "EUR", zerolog.Nop())

	res, err := sub.Submit(context.Background(), cryptoMarketForm(t))
	require.NoError(t, err)
	assert.Equal(t, models.ResolveCreated, res.Resolution)
	assert.Equal(t, models.UpsertCreated, res.Result.Mode)

	upserts := fb.upsertCalls()
	require.Len(t, upserts, 1)
	assert.Equal(t, "crypto", upserts[0].PortfolioID)
	assert.Equal(t, map[string]any{
		"assetId":   "crypto-btc",
		"mode":      "ADD",
		"valueMode": "MARKET",
		"quantity":  0.5,
	}, upserts[0].Payload)

	res, err = sub.Submit(context.Background(), cryptoMarketForm(t))
	require.NoError(t, err)
	assert.Equal(t, models.ResolveExisting, res.Resolution)
	assert.Equal(t, models.UpsertUpdated, res.Result.Mode)

	require.Len(t, events, 2)
	assert.Equal(t, "crypto-btc", events[1].AssetID)
}

func TestSubmit_UpsertRejected(t *testing.T) {
	fb, client := newFakeBackend(t)
	fb.upsertStatus = http.StatusUnprocessableEntity

	positions := NewPositionService(client, zerolog.Nop())
	sub := NewSubmitter(NewAssetResolver(client, "EUR", zerolog.Nop()), positions, "EUR", zerolog.Nop())

	s := SelectPortfolio(NewFormState(), "metals", loadedLookup())
	s = mustState(t)(SetAsset(s, "gold-bar"))
	s = mustState(t)(SetAmount(s, "10"))

	_, err := sub.Submit(context.Background(), s)

	var uerr *UpsertError
	require.ErrorAs(t, err, &uerr)
	assert.ErrorIs(t, err, ErrUpsert)
	assert.Equal(t, "portfolio is archived", uerr.UserMessage())
}

func TestPositionService_RejectsMissingIDs(t *testing.T) {
	fb, client := newFakeBackend(t)
	positions := NewPositionService(client, zerolog.Nop())

	_, err := positions.Upsert(context.Background(), " ", models.UpsertPayload{AssetID: "a1"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = positions.Upsert(context.Background(), "p1", models.UpsertPayload{})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, fb.count("upsert"))
}
