package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

// SubmitPhase names the step of a submission that failed
type SubmitPhase string

const (
	PhaseValidate SubmitPhase = "validate"
	PhaseResolve  SubmitPhase = "resolve"
	PhaseUpsert   SubmitPhase = "upsert"
)

// ErrAborted is returned when the context ends between resolving and upserting
var ErrAborted = errors.New("submission aborted")

// SubmitError tags a submission failure with its phase
type SubmitError struct {
	Phase SubmitPhase
	Err   error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit failed in %s phase: %v", e.Phase, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// SubmitResult is a successful submission
type SubmitResult struct {
	Payload       models.UpsertPayload
	Result        *models.UpsertResult
	ResolvedAsset *models.Asset         // crypto forms only
	Resolution    models.ResolveOutcome // crypto forms only
}

type cryptoResolver interface {
	ResolveCrypto(ctx context.Context, symbol string) (*models.Asset, models.ResolveOutcome, error)
}

type positionUpserter interface {
	Upsert(ctx context.Context, portfolioID string, payload models.UpsertPayload) (*models.UpsertResult, error)
}

// Submitter runs the two-phase position submission: resolve the crypto asset, then upsert.
// Nothing is retried; the caller resubmits the whole form.
type Submitter struct {
	resolver  cryptoResolver
	positions positionUpserter
	currency  string
	log       zerolog.Logger
}

func NewSubmitter(resolver cryptoResolver, positions positionUpserter, currency string, log zerolog.Logger) *Submitter {
	return &Submitter{
		resolver:  resolver,
		positions: positions,
		currency:  currency,
		log:       log.With().Str("service", "submitter").Logger(),
	}
}

// Submit validates s, resolves its crypto asset when needed and upserts the position.
// A resolver failure stops before any upsert call. The form state is never modified.
func (sub *Submitter) Submit(ctx context.Context, s FormState) (*SubmitResult, error) {
	if errs := Validate(s); len(errs) > 0 {
		metrics.SubmissionsTotal.WithLabelValues(string(PhaseValidate)).Inc()
		return nil, &SubmitError{Phase: PhaseValidate, Err: &ValidationError{Fields: errs}}
	}

	out := &SubmitResult{}
	var resolvedID string
	if t, ok := s.Target.(CryptoTarget); ok {
		asset, outcome, err := sub.resolver.ResolveCrypto(ctx, t.Symbol)
		if err != nil {
			metrics.SubmissionsTotal.WithLabelValues(string(PhaseResolve)).Inc()
			sub.log.Warn().Err(err).Str("symbol", t.Symbol).Msg("Crypto asset resolution failed, upsert skipped")
			return nil, &SubmitError{Phase: PhaseResolve, Err: err}
		}
		out.ResolvedAsset = asset
		out.Resolution = outcome
		resolvedID = asset.ID
	}

	if err := ctx.Err(); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("aborted").Inc()
		return nil, &SubmitError{Phase: PhaseUpsert, Err: fmt.Errorf("%w: %w", ErrAborted, err)}
	}

	payload, err := BuildPayload(s, resolvedID, sub.currency)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(PhaseValidate)).Inc()
		return nil, &SubmitError{Phase: PhaseValidate, Err: err}
	}
	out.Payload = payload

	result, err := sub.positions.Upsert(ctx, s.PortfolioID, payload)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(PhaseUpsert)).Inc()
		return nil, &SubmitError{Phase: PhaseUpsert, Err: err}
	}
	out.Result = result

	metrics.SubmissionsTotal.WithLabelValues("done").Inc()
	return out, nil
}
