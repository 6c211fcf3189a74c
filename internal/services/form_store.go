package services

import (
	"context"
	"errors"
	"sync"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
)

// maxOpenForms bounds the number of live form sessions; the least recently used is dropped
const maxOpenForms = 256

// ErrFormNotFound is returned for unknown or expired form ids
var ErrFormNotFound = errors.New("form not found")

type manualResolver interface {
	ResolveManual(ctx context.Context, assetType models.AssetType, name, symbol string) (*models.Asset, error)
}

type formSubmitter interface {
	Submit(ctx context.Context, s FormState) (*SubmitResult, error)
}

// FieldUpdate carries optional field edits; nil fields are left unchanged
type FieldUpdate struct {
	AssetID      *string `json:"assetId"`
	CryptoSymbol *string `json:"cryptoSymbol"`
	ValueAmount  *string `json:"valueAmount"`
	Quantity     *string `json:"quantity"`
	CostAmount   *string `json:"costAmount"`
	Notes        *string `json:"notes"`
	MergeMode    *string `json:"mergeMode"`
}

type formSession struct {
	mu    sync.Mutex
	state FormState
}

// FormStore keeps position form sessions. Transitions on one session are serialized by
// the session's own lock.
type FormStore struct {
	sessions  *lru.Cache[string, *formSession]
	index     CategoryLookup
	resolver  manualResolver
	submitter formSubmitter
	log       zerolog.Logger
}

func NewFormStore(index CategoryLookup, resolver manualResolver, submitter formSubmitter, log zerolog.Logger) *FormStore {
	sessions, _ := lru.NewWithEvict[string, *formSession](maxOpenForms, func(string, *formSession) {
		metrics.OpenForms.Dec()
	})
	return &FormStore{
		sessions:  sessions,
		index:     index,
		resolver:  resolver,
		submitter: submitter,
		log:       log.With().Str("service", "forms").Logger(),
	}
}

// Create opens a new form, preselecting portfolioID when given
func (fs *FormStore) Create(portfolioID string) FormView {
	id := uuid.NewString()
	state := NewFormState()
	if portfolioID != "" {
		state = SelectPortfolio(state, portfolioID, fs.index)
	}
	fs.sessions.Add(id, &formSession{state: state})
	metrics.OpenForms.Inc()
	return View(id, state)
}

func (fs *FormStore) Get(id string) (FormView, error) {
	sess, ok := fs.sessions.Get(id)
	if !ok {
		return FormView{}, ErrFormNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return View(id, sess.state), nil
}

func (fs *FormStore) Delete(id string) error {
	if !fs.sessions.Remove(id) {
		return ErrFormNotFound
	}
	return nil
}

func (fs *FormStore) Len() int {
	return fs.sessions.Len()
}

// Purge closes every open form
func (fs *FormStore) Purge() {
	fs.sessions.Purge()
}

// update applies fn under the session lock. On error the state is left unchanged.
func (fs *FormStore) update(id string, fn func(FormState) (FormState, error)) (FormView, error) {
	sess, ok := fs.sessions.Get(id)
	if !ok {
		return FormView{}, ErrFormNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, err := fn(sess.state)
	if err != nil {
		return View(id, sess.state), err
	}
	sess.state = next
	return View(id, next), nil
}

func (fs *FormStore) SelectPortfolio(id, portfolioID string) (FormView, error) {
	return fs.update(id, func(s FormState) (FormState, error) {
		return SelectPortfolio(s, portfolioID, fs.index), nil
	})
}

func (fs *FormStore) SetValuationMode(id string, mode models.ValueMode) (FormView, error) {
	return fs.update(id, func(s FormState) (FormState, error) {
		return SetValuationMode(s, mode)
	})
}

// UpdateFields applies all edits or none
func (fs *FormStore) UpdateFields(id string, u FieldUpdate) (FormView, error) {
	return fs.update(id, func(s FormState) (FormState, error) {
		var err error
		if u.AssetID != nil {
			if s, err = SetAsset(s, *u.AssetID); err != nil {
				return s, err
			}
		}
		if u.CryptoSymbol != nil {
			if s, err = SetCryptoSymbol(s, *u.CryptoSymbol); err != nil {
				return s, err
			}
		}
		if u.ValueAmount != nil {
			if s, err = SetAmount(s, *u.ValueAmount); err != nil {
				return s, err
			}
		}
		if u.Quantity != nil {
			if s, err = SetQuantity(s, *u.Quantity); err != nil {
				return s, err
			}
		}
		if u.CostAmount != nil {
			if s, err = SetCost(s, *u.CostAmount); err != nil {
				return s, err
			}
		}
		if u.Notes != nil {
			s = SetNotes(s, *u.Notes)
		}
		if u.MergeMode != nil {
			mode, ok := models.ParseMergeMode(*u.MergeMode)
			if !ok {
				return s, &ValidationError{Fields: FieldErrors{FieldMergeMode: "choose ADD or SET"}}
			}
			if s, err = SetMergeMode(s, mode); err != nil {
				return s, err
			}
		}
		return s, nil
	})
}

func (fs *FormStore) OpenManualAsset(id string) (FormView, error) {
	return fs.update(id, OpenManualAssetFlow)
}

func (fs *FormStore) CloseManualAsset(id string) (FormView, error) {
	return fs.update(id, func(s FormState) (FormState, error) {
		return CloseManualAssetFlow(s), nil
	})
}

func (fs *FormStore) SetManualAssetDraft(id string, draft ManualAssetDraft) (FormView, error) {
	return fs.update(id, func(s FormState) (FormState, error) {
		return SetManualAssetDraft(s, draft)
	})
}

// CreateManualAsset resolves the open create-asset draft and selects the new asset.
// Draft errors are recorded on the form.
func (fs *FormStore) CreateManualAsset(ctx context.Context, id string) (FormView, *models.Asset, error) {
	sess, ok := fs.sessions.Get(id)
	if !ok {
		return FormView{}, nil, ErrFormNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	t, ok := sess.state.Target.(ManualAssetTarget)
	if !ok || !t.Creating {
		return View(id, sess.state), nil, ErrFieldNotApplicable
	}

	asset, err := fs.resolver.ResolveManual(ctx, t.Draft.Type, t.Draft.Name, t.Draft.Symbol)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			next := sess.state.clone()
			for k, v := range verr.Fields {
				next.Errors[k] = v
			}
			sess.state = next
		}
		return View(id, sess.state), nil, err
	}

	next, err := SetAsset(sess.state, asset.ID)
	if err != nil {
		return View(id, sess.state), asset, err
	}
	sess.state = next
	return View(id, next), asset, nil
}

// Submit re-evaluates the portfolio mode, then runs the two-phase submission. Validation
// errors are recorded on the form; other failures leave it untouched for a retry. A
// successful submission resets the form.
func (fs *FormStore) Submit(ctx context.Context, id string) (FormView, *SubmitResult, error) {
	sess, ok := fs.sessions.Get(id)
	if !ok {
		return FormView{}, nil, ErrFormNotFound
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.state = Reevaluate(sess.state, fs.index)

	result, err := fs.submitter.Submit(ctx, sess.state)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			sess.state = WithFieldErrors(sess.state, verr.Fields)
		}
		return View(id, sess.state), nil, err
	}

	sess.state = NewFormState()
	return View(id, sess.state), result, nil
}

// ReevaluateAll re-applies the category index to every open form. Registered with
// CategoryIndex.OnReplace so pending forms resolve and changed categories take effect.
func (fs *FormStore) ReevaluateAll(changed []string) {
	for _, id := range fs.sessions.Keys() {
		sess, ok := fs.sessions.Peek(id)
		if !ok {
			continue
		}
		sess.mu.Lock()
		before := sess.state.Kind()
		sess.state = Reevaluate(sess.state, fs.index)
		after := sess.state.Kind()
		sess.mu.Unlock()

		if before != after {
			fs.log.Info().Str("form_id", id).Str("from", string(before)).Str("to", string(after)).Msg("Form mode re-evaluated")
		}
	}
	if len(changed) > 0 {
		fs.log.Warn().Strs("portfolio_ids", changed).Msg("Portfolio categories changed, open forms re-evaluated")
	}
}
