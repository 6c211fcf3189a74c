package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// ErrStaleScope is returned for a load that finished after a newer scope was selected
var ErrStaleScope = errors.New("dashboard scope superseded by a newer selection")

const maxViewers = 256

type scopeLoader interface {
	LoadScope(ctx context.Context, portfolioID string) (*models.EnrichedSummary, error)
}

// viewerState is one viewer's selection: the newest generation and the load it owns
type viewerState struct {
	generation string
	scope      string
	cancel     context.CancelFunc
}

// DashboardView tracks the selected scope per viewer (see ViewerKey). Every selection
// gets a new generation and cancels that viewer's load in flight; only the newest
// generation may commit. Committed results expire after the cache TTL so prices refresh.
type DashboardView struct {
	loader scopeLoader
	cache  *expirable.LRU[string, *models.EnrichedSummary]
	log    zerolog.Logger

	mu      sync.Mutex
	viewers *lru.Cache[string, *viewerState]
}

func NewDashboardView(loader scopeLoader, cacheSize int, ttl time.Duration, log zerolog.Logger) (*DashboardView, error) {
	if cacheSize < 1 {
		return nil, fmt.Errorf("dashboard cache size must be positive, got %d", cacheSize)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("dashboard cache ttl must be positive, got %s", ttl)
	}
	viewers, err := lru.NewWithEvict(maxViewers, func(_ string, s *viewerState) {
		if s.cancel != nil {
			s.cancel()
		}
	})
	if err != nil {
		return nil, err
	}
	return &DashboardView{
		loader:  loader,
		cache:   expirable.NewLRU[string, *models.EnrichedSummary](cacheSize, nil, ttl),
		viewers: viewers,
		log:     log.With().Str("service", "dashboard_view").Logger(),
	}, nil
}

func cacheKey(viewer, scope string) string {
	return viewer + "\x00" + scope
}

// begin makes scope current for viewer under a new generation, cancelling the
// viewer's previous load. Callers hold v.mu.
func (v *DashboardView) begin(viewer, scope string, cancel context.CancelFunc) string {
	st := v.viewerFor(viewer)
	if st.cancel != nil {
		st.cancel()
	}
	st.generation = uuid.NewString()
	st.scope = scope
	st.cancel = cancel
	return st.generation
}

// Select makes scope current for the caller and loads it. A load overtaken by a
// later Select from the same viewer returns ErrStaleScope and leaves the committed
// state alone; other viewers are unaffected.
func (v *DashboardView) Select(ctx context.Context, scope string) (*models.EnrichedSummary, error) {
	viewer := ViewerKey(ctx)
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	v.mu.Lock()
	gen := v.begin(viewer, scope, cancel)
	v.mu.Unlock()

	result, err := v.loader.LoadScope(loadCtx, scope)

	v.mu.Lock()
	st, ok := v.viewers.Peek(viewer)
	current := ok && st.generation == gen
	if current {
		st.cancel = nil
		if err == nil {
			v.cache.Add(cacheKey(viewer, scope), result)
		}
	}
	v.mu.Unlock()

	if !current {
		metrics.StaleScopeResponsesTotal.Inc()
		metrics.ScopeLoadsTotal.WithLabelValues("stale").Inc()
		v.log.Debug().Str("viewer", viewer).Str("scope", scope).Str("generation", gen).Msg("Discarded stale scope result")
		return nil, ErrStaleScope
	}
	if err != nil {
		metrics.ScopeLoadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.ScopeLoadsTotal.WithLabelValues("success").Inc()
	return result, nil
}

// Cached returns the caller's committed, unexpired result for scope without fetching
func (v *DashboardView) Cached(ctx context.Context, scope string) (*models.EnrichedSummary, bool) {
	res, ok := v.cache.Get(cacheKey(ViewerKey(ctx), scope))
	if ok {
		metrics.ScopeLoadsTotal.WithLabelValues("cached").Inc()
	}
	return res, ok
}

// Open returns the cached result for scope, loading it only when absent or expired.
// Re-sorting a scope therefore never refetches.
func (v *DashboardView) Open(ctx context.Context, scope string, refresh bool) (*models.EnrichedSummary, error) {
	if !refresh {
		if res, ok := v.Cached(ctx, scope); ok {
			v.mu.Lock()
			st := v.viewerFor(ViewerKey(ctx))
			if st.cancel != nil {
				st.cancel()
				st.cancel = nil
			}
			st.generation = uuid.NewString()
			st.scope = scope
			v.mu.Unlock()
			return res, nil
		}
	}
	return v.Select(ctx, scope)
}

// viewerFor returns the caller's state, creating it. Callers hold v.mu.
func (v *DashboardView) viewerFor(viewer string) *viewerState {
	st, ok := v.viewers.Get(viewer)
	if !ok {
		st = &viewerState{}
		v.viewers.Add(viewer, st)
	}
	return st
}

// Current returns the caller's selected scope
func (v *DashboardView) Current(ctx context.Context) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if st, ok := v.viewers.Peek(ViewerKey(ctx)); ok {
		return st.scope
	}
	return ""
}

// Invalidate drops all committed results; the next Open refetches
func (v *DashboardView) Invalidate() {
	v.cache.Purge()
}

// OnSaved is the refresh signal from the position workflow
func (v *DashboardView) OnSaved(e SavedEvent) {
	v.log.Debug().Str("portfolio_id", e.PortfolioID).Msg("Position saved, invalidating dashboard cache")
	v.Invalidate()
}
