package services

import (
	"context"
	"sync"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

// TreeSource serves the portfolio tree
type TreeSource interface {
	GetPortfolioTree(ctx context.Context) ([]models.PortfolioNode, error)
}

type assetRefresher interface {
	RefreshAssets(ctx context.Context) error
}

// TreeRefresher keeps the category index and the selectable asset list current
type TreeRefresher struct {
	source   TreeSource
	index    *CategoryIndex
	assets   assetRefresher
	interval time.Duration
	log      zerolog.Logger

	mu          sync.RWMutex
	lastRefresh time.Time
	lastErr     error
}

// TreeStatus is the refresher's state for the health endpoint
type TreeStatus struct {
	LastRefresh time.Time `json:"last_refresh"`
	NextRefresh time.Time `json:"next_refresh"`
	Portfolios  int       `json:"portfolios"`
	LastError   string    `json:"last_error,omitempty"`
}

func NewTreeRefresher(source TreeSource, index *CategoryIndex, assets assetRefresher, interval time.Duration, log zerolog.Logger) *TreeRefresher {
	return &TreeRefresher{
		source:   source,
		index:    index,
		assets:   assets,
		interval: interval,
		log:      log.With().Str("service", "tree_refresher").Logger(),
	}
}

// Start refreshes immediately, then on every interval until ctx is done
func (r *TreeRefresher) Start(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("Tree refresher started")

	if err := r.Refresh(ctx); err != nil {
		r.log.Warn().Err(err).Msg("Initial tree refresh failed")
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Tree refresher stopping...")
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.log.Warn().Err(err).Msg("Tree refresh failed")
			}
		}
	}
}

// Refresh fetches the tree into the index, then reloads the asset list. A tree failure is
// recorded on the index; an asset list failure is only logged.
func (r *TreeRefresher) Refresh(ctx context.Context) error {
	roots, err := r.source.GetPortfolioTree(ctx)

	r.mu.Lock()
	r.lastRefresh = time.Now()
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		metrics.TreeRefreshesTotal.WithLabelValues("failed").Inc()
		r.index.MarkFailed(err)
		return err
	}
	metrics.TreeRefreshesTotal.WithLabelValues("success").Inc()
	if changed := r.index.Replace(roots); len(changed) > 0 {
		r.log.Info().Int("changed", len(changed)).Msg("Portfolio categories changed")
	}

	if r.assets != nil {
		if err := r.assets.RefreshAssets(ctx); err != nil {
			r.log.Warn().Err(err).Msg("Asset list refresh failed")
		}
	}
	return nil
}

func (r *TreeRefresher) Status() TreeStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := TreeStatus{
		LastRefresh: r.lastRefresh,
		Portfolios:  r.index.Len(),
	}
	if !r.lastRefresh.IsZero() {
		st.NextRefresh = r.lastRefresh.Add(r.interval)
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st
}
