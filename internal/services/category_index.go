package services

import (
	"sync"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

// LookupStatus tells whether a category lookup can be trusted yet
type LookupStatus int

const (
	// LookupPending means no tree snapshot has arrived yet
	LookupPending LookupStatus = iota
	// LookupUnknown means the index is loaded (or failed to load) and has no entry for the id
	LookupUnknown
	// LookupKnown means the id has a category
	LookupKnown
)

func (s LookupStatus) String() string {
	switch s {
	case LookupPending:
		return "pending"
	case LookupUnknown:
		return "unknown"
	case LookupKnown:
		return "known"
	default:
		return "invalid"
	}
}

// PortfolioMode is the valuation workflow mode implied by a portfolio's category
type PortfolioMode string

const (
	PortfolioModeNonCrypto PortfolioMode = "NON_CRYPTO"
	PortfolioModeCrypto    PortfolioMode = "CRYPTO"
)

// ModeForCategory maps a lookup result to a portfolio mode. Only a known CRYPTO
// category yields CRYPTO; unknown ids stay NON_CRYPTO.
func ModeForCategory(category models.PortfolioCategory, status LookupStatus) PortfolioMode {
	if status == LookupKnown && category.IsCrypto() {
		return PortfolioModeCrypto
	}
	return PortfolioModeNonCrypto
}

// CategoryLookup resolves a portfolio id to its category
type CategoryLookup interface {
	Lookup(portfolioID string) (models.PortfolioCategory, LookupStatus)
}

// PortfolioOption is a selectable (non-root) portfolio for the position form
type PortfolioOption struct {
	ID       string                   `json:"id"`
	ParentID string                   `json:"parentId"`
	Name     string                   `json:"name"`
	Category models.PortfolioCategory `json:"category"`
	Depth    int                      `json:"depth"`
}

// FlattenPortfolios walks the tree breadth-first and returns every non-root node.
// Roots cannot hold positions.
func FlattenPortfolios(roots []models.PortfolioNode) []PortfolioOption {
	type item struct {
		node   models.PortfolioNode
		parent string
		depth  int
	}

	queue := make([]item, 0, len(roots))
	for _, r := range roots {
		queue = append(queue, item{node: r})
	}

	var out []PortfolioOption
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]

		if it.depth > 0 {
			parent := it.parent
			if it.node.ParentID != nil && *it.node.ParentID != "" {
				parent = *it.node.ParentID
			}
			out = append(out, PortfolioOption{
				ID:       it.node.ID,
				ParentID: parent,
				Name:     it.node.Name,
				Category: models.NormalizeCategory(string(it.node.Category)),
				Depth:    it.depth,
			})
		}
		for _, child := range it.node.Children {
			queue = append(queue, item{node: child, parent: it.node.ID, depth: it.depth + 1})
		}
	}
	return out
}

// BuildCategoryIndex maps every non-root portfolio id to its category
func BuildCategoryIndex(roots []models.PortfolioNode) map[string]models.PortfolioCategory {
	options := FlattenPortfolios(roots)
	index := make(map[string]models.PortfolioCategory, len(options))
	for _, o := range options {
		index[o.ID] = o.Category
	}
	return index
}

// CategoryIndex holds the latest portfolio tree snapshot
type CategoryIndex struct {
	mu         sync.RWMutex
	roots      []models.PortfolioNode
	options    []PortfolioOption
	categories map[string]models.PortfolioCategory
	resolved   bool // a snapshot was applied or a fetch failed
	lastErr    error
	updatedAt  time.Time
	listeners  []func(changed []string)
	log        zerolog.Logger
}

func NewCategoryIndex(log zerolog.Logger) *CategoryIndex {
	return &CategoryIndex{
		categories: map[string]models.PortfolioCategory{},
		log:        log.With().Str("service", "category_index").Logger(),
	}
}

// OnReplace registers fn to run after every applied snapshot with the ids whose
// category changed. fn runs outside the index lock.
func (i *CategoryIndex) OnReplace(fn func(changed []string)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
}

// Replace applies a new tree snapshot. The backend is authoritative: a category that
// differs from the previous snapshot is adopted and reported as changed.
func (i *CategoryIndex) Replace(roots []models.PortfolioNode) []string {
	options := FlattenPortfolios(roots)
	next := make(map[string]models.PortfolioCategory, len(options))
	for _, o := range options {
		next[o.ID] = o.Category
	}

	i.mu.Lock()
	var changed []string
	for id, cat := range next {
		if prev, ok := i.categories[id]; ok && prev != cat {
			changed = append(changed, id)
			i.log.Warn().
				Str("portfolio_id", id).
				Str("from", string(prev)).
				Str("to", string(cat)).
				Msg("Portfolio category changed")
			metrics.CategoryChangesTotal.Inc()
		}
	}
	i.roots = roots
	i.options = options
	i.categories = next
	i.resolved = true
	i.lastErr = nil
	i.updatedAt = time.Now()
	listeners := append([]func([]string){}, i.listeners...)
	i.mu.Unlock()

	metrics.IndexedPortfolios.Set(float64(len(next)))

	for _, fn := range listeners {
		fn(changed)
	}
	return changed
}

// MarkFailed records a tree fetch failure. Any previous snapshot is kept; with no
// snapshot the index stays empty and lookups report Unknown.
func (i *CategoryIndex) MarkFailed(err error) {
	i.mu.Lock()
	wasResolved := i.resolved
	i.resolved = true
	i.lastErr = err
	listeners := append([]func([]string){}, i.listeners...)
	i.mu.Unlock()

	i.log.Error().Err(err).Msg("Portfolio tree fetch failed")

	// pending forms fall back to NON_CRYPTO
	if !wasResolved {
		for _, fn := range listeners {
			fn(nil)
		}
	}
}

func (i *CategoryIndex) Lookup(portfolioID string) (models.PortfolioCategory, LookupStatus) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if cat, ok := i.categories[portfolioID]; ok {
		return cat, LookupKnown
	}
	if !i.resolved {
		return "", LookupPending
	}
	return "", LookupUnknown
}

// LastError returns the error of the most recent failed fetch, cleared by a successful one
func (i *CategoryIndex) LastError() error {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastErr
}

// Portfolios returns the selectable non-root portfolios in breadth-first order
func (i *CategoryIndex) Portfolios() []PortfolioOption {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]PortfolioOption(nil), i.options...)
}

// Roots returns the last applied tree snapshot
func (i *CategoryIndex) Roots() []models.PortfolioNode {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.roots
}

func (i *CategoryIndex) UpdatedAt() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.updatedAt
}

func (i *CategoryIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.categories)
}
