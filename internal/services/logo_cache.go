package services

import (
	"context"
	"sync"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

// CatalogSource serves the crypto catalog
type CatalogSource interface {
	GetCryptoCatalog(ctx context.Context) ([]models.CryptoCatalogItem, error)
}

// LogoCache fetches the crypto catalog once per process and keeps the providerRef -> logo
// mapping for the process lifetime. A failed fetch is cached too; only a restart refetches.
type LogoCache struct {
	source CatalogSource
	log    zerolog.Logger

	once    sync.Once
	done    chan struct{}
	catalog []models.CryptoCatalogItem
	logos   map[string]string
	err     error
}

func NewLogoCache(source CatalogSource, log zerolog.Logger) *LogoCache {
	return &LogoCache{
		source: source,
		log:    log.With().Str("service", "logo_cache").Logger(),
		done:   make(chan struct{}),
		logos:  map[string]string{},
	}
}

// Warm starts the one-time fetch without waiting for it
func (c *LogoCache) Warm(ctx context.Context) {
	c.once.Do(func() {
		// the fetch outlives the request that triggered it
		fetchCtx := context.WithoutCancel(ctx)
		go c.fetch(fetchCtx)
	})
}

func (c *LogoCache) fetch(ctx context.Context) {
	defer close(c.done)

	items, err := c.source.GetCryptoCatalog(ctx)
	if err != nil {
		c.err = err
		metrics.EnrichmentDegradedTotal.WithLabelValues("catalog").Inc()
		c.log.Warn().Err(err).Msg("Crypto catalog fetch failed, logos disabled for this session")
		return
	}

	logos := make(map[string]string, len(items))
	for _, it := range items {
		ref := models.NormalizeProviderRef(it.ProviderRef)
		if ref == "" || it.LogoURL == "" {
			continue
		}
		logos[ref] = it.LogoURL
	}
	c.catalog = items
	c.logos = logos
	c.log.Info().Int("cryptos", len(items)).Int("logos", len(logos)).Msg("Crypto catalog cached")
}

// Logos waits for the fetch (starting it if needed) and returns the mapping. If ctx ends
// first an empty mapping is returned and the fetch keeps running for later callers.
func (c *LogoCache) Logos(ctx context.Context) map[string]string {
	c.Warm(ctx)
	select {
	case <-c.done:
		return c.logos
	case <-ctx.Done():
		return map[string]string{}
	}
}

// Snapshot returns the mapping without waiting; ok is false while the fetch is running
func (c *LogoCache) Snapshot() (map[string]string, bool) {
	select {
	case <-c.done:
		return c.logos, true
	default:
		return nil, false
	}
}

// Catalog waits for the fetch and returns the cached catalog, or the cached fetch error
func (c *LogoCache) Catalog(ctx context.Context) ([]models.CryptoCatalogItem, error) {
	c.Warm(ctx)
	select {
	case <-c.done:
		return c.catalog, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Loaded reports whether the one-time fetch has finished, successfully or not
func (c *LogoCache) Loaded() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
