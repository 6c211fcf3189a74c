package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	// breakerTripFailures is how many consecutive price failures open the breaker
	breakerTripFailures = 3
	// breakerCooldown is how long the breaker stays open before a trial request
	breakerCooldown = 30 * time.Second
)

// PriceBackend is the part of the backend API that serves live crypto prices
type PriceBackend interface {
	GetCryptoPrices(ctx context.Context, ids []string, vs string) (map[string]models.PriceQuote, error)
}

// PriceService fetches batched crypto prices through a rate limiter and a circuit breaker,
// so a failing provider degrades dashboards quickly instead of stalling them
type PriceService struct {
	backend PriceBackend
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// NewPriceService creates a new price service
func NewPriceService(backend PriceBackend, rps float64, burst int, log zerolog.Logger) *PriceService {
	log = log.With().Str("service", "prices").Logger()

	st := gobreaker.Settings{Name: "crypto-prices"}
	st.Interval = 60 * time.Second
	st.Timeout = breakerCooldown
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= breakerTripFailures
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Price breaker state changed")
	}
	// a cancelled dashboard load is not a provider failure
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}

	return &PriceService{
		backend: backend,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

// NormalizeProviderRefs trims, lower-cases, de-duplicates and sorts provider ids, dropping blanks
func NormalizeProviderRefs(refs []string) []string {
	seen := make(map[string]struct{}, len(refs))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		id := models.NormalizeProviderRef(r)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetPrices returns usable unit prices keyed by lower-cased provider id, in one batched
// request. Ids without a finite positive price are absent from the result.
func (s *PriceService) GetPrices(ctx context.Context, providerRefs []string, vs string) (map[string]float64, error) {
	ids := NormalizeProviderRefs(providerRefs)
	if len(ids) == 0 {
		return map[string]float64{}, nil
	}
	vs = strings.ToLower(strings.TrimSpace(vs))
	if vs == "" {
		vs = "eur"
	}

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.PriceRequestsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("price request rate limited: %w", err)
	}

	metrics.PriceBatchSize.Observe(float64(len(ids)))
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.backend.GetCryptoPrices(ctx, ids, vs)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.PriceRequestsTotal.WithLabelValues("breaker_open").Inc()
		} else {
			metrics.PriceRequestsTotal.WithLabelValues("failed").Inc()
		}
		return nil, fmt.Errorf("failed to fetch crypto prices: %w", err)
	}
	metrics.PriceRequestsTotal.WithLabelValues("success").Inc()

	quotes, _ := res.(map[string]models.PriceQuote)
	prices := make(map[string]float64, len(quotes))
	for id, q := range quotes {
		if p, ok := q.Usable(); ok {
			prices[models.NormalizeProviderRef(id)] = p
		}
	}

	s.log.Debug().Int("requested", len(ids)).Int("priced", len(prices)).Str("vs", vs).Msg("Fetched crypto prices")
	return prices, nil
}

// BreakerState reports the circuit breaker state for health output
func (s *PriceService) BreakerState() string {
	return s.breaker.State().String()
}
