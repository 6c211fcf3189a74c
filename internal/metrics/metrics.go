// Package metrics provides Prometheus metrics for the folio dashboard backend-for-frontend.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Backend API Metrics
	BackendRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_backend_requests_total",
			Help: "Total number of portfolio backend API requests",
		},
		[]string{"endpoint", "status"}, // status: HTTP code or "error"
	)

	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_backend_request_duration_seconds",
			Help:    "Portfolio backend API latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
		},
		[]string{"endpoint"},
	)

	// Price Metrics
	PriceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_price_requests_total",
			Help: "Total batched crypto price requests",
		},
		[]string{"result"}, // "success", "failed", "breaker_open"
	)

	PriceBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "folio_price_batch_size",
			Help:    "Number of provider ids per batched price request",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	EnrichmentDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_enrichment_degraded_total",
			Help: "Dashboard loads served without live enrichment",
		},
		[]string{"source"}, // "price", "catalog"
	)

	// Dashboard Metrics
	ScopeLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_scope_loads_total",
			Help: "Dashboard scope loads by result",
		},
		[]string{"result"}, // "success", "failed", "cached", "stale"
	)

	ScopeLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "folio_scope_load_duration_seconds",
			Help:    "Time taken to load and enrich a dashboard scope",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	StaleScopeResponsesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_stale_scope_responses_total",
			Help: "Scope results discarded because a newer scope was selected",
		},
	)

	// Position Workflow Metrics
	PositionUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_position_upserts_total",
			Help: "Position upserts by result and merge mode",
		},
		[]string{"result", "mode"}, // result: "created", "updated", "failed"
	)

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_submissions_total",
			Help: "Position form submissions by outcome phase",
		},
		[]string{"phase"}, // "validate", "resolve", "upsert", "aborted", "done"
	)

	AssetResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_asset_resolutions_total",
			Help: "Asset resolutions by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: "manual", "crypto"; outcome: "created", "existing", "failed", "invalid"
	)

	// Portfolio Tree Metrics
	CategoryChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_category_changes_total",
			Help: "Portfolio categories changed between tree snapshots",
		},
	)

	TreeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_tree_refreshes_total",
			Help: "Portfolio tree refreshes by result",
		},
		[]string{"result"},
	)

	IndexedPortfolios = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folio_indexed_portfolios",
			Help: "Number of non-root portfolios in the category index",
		},
	)

	// Form Metrics
	OpenForms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "folio_open_forms",
			Help: "Number of open position form sessions",
		},
	)
)
