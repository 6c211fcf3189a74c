package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codyseavey/folio/internal/metrics"
	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

var (
	// ErrUnauthorized is returned when the backend rejects the caller's credentials
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrNotFound is returned for 404 responses
	ErrNotFound = errors.New("backend: not found")
)

// APIError is a non-2xx response from the portfolio backend
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error on %s: status %d: %s", e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("API error on %s: status %d", e.Endpoint, e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// UserMessage returns the backend's human-readable message, or a generic one
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

type bearerKey struct{}

// WithBearerToken attaches the caller's token to ctx so backend calls act on their behalf
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(bearerKey{}).(string); ok {
		return v
	}
	return ""
}

// ServerViewer is the viewer key of calls made without a caller token
const ServerViewer = "server"

// ViewerKey identifies whose data a call returns. Tokens are hashed so they never sit
// in cache keys or logs.
func ViewerKey(ctx context.Context) string {
	token := bearerFromContext(ctx)
	if token == "" {
		return ServerViewer
	}
	sum := sha256.Sum256([]byte(token))
	return "bearer:" + hex.EncodeToString(sum[:12])
}

// BackendClient talks JSON to the portfolio backend API
type BackendClient struct {
	baseURL string
	token   string
	client  *http.Client
	log     zerolog.Logger
}

func NewBackendClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *BackendClient {
	return &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client: &http.Client{
			Timeout: timeout,
		},
		log: log.With().Str("client", "backend").Logger(),
	}
}

type backendErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request; endpoint is a stable label for metrics and errors
func (c *BackendClient) do(ctx context.Context, method, endpoint, path string, query url.Values, body, out any) error {
	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := bearerFromContext(ctx)
	if token == "" {
		token = c.token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.BackendRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	metrics.BackendRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Endpoint: endpoint, Status: resp.StatusCode}
		var eb backendErrorBody
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Message = eb.Error
			if apiErr.Message == "" {
				apiErr.Message = eb.Message
			}
		}
		c.log.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("backend returned error status")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// GetSummary fetches the dashboard summary; an empty portfolioID means the root scope
func (c *BackendClient) GetSummary(ctx context.Context, portfolioID string) (*models.DashboardSummary, error) {
	q := url.Values{}
	if portfolioID != "" {
		q.Set("portfolioId", portfolioID)
	}
	var out models.DashboardSummary
	if err := c.do(ctx, http.MethodGet, "dashboard_summary", "dashboard/summary", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BackendClient) GetPortfolioTree(ctx context.Context) ([]models.PortfolioNode, error) {
	var out models.PortfolioTreeResponse
	if err := c.do(ctx, http.MethodGet, "portfolio_tree", "portfolios/tree", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Roots, nil
}

func (c *BackendClient) CreatePortfolio(ctx context.Context, req models.CreatePortfolioRequest) (*models.PortfolioNode, error) {
	var out models.CreatePortfolioResponse
	if err := c.do(ctx, http.MethodPost, "portfolio_create", "portfolios", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Portfolio, nil
}

func (c *BackendClient) ListAssets(ctx context.Context) ([]models.Asset, error) {
	var out models.AssetListResponse
	if err := c.do(ctx, http.MethodGet, "asset_list", "assets", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

func (c *BackendClient) CreateAsset(ctx context.Context, req models.CreateAssetRequest) (*models.Asset, error) {
	var out models.CreateAssetResponse
	if err := c.do(ctx, http.MethodPost, "asset_create", "assets", nil, req, &out); err != nil {
		return nil, err
	}
	return &out.Asset, nil
}

// GetOrCreateCryptoAsset resolves a crypto asset by symbol, creating it on first use
func (c *BackendClient) GetOrCreateCryptoAsset(ctx context.Context, symbol string) (*models.Asset, models.ResolveOutcome, error) {
	var out models.CryptoAssetResponse
	if err := c.do(ctx, http.MethodPost, "asset_crypto", "assets/crypto", nil, models.CryptoAssetRequest{Symbol: symbol}, &out); err != nil {
		return nil, "", err
	}
	return &out.Asset, out.Mode, nil
}

func (c *BackendClient) GetCryptoCatalog(ctx context.Context) ([]models.CryptoCatalogItem, error) {
	var out models.CryptoCatalogResponse
	if err := c.do(ctx, http.MethodGet, "crypto_catalog", "crypto/catalog", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Cryptos, nil
}

// GetCryptoPrices fetches prices for all ids in one request. ids and vs are sent lower-cased.
func (c *BackendClient) GetCryptoPrices(ctx context.Context, ids []string, vs string) (map[string]models.PriceQuote, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs", strings.ToLower(vs))

	var out models.CryptoPricesResponse
	if err := c.do(ctx, http.MethodGet, "crypto_prices", "prices/crypto", q, nil, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return map[string]models.PriceQuote{}, nil
	}
	return out.Data, nil
}

func (c *BackendClient) UpsertPosition(ctx context.Context, portfolioID string, payload models.UpsertPayload) (*models.UpsertResult, error) {
	var out models.UpsertResult
	path := "portfolios/" + url.PathEscape(portfolioID) + "/positions"
	if err := c.do(ctx, http.MethodPost, "position_upsert", path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *BackendClient) ListPortfolioPositions(ctx context.Context, portfolioID string) ([]models.PositionListing, error) {
	var out models.PositionListResponse
	path := "portfolios/" + url.PathEscape(portfolioID) + "/positions"
	if err := c.do(ctx, http.MethodGet, "position_list", path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Positions, nil
}

// ListPositions lists the user's positions, filtered by asset when assetID is set.
// The endpoint answers either {positions: [...]} or a bare array.
func (c *BackendClient) ListPositions(ctx context.Context, assetID string) ([]models.PositionListing, error) {
	q := url.Values{}
	if assetID != "" {
		q.Set("assetId", assetID)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "positions", "positions", q, nil, &raw); err != nil {
		return nil, err
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []models.PositionListing
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to decode positions response: %w", err)
		}
		return list, nil
	}
	var out models.PositionListResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode positions response: %w", err)
	}
	return out.Positions, nil
}

func (c *BackendClient) ListLogs(ctx context.Context, query models.PositionLogQuery) (*models.PositionLogPage, error) {
	q := url.Values{}
	if query.PortfolioID != "" {
		q.Set("portfolioId", query.PortfolioID)
	}
	if query.AssetID != "" {
		q.Set("assetId", query.AssetID)
	}
	if query.Limit > 0 {
		q.Set("limit", strconv.Itoa(query.Limit))
	}
	if query.Offset > 0 {
		q.Set("offset", strconv.Itoa(query.Offset))
	}
	var out models.PositionLogPage
	if err := c.do(ctx, http.MethodGet, "logs", "logs", q, nil, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []models.PositionLog{}
	}
	return &out, nil
}
