package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codyseavey/folio/internal/models"
	"github.com/rs/zerolog"
)

func ptr[T any](v T) *T { return &v }

// fakeBackend is an in-memory portfolio backend served over httptest
type fakeBackend struct {
	mu sync.Mutex

	summaries     map[string]models.DashboardSummary // keyed by portfolioId, "" for root
	summaryStatus int

	tree         []models.PortfolioNode
	treeByBearer map[string][]models.PortfolioNode // overrides tree for that token
	treeStatus   int
	denied       map[string]bool // tokens answered with 401

	assets       []models.Asset
	assetsStatus int
	createStatus int

	cryptoAssets map[string]models.Asset // keyed by symbol
	cryptoStatus int

	catalog       []models.CryptoCatalogItem
	catalogStatus int

	prices      map[string]models.PriceQuote
	priceStatus int
	priceCalls  []url.Values

	upsertStatus int
	upserts      []fakeUpsert

	positionsByAsset      []models.PositionListing
	positionsStatus       int
	positionsFilterStatus int
	bareArrayPositions    bool

	logs      models.PositionLogPage
	logsQuery url.Values

	calls      map[string]int
	lastBearer string
}

type fakeUpsert struct {
	PortfolioID string
	Payload     map[string]any
}

func newFakeBackend(t *testing.T) (*fakeBackend, *BackendClient) {
	t.Helper()

	fb := &fakeBackend{
		summaries:    map[string]models.DashboardSummary{},
		treeByBearer: map[string][]models.PortfolioNode{},
		denied:       map[string]bool{},
		cryptoAssets: map[string]models.Asset{},
		prices:       map[string]models.PriceQuote{},
		calls:        map[string]int{},
	}
	srv := httptest.NewServer(fb.routes())
	t.Cleanup(srv.Close)

	client := NewBackendClient(srv.URL+"/api/v1", "", 5*time.Second, zerolog.Nop())
	return fb, client
}

func (fb *fakeBackend) count(name string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.calls[name]
}

func (fb *fakeBackend) upsertCalls() []fakeUpsert {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]fakeUpsert(nil), fb.upserts...)
}

func (fb *fakeBackend) priceQueries() []url.Values {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]url.Values(nil), fb.priceCalls...)
}

func (fb *fakeBackend) bearer() string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.lastBearer
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBackend) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) fail(w http.ResponseWriter, status int) bool {
	if status == 0 || status == http.StatusOK {
		return false
	}
	fb.writeJSON(w, status, map[string]any{"ok": false, "error": http.StatusText(status)})
	return true
}

func (fb *fakeBackend) routes() http.Handler {
	mux := http.NewServeMux()

	track := func(name string, h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			fb.mu.Lock()
			fb.calls[name]++
			fb.lastBearer = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			denied := fb.denied[fb.lastBearer]
			fb.mu.Unlock()
			if denied {
				fb.writeJSON(w, http.StatusUnauthorized, map[string]any{"ok": false, "error": "invalid token"})
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /api/v1/dashboard/summary", track("summary", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.fail(w, fb.summaryStatus) {
			return
		}
		s, ok := fb.summaries[r.URL.Query().Get("portfolioId")]
		if !ok {
			fb.writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "portfolio not found"})
			return
		}
		fb.writeJSON(w, http.StatusOK, s)
	}))

	mux.HandleFunc("GET /api/v1/portfolios/tree", track("tree", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.fail(w, fb.treeStatus) {
			return
		}
		roots := fb.tree
		if t, ok := fb.treeByBearer[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]; ok {
			roots = t
		}
		fb.writeJSON(w, http.StatusOK, models.PortfolioTreeResponse{OK: true, Roots: roots})
	}))

	mux.HandleFunc("GET /api/v1/assets", track("assets", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.fail(w, fb.assetsStatus) {
			return
		}
		fb.writeJSON(w, http.StatusOK, models.AssetListResponse{OK: true, Assets: fb.assets})
	}))

	mux.HandleFunc("POST /api/v1/assets", track("asset_create", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.fail(w, fb.createStatus) {
			return
		}
		var req models.CreateAssetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		a := models.Asset{ID: "asset-" + strings.ToLower(strings.ReplaceAll(req.Name, " ", "-")), Type: req.Type, Name: req.Name, Currency: req.Currency}
		if req.Symbol != "" {
			a.Symbol = ptr(req.Symbol)
		}
		fb.assets = append(fb.assets, a)
		fb.writeJSON(w, http.StatusCreated, models.CreateAssetResponse{OK: true, Asset: a})
	}))

	mux.HandleFunc("POST /api/v1/assets/crypto", track("asset_crypto", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.fail(w, fb.cryptoStatus) {
			return
		}
		var req models.CryptoAssetRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if a, ok := fb.cryptoAssets[req.Symbol]; ok {
			fb.writeJSON(w, http.StatusOK, models.CryptoAssetResponse{OK: true, Mode: models.ResolveExisting, Asset: a})
			return
		}
		var item *models.CryptoCatalogItem
		for i := range fb.catalog {
			if fb.catalog[i].Symbol == req.Symbol {
				item = &fb.catalog[i]
			}
		}
		if item == nil {
			fb.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "unknown symbol " + req.Symbol})
			return
		}
		a := models.Asset{ID: "crypto-" + strings.ToLower(req.Symbol), Type: models.AssetTypeCrypto, Name: item.Name, Symbol: ptr(req.Symbol), ProviderRef: ptr(item.ProviderRef)}
		fb.cryptoAssets[req.Symbol] = a
		fb.writeJSON(w, http.StatusCreated, models.CryptoAssetResponse{OK: true, Mode: models.ResolveCreated, Asset: a})
	}))

	mux.HandleFunc("GET /api/v1/crypto/catalog", track("catalog", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if fb.fail(w, fb.catalogStatus) {
			return
		}
		fb.writeJSON(w, http.StatusOK, models.CryptoCatalogResponse{OK: true, Provider: "coingecko", Cryptos: fb.catalog})
	}))

	mux.HandleFunc("GET /api/v1/prices/crypto", track("prices", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.priceCalls = append(fb.priceCalls, r.URL.Query())
		if fb.fail(w, fb.priceStatus) {
			return
		}
		data := map[string]models.PriceQuote{}
		for _, id := range strings.Split(r.URL.Query().Get("ids"), ",") {
			if q, ok := fb.prices[id]; ok {
				data[id] = q
			}
		}
		fb.writeJSON(w, http.StatusOK, models.CryptoPricesResponse{OK: true, Data: data})
	}))

	mux.HandleFunc("POST /api/v1/portfolios/{id}/positions", track("upsert", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fb.upserts = append(fb.upserts, fakeUpsert{PortfolioID: r.PathValue("id"), Payload: payload})
		if fb.upsertStatus != 0 && fb.upsertStatus != http.StatusOK {
			fb.writeJSON(w, fb.upsertStatus, map[string]any{"ok": false, "error": "portfolio is archived"})
			return
		}
		assetID, _ := payload["assetId"].(string)
		outcome := models.UpsertCreated
		for _, u := range fb.upserts[:len(fb.upserts)-1] {
			if u.PortfolioID == r.PathValue("id") && u.Payload["assetId"] == assetID {
				outcome = models.UpsertUpdated
			}
		}
		fb.writeJSON(w, http.StatusOK, models.UpsertResult{
			OK:   true,
			Mode: outcome,
			Position: models.Position{
				ID:          "pos-1",
				PortfolioID: r.PathValue("id"),
				AssetID:     assetID,
			},
		})
	}))

	mux.HandleFunc("GET /api/v1/positions", track("positions", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		if r.URL.Query().Get("assetId") != "" && fb.fail(w, fb.positionsFilterStatus) {
			return
		}
		if fb.fail(w, fb.positionsStatus) {
			return
		}
		if fb.bareArrayPositions {
			fb.writeJSON(w, http.StatusOK, fb.positionsByAsset)
			return
		}
		fb.writeJSON(w, http.StatusOK, models.PositionListResponse{OK: true, Positions: fb.positionsByAsset})
	}))

	mux.HandleFunc("GET /api/v1/logs", track("logs", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		fb.logsQuery = r.URL.Query()
		fb.writeJSON(w, http.StatusOK, fb.logs)
	}))

	return mux
}

// sampleTree has one root with a CRYPTO child and a METALS child that has a grandchild
func sampleTree() []models.PortfolioNode {
	return []models.PortfolioNode{
		{
			ID:       "root",
			Name:     "Main",
			Category: models.CategoryGeneral,
			Children: []models.PortfolioNode{
				{ID: "crypto", ParentID: ptr("root"), Name: "Crypto", Category: models.CategoryCrypto},
				{
					ID:       "metals",
					ParentID: ptr("root"),
					Name:     "Metals",
					Category: models.CategoryMetals,
					Children: []models.PortfolioNode{
						{ID: "gold", ParentID: ptr("metals"), Name: "Gold", Category: models.CategoryMetals},
					},
				},
			},
		},
	}
}

func sampleCatalog() []models.CryptoCatalogItem {
	return []models.CryptoCatalogItem{
		{Symbol: "BTC", Name: "Bitcoin", ProviderRef: "bitcoin", LogoURL: "https://img.test/btc.png"},
		{Symbol: "ETH", Name: "Ethereum", ProviderRef: "ethereum", LogoURL: "https://img.test/eth.png"},
	}
}
