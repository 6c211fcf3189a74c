package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/folio/internal/models"
	"github.com/codyseavey/folio/internal/services"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 200
)

// LogLister serves the position audit log
type LogLister interface {
	ListLogs(ctx context.Context, query models.PositionLogQuery) (*models.PositionLogPage, error)
}

// CatalogHandler serves the read-only collaborator data the UI needs around the workflow:
// portfolio tree, selectable assets, crypto catalog and position logs
type CatalogHandler struct {
	workspaces *services.Workspaces
	logos      *services.LogoCache
	logs       LogLister
}

func NewCatalogHandler(workspaces *services.Workspaces, logos *services.LogoCache, logs LogLister) *CatalogHandler {
	return &CatalogHandler{
		workspaces: workspaces,
		logos:      logos,
		logs:       logs,
	}
}

// GetPortfolioTree returns the caller's last tree snapshot and selectable portfolios.
// ?refresh=true fetches a new snapshot first.
func (h *CatalogHandler) GetPortfolioTree(c *gin.Context) {
	load := h.workspaces.For
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		load = h.workspaces.Refresh
	}
	ws, err := load(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"roots":      nonNil(ws.Index.Roots()),
		"portfolios": nonNil(ws.Index.Portfolios()),
	}
	if ts := ws.Index.UpdatedAt(); !ts.IsZero() {
		body["updatedAt"] = ts.Format(time.RFC3339)
	}
	if err := ws.Index.LastError(); err != nil {
		body["stale"] = true
	}
	c.JSON(http.StatusOK, body)
}

// GetAssets returns the caller's selectable non-crypto assets and the types a user may create
func (h *CatalogHandler) GetAssets(c *gin.Context) {
	ws, err := h.workspaces.For(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"assets":      nonNil(ws.Assets.SelectableAssets()),
		"manualTypes": models.ManualAssetTypes(),
	})
}

func (h *CatalogHandler) GetCryptoCatalog(c *gin.Context) {
	items, err := h.logos.Catalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cryptos": nonNil(items)})
}

// GetLogs lists position log entries, filtered by ?portfolioId= and ?assetId=, paged by
// ?limit= (default 50, at most 200) and ?offset=
func (h *CatalogHandler) GetLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	page, err := h.logs.ListLogs(c.Request.Context(), models.PositionLogQuery{
		PortfolioID: c.Query("portfolioId"),
		AssetID:     c.Query("assetId"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  page.Items,
		"count":  page.Count,
		"limit":  limit,
		"offset": offset,
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
