package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/folio/internal/models"
	"github.com/codyseavey/folio/internal/services"
)

type DashboardHandler struct {
	view    *services.DashboardView
	prefs   *services.PreferenceService
	details *services.AssetDetailService
}

func NewDashboardHandler(view *services.DashboardView, prefs *services.PreferenceService, details *services.AssetDetailService) *DashboardHandler {
	return &DashboardHandler{
		view:    view,
		prefs:   prefs,
		details: details,
	}
}

// DashboardResponse is an enriched scope with its rows in the applied order
type DashboardResponse struct {
	models.EnrichedSummary
	Sort services.AssetSort `json:"sort"`
}

// GetDashboard returns the enriched summary for ?portfolioId= (root when absent).
// Rows follow ?sort=&dir= when given, else the persisted order.
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	order, ok := h.resolveSort(c)
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	res, err := h.view.Open(c.Request.Context(), c.Query("portfolioId"), refresh)
	if err != nil {
		respondError(c, err)
		return
	}

	out := DashboardResponse{EnrichedSummary: *res, Sort: order}
	out.Rows = services.SortRows(res.Rows, order)
	c.JSON(http.StatusOK, out)
}

func (h *DashboardHandler) resolveSort(c *gin.Context) (services.AssetSort, bool) {
	order := h.prefs.AssetSort(c.Request.Context())
	if raw := c.Query("sort"); raw != "" {
		key, ok := services.ParseSortKey(raw)
		if !ok {
			badRequest(c, "unknown sort key "+strconv.Quote(raw))
			return order, false
		}
		order.Key = key
	}
	if raw := c.Query("dir"); raw != "" {
		dir, ok := services.ParseSortDir(raw)
		if !ok {
			badRequest(c, "unknown sort direction "+strconv.Quote(raw))
			return order, false
		}
		order.Dir = dir
	}
	return order, true
}

// GetAssetDetail returns the drill-down for one asset of the root scope
func (h *DashboardHandler) GetAssetDetail(c *gin.Context) {
	detail, err := h.details.Load(c.Request.Context(), c.Param("assetId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *DashboardHandler) GetAssetSort(c *gin.Context) {
	c.JSON(http.StatusOK, h.prefs.AssetSort(c.Request.Context()))
}

// PutAssetSort persists the dashboard row order
func (h *DashboardHandler) PutAssetSort(c *gin.Context) {
	var req services.AssetSort
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if key, ok := services.ParseSortKey(string(req.Key)); ok {
		req.Key = key
	}
	if dir, ok := services.ParseSortDir(string(req.Dir)); ok {
		req.Dir = dir
	}
	if err := req.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.prefs.SetAssetSort(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
