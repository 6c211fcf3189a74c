package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/folio/internal/models"
	"github.com/codyseavey/folio/internal/services"
)

// FormHandler drives position forms. Each caller only sees the forms of its own
// workspace, so a form id from another token is not found.
type FormHandler struct {
	workspaces *services.Workspaces
}

func NewFormHandler(workspaces *services.Workspaces) *FormHandler {
	return &FormHandler{workspaces: workspaces}
}

// formsFor resolves the caller's form store, writing the error response when it cannot
func (h *FormHandler) formsFor(c *gin.Context) (*services.FormStore, bool) {
	ws, err := h.workspaces.For(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return ws.Forms, true
}

type createFormRequest struct {
	PortfolioID string `json:"portfolioId"`
}

type selectPortfolioRequest struct {
	PortfolioID string `json:"portfolioId" binding:"required"`
}

type valuationModeRequest struct {
	ValueMode string `json:"valueMode" binding:"required"`
}

type assetDraftRequest struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// bindOptionalJSON binds the body when there is one
func bindOptionalJSON(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

// respondForm writes the form view, or the error together with the form's current state
func respondForm(c *gin.Context, view services.FormView, err error) {
	if err != nil {
		if view.ID == "" {
			respondError(c, err)
			return
		}
		respondErrorWith(c, err, gin.H{"form": view})
		return
	}
	c.JSON(http.StatusOK, view)
}

// CreateForm opens a new position form session
func (h *FormHandler) CreateForm(c *gin.Context) {
	var req createFormRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, forms.Create(req.PortfolioID))
}

func (h *FormHandler) GetForm(c *gin.Context) {
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.Get(c.Param("id"))
	respondForm(c, view, err)
}

func (h *FormHandler) DeleteForm(c *gin.Context) {
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	if err := forms.Delete(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FormHandler) SelectPortfolio(c *gin.Context) {
	var req selectPortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.SelectPortfolio(c.Param("id"), req.PortfolioID)
	respondForm(c, view, err)
}

func (h *FormHandler) SetValuationMode(c *gin.Context) {
	var req valuationModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	mode, ok := models.ParseValueMode(req.ValueMode)
	if !ok {
		badRequest(c, "valueMode must be MANUAL or MARKET")
		return
	}
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.SetValuationMode(c.Param("id"), mode)
	respondForm(c, view, err)
}

// UpdateFields applies a partial field update; absent fields are left alone
func (h *FormHandler) UpdateFields(c *gin.Context) {
	var req services.FieldUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.UpdateFields(c.Param("id"), req)
	respondForm(c, view, err)
}

func (h *FormHandler) OpenManualAsset(c *gin.Context) {
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.OpenManualAsset(c.Param("id"))
	respondForm(c, view, err)
}

func (h *FormHandler) CloseManualAsset(c *gin.Context) {
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.CloseManualAsset(c.Param("id"))
	respondForm(c, view, err)
}

func (h *FormHandler) UpdateManualAsset(c *gin.Context) {
	var req assetDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, err := forms.SetManualAssetDraft(c.Param("id"), services.ManualAssetDraft{
		Type:   models.NormalizeAssetType(req.Type),
		Name:   req.Name,
		Symbol: req.Symbol,
	})
	respondForm(c, view, err)
}

// CreateManualAsset creates the drafted asset and selects it on the form
func (h *FormHandler) CreateManualAsset(c *gin.Context) {
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, asset, err := forms.CreateManualAsset(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondForm(c, view, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"form": view, "asset": asset})
}

// Submit resolves the asset when needed and upserts the position
func (h *FormHandler) Submit(c *gin.Context) {
	forms, ok := h.formsFor(c)
	if !ok {
		return
	}
	view, result, err := forms.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		extra := gin.H{}
		if view.ID != "" {
			extra["form"] = view
		}
		var serr *services.SubmitError
		if errors.As(err, &serr) {
			extra["phase"] = serr.Phase
		}
		respondErrorWith(c, err, extra)
		return
	}

	body := gin.H{
		"form":     view,
		"outcome":  result.Result.Mode,
		"position": result.Result.Position,
		"payload":  result.Payload,
	}
	if result.ResolvedAsset != nil {
		body["asset"] = result.ResolvedAsset
		body["resolution"] = result.Resolution
	}
	c.JSON(http.StatusOK, body)
}
