package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/folio/internal/services"
)

// Error codes returned in the "error" field
const (
	codeLoginRequired    = "login_required"
	codeValidation       = "validation_failed"
	codeNotFound         = "not_found"
	codeStaleScope       = "stale_scope"
	codeNotApplicable    = "not_applicable"
	codeResolution       = "asset_resolution_failed"
	codeUpsert           = "upsert_failed"
	codeBackend          = "backend_unavailable"
	codeRequestCancelled = "request_cancelled"
	codeInternal         = "internal_error"
	codeBadRequest       = "bad_request"
)

// errorStatus maps a service error to an HTTP status, an error code and a user message
func errorStatus(err error) (int, string, string) {
	var apiErr *services.APIError
	var upsertErr *services.UpsertError

	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, codeLoginRequired, "session expired, please log in again"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, codeValidation, "please correct the highlighted fields"
	case errors.Is(err, services.ErrFormNotFound),
		errors.Is(err, services.ErrAssetNotInSummary),
		errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, codeNotFound, err.Error()
	case errors.Is(err, services.ErrStaleScope):
		return http.StatusConflict, codeStaleScope, err.Error()
	case errors.Is(err, services.ErrValuationModeLocked),
		errors.Is(err, services.ErrFieldNotApplicable):
		return http.StatusUnprocessableEntity, codeNotApplicable, err.Error()
	case errors.Is(err, services.ErrAborted),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, codeRequestCancelled, "request cancelled"
	case errors.Is(err, services.ErrResolution):
		return http.StatusBadGateway, codeResolution, "could not resolve the asset, nothing was saved"
	case errors.As(err, &upsertErr):
		status := http.StatusBadGateway
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			status = http.StatusUnprocessableEntity
		}
		return status, codeUpsert, upsertErr.UserMessage()
	case errors.Is(err, services.ErrSummaryLoad), errors.As(err, &apiErr):
		return http.StatusBadGateway, codeBackend, "portfolio backend unavailable"
	default:
		return http.StatusInternalServerError, codeInternal, "internal error"
	}
}

// respondError writes err as a JSON error body. Validation errors carry their fields.
func respondError(c *gin.Context, err error) {
	respondErrorWith(c, err, nil)
}

// respondErrorWith is respondError with extra body fields
func respondErrorWith(c *gin.Context, err error, extra gin.H) {
	status, code, msg := errorStatus(err)
	_ = c.Error(err)

	body := gin.H{"error": code, "message": msg}
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body["fields"] = verr.Fields
	}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": codeBadRequest, "message": msg})
}
