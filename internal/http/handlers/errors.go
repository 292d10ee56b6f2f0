package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"charterops/internal/domain"
	"charterops/internal/http/middleware"
	"charterops/internal/utils"
)

// ErrorResponse is the error payload of every endpoint.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}

// RespondDomainError maps domain errors to HTTP responses. Business rule
// outcomes are 422 with their machine-readable code. A conflict is matched
// first: it may wrap the rule failure that exposed a lost race, and the
// caller must still see a retryable 409.
func RespondDomainError(c *gin.Context, err error) {
	var (
		validation domain.ValidationError
		business   domain.BusinessError
	)
	switch {
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.As(err, &validation):
		var details any
		if validation.Field != "" {
			details = gin.H{"field": validation.Field}
		}
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), details)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &business):
		var details any
		if len(business.Details) > 0 {
			details = business.Details
		}
		respondError(c, http.StatusUnprocessableEntity, business.Code, business.Reason, details)
	default:
		utils.LogFailure(c.Request.Context(), "http", c.FullPath(), err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
