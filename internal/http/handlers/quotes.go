package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"charterops/internal/services"
)

// Quote prices a request without reserving anything.
func (h *Handler) Quote(c *gin.Context) {
	var req services.QuoteRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	q, err := h.Tariff.Quote(c.Request.Context(), req)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}
