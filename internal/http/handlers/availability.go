package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"charterops/internal/services"
)

// CheckAvailability answers GET /api/availability?branch_id=&category_id=
// &start_time=&end_time=&quantity=. Times are RFC 3339.
func (h *Handler) CheckAvailability(c *gin.Context) {
	var req services.AvailabilityRequest
	var ok bool
	if req.BranchID, ok = queryID(c, "branch_id", true); !ok {
		return
	}
	if req.CategoryID, ok = queryID(c, "category_id", true); !ok {
		return
	}
	if req.ExcludeBookingID, ok = queryID(c, "exclude_booking_id", false); !ok {
		return
	}
	if req.StartTime, ok = queryTime(c, "start_time"); !ok {
		return
	}
	if req.EndTime, ok = queryTime(c, "end_time"); !ok {
		return
	}
	req.Quantity = 1
	if raw := strings.TrimSpace(c.Query("quantity")); raw != "" {
		q, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "validation_error", "quantity must be an integer", gin.H{"field": "quantity"})
			return
		}
		req.Quantity = q
	}

	res, err := h.Availability.Check(c.Request.Context(), req)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
