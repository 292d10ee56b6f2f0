package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"charterops/internal/http/middleware"
	"charterops/internal/services"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req services.CreateBookingRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	b, err := h.Bookings.CreateBooking(c.Request.Context(), req, middleware.ActorID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.Get(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// ListUnstaffedBookings lists holding bookings that never got their trips,
// optionally filtered by ?branch_id=.
func (h *Handler) ListUnstaffedBookings(c *gin.Context) {
	branchID, ok := queryID(c, "branch_id", false)
	if !ok {
		return
	}
	list, err := h.Bookings.ListUnstaffed(c.Request.Context(), branchID)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "count": len(list)})
}

func (h *Handler) AutoAssignBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	b, err := h.Bookings.AutoAssign(c.Request.Context(), id, middleware.ActorID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body reasonRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	b, err := h.Bookings.CancelBooking(c.Request.Context(), id, body.Reason, middleware.ActorID(c))
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
