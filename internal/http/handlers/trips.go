package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"charterops/internal/http/middleware"
	"charterops/internal/services"
)

type acceptRequest struct {
	DriverID int64 `json:"driver_id"`
}

func (h *Handler) GetTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	out, err := h.Dispatch.Get(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) TripHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	rows, err := h.Dispatch.History(c.Request.Context(), id)
	if err != nil {
		RespondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "count": len(rows)})
}

func (h *Handler) AssignTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.AssignRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	req.TripID, req.ActorID = id, middleware.ActorID(c)
	h.respondAssignment(c)(h.Dispatch.Assign(c.Request.Context(), req))
}

func (h *Handler) ReassignTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.ReassignRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	req.TripID, req.ActorID = id, middleware.ActorID(c)
	h.respondAssignment(c)(h.Dispatch.Reassign(c.Request.Context(), req))
}

func (h *Handler) UnassignTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.UnassignRequest
	if !BindJSONOrError(c, &req) {
		return
	}
	req.TripID, req.ActorID = id, middleware.ActorID(c)
	h.respondAssignment(c)(h.Dispatch.Unassign(c.Request.Context(), req))
}

func (h *Handler) CancelTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body reasonRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	h.respondAssignment(c)(h.Dispatch.Cancel(c.Request.Context(), id, body.Reason, middleware.ActorID(c)))
}

func (h *Handler) AcceptTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var body acceptRequest
	if !BindJSONOrError(c, &body) {
		return
	}
	h.respondAssignment(c)(h.Dispatch.Accept(c.Request.Context(), id, body.DriverID, middleware.ActorID(c)))
}

func (h *Handler) StartTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.respondAssignment(c)(h.Dispatch.Start(c.Request.Context(), id, middleware.ActorID(c)))
}

func (h *Handler) CompleteTrip(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.respondAssignment(c)(h.Dispatch.Complete(c.Request.Context(), id, middleware.ActorID(c)))
}

func (h *Handler) respondAssignment(c *gin.Context) func(services.TripAssignment, error) {
	return func(out services.TripAssignment, err error) {
		if err != nil {
			RespondDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, out)
	}
}
