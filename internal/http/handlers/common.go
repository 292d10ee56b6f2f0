package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"charterops/internal/utils"
)

// BindJSONOrError ensures body is present and parsable.
func BindJSONOrError[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		respondError(c, http.StatusBadRequest, "validation_error", "empty body", nil)
		return false
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", "invalid payload: "+err.Error(), nil)
		return false
	}
	return true
}

// bindOptionalJSON accepts an absent body and leaves dst untouched.
func bindOptionalJSON[T any](c *gin.Context, dst *T) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	return BindJSONOrError(c, dst)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "validation_error", name+" must be a positive integer", gin.H{"field": name})
		return 0, false
	}
	return id, true
}

func queryID(c *gin.Context, name string, required bool) (int64, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" && !required {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "validation_error", name+" must be a positive integer", gin.H{"field": name})
		return 0, false
	}
	return id, true
}

func queryTime(c *gin.Context, name string) (time.Time, bool) {
	t, err := utils.ParseInstant(c.Query(name))
	if err != nil {
		respondError(c, http.StatusBadRequest, "validation_error", name+" must be an RFC 3339 time", gin.H{"field": name})
		return time.Time{}, false
	}
	return t, true
}
