package handlers

import (
	"errors"
	"net/http"

	"prediclaw/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// respondError maps settlement errors onto HTTP statuses: validation and
// resource errors are 400, state conflicts 409, unknown entities 404.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidAmount),
		errors.Is(err, services.ErrInvalidOutcomes),
		errors.Is(err, services.ErrPolicyInvalid),
		errors.Is(err, services.ErrUnknownOutcome),
		errors.Is(err, services.ErrInvalidReason),
		errors.Is(err, services.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrMarketNotOpen),
		errors.Is(err, services.ErrMarketStillOpen),
		errors.Is(err, services.ErrAlreadyResolved),
		errors.Is(err, services.ErrResolutionDeadlock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotResolver):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// parseID parses a path parameter as a UUID, writing a 400 on failure.
func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
