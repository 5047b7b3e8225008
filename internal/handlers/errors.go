package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/coordinator"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

// writeRideError maps coordinator and store errors onto HTTP responses.
// Conflict means another actor won the same transition first; it is reported
// as 409 so clients can refresh instead of retrying blindly.
func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrConflict):
		c.JSON(409, gin.H{"error": "Ride was updated by another request"})
	case errors.Is(err, store.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(404, gin.H{"error": "Ride not found"})
	case errors.Is(err, store.ErrUnavailable):
		c.JSON(503, gin.H{"error": "Storage temporarily unavailable"})
	case errors.Is(err, coordinator.ErrInvalidState):
		c.JSON(422, gin.H{"error": "Ride is not in a state that allows this action"})
	case errors.Is(err, coordinator.ErrUnauthorizedActor):
		c.JSON(403, gin.H{"error": "Not authorized for this ride"})
	case errors.Is(err, coordinator.ErrUnknownPassenger):
		c.JSON(404, gin.H{"error": "Passenger not found"})
	case errors.Is(err, coordinator.ErrNoPullerAssigned):
		c.JSON(422, gin.H{"error": "Ride has no assigned puller"})
	default:
		c.JSON(500, gin.H{"error": "Failed to process ride request"})
	}
}
