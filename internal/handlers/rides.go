package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/coordinator"
	"github.com/aeras-mobility/aeras-backend/internal/ledger"
	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/services"
)

type CreateRideInput struct {
	PickupLocationID      string `json:"pickupLocationId" binding:"required"`
	DestinationLocationID string `json:"destinationLocationId" binding:"required"`
}

// CreateRide opens a new ride request for the authenticated passenger. The
// request auto-cancels if no puller accepts within the configured window.
func CreateRide(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		passengerID := c.MustGet("userId").(uint)
		ride, err := co.CreateRide(c.Request.Context(), passengerID,
			input.PickupLocationID, input.DestinationLocationID)
		if err != nil {
			writeRideError(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message": "Ride requested",
			"ride":    ride,
		})
	}
}

// SimulateRide creates a ride with no owning passenger for load and demo
// traffic. Simulated rides never receive device notifications.
func SimulateRide(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateRideInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		ride, err := co.SimulateRide(c.Request.Context(),
			input.PickupLocationID, input.DestinationLocationID)
		if err != nil {
			writeRideError(c, err)
			return
		}

		c.JSON(201, gin.H{
			"message": "Simulated ride created",
			"ride":    ride,
		})
	}
}

func GetRide(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var ride models.Ride
		err := db.Preload("Passenger").Preload("Puller").
			Where("id = ?", c.Param("id")).First(&ride).Error
		if err != nil {
			writeRideError(c, err)
			return
		}
		c.JSON(200, gin.H{"ride": ride})
	}
}

// GetOpenRides lists rides still waiting for a puller, oldest first.
func GetOpenRides(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rides []models.Ride
		err := db.Where("status = ?", models.RideStatusRequested).
			Order("created_at asc").Find(&rides).Error
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch open rides"})
			return
		}
		c.JSON(200, gin.H{"rides": rides})
	}
}

// GetMyRides returns the caller's ride history, newest first.
func GetMyRides(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet("userId").(uint)
		role := c.MustGet("role").(string)

		query := db.Preload("Passenger").Preload("Puller").Order("created_at desc")
		if role == models.RolePuller {
			query = query.Where("puller_id = ?", userID)
		} else {
			query = query.Where("passenger_id = ?", userID)
		}

		var rides []models.Ride
		if err := query.Find(&rides).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch rides"})
			return
		}
		c.JSON(200, gin.H{"rides": rides})
	}
}

// AcceptRide claims an open ride for the authenticated puller. At most one
// puller ever wins; losers get 409.
func AcceptRide(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		pullerID := c.MustGet("userId").(uint)
		ride, err := co.AcceptRide(c.Request.Context(), c.Param("id"), pullerID)
		if err != nil {
			writeRideError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message": "Ride accepted",
			"ride":    ride,
		})
	}
}

func StartRide(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		pullerID := c.MustGet("userId").(uint)
		ride, err := co.StartRide(c.Request.Context(), c.Param("id"), pullerID)
		if err != nil {
			writeRideError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message": "Ride started",
			"ride":    ride,
		})
	}
}

// CompleteRide finalizes a ride and credits the puller's completion reward.
// The reward is best-effort from the caller's view; a ledger fault never
// fails the completion itself.
func CompleteRide(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		pullerID := c.MustGet("userId").(uint)
		ride, txn, err := co.CompleteRide(c.Request.Context(), c.Param("id"), pullerID)
		if err != nil {
			writeRideError(c, err)
			return
		}

		resp := gin.H{
			"message": "Ride completed",
			"ride":    ride,
		}
		if txn != nil {
			resp["reward"] = gin.H{
				"pointsAmount": txn.PointsAmount,
				"status":       txn.Status,
			}
		}
		c.JSON(200, resp)
	}
}

func CancelRide(co *coordinator.Coordinator) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := coordinator.Actor{
			ID:   c.MustGet("userId").(uint),
			Role: c.MustGet("role").(string),
		}
		ride, err := co.CancelRide(c.Request.Context(), c.Param("id"), actor)
		if err != nil {
			writeRideError(c, err)
			return
		}
		c.JSON(200, gin.H{
			"message": "Ride canceled",
			"ride":    ride,
		})
	}
}

// GetPullerPoints returns the cached balance plus the most recent ledger
// entries backing it.
func GetPullerPoints(balances ledger.BalanceStore, txlog ledger.TransactionLog) gin.HandlerFunc {
	return func(c *gin.Context) {
		pullerID := c.MustGet("userId").(uint)

		balance, err := balances.Balance(c.Request.Context(), pullerID)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch points balance"})
			return
		}
		recent, err := txlog.RecentForPuller(c.Request.Context(), pullerID, 20)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch reward history"})
			return
		}

		c.JSON(200, gin.H{
			"pointsBalance": balance,
			"transactions":  recent,
		})
	}
}

// UpdatePresence flips the puller's availability flag and mirrors it into
// Redis so presence survives across API instances.
func UpdatePresence(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			IsOnline *bool `json:"isOnline" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		pullerID := c.MustGet("userId").(uint)
		result := db.Model(&models.Puller{}).Where("id = ?", pullerID).
			Update("is_online", *input.IsOnline)
		if result.Error != nil {
			c.JSON(500, gin.H{"error": "Failed to update presence"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(404, gin.H{"error": "Puller not found"})
			return
		}

		if err := services.SetPullerPresence(c.Request.Context(), pullerID, *input.IsOnline); err != nil {
			// Redis mirror is advisory; database stays the source of truth.
			c.JSON(200, gin.H{"message": "Presence updated", "warning": "presence cache unavailable"})
			return
		}
		c.JSON(200, gin.H{"message": "Presence updated"})
	}
}
