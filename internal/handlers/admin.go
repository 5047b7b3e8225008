package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/ledger"
	"github.com/aeras-mobility/aeras-backend/internal/models"
)

// GetAdminStats summarizes the fleet for the operator dashboard.
func GetAdminStats(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var passengerCount, pullerCount, onlinePullers int64
		db.Model(&models.Passenger{}).Count(&passengerCount)
		db.Model(&models.Puller{}).Count(&pullerCount)
		db.Model(&models.Puller{}).Where("is_online = ?", true).Count(&onlinePullers)

		type statusCount struct {
			Status string
			Count  int64
		}
		var byStatus []statusCount
		db.Model(&models.Ride{}).Select("status, count(*) as count").
			Group("status").Scan(&byStatus)

		rideCounts := gin.H{}
		var totalRides int64
		for _, sc := range byStatus {
			rideCounts[sc.Status] = sc.Count
			totalRides += sc.Count
		}

		var pointsAwarded int64
		db.Model(&models.RewardTransaction{}).
			Where("status = ?", models.RewardStatusRewarded).
			Select("coalesce(sum(points_amount), 0)").Scan(&pointsAwarded)

		c.JSON(200, gin.H{
			"passengers":    passengerCount,
			"pullers":       pullerCount,
			"onlinePullers": onlinePullers,
			"rides": gin.H{
				"total":    totalRides,
				"byStatus": rideCounts,
			},
			"pointsAwarded": pointsAwarded,
		})
	}
}

// ListRides returns rides with optional status/puller/passenger filters and
// simple offset pagination.
func ListRides(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := db.Preload("Passenger").Preload("Puller").Order("created_at desc")

		if status := c.Query("status"); status != "" {
			query = query.Where("status = ?", status)
		}
		if pullerID := c.Query("pullerId"); pullerID != "" {
			query = query.Where("puller_id = ?", pullerID)
		}
		if passengerID := c.Query("passengerId"); passengerID != "" {
			query = query.Where("passenger_id = ?", passengerID)
		}
		if from := c.Query("from"); from != "" {
			query = query.Where("created_at >= ?", from)
		}
		if to := c.Query("to"); to != "" {
			query = query.Where("created_at <= ?", to)
		}

		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

		var rides []models.Ride
		if err := query.Limit(limit).Offset(offset).Find(&rides).Error; err != nil {
			c.JSON(500, gin.H{"error": "Failed to fetch rides"})
			return
		}
		c.JSON(200, gin.H{"rides": rides})
	}
}

type AdjustPointsInput struct {
	HistoryID uint   `json:"historyId" binding:"required"`
	Amount    *int   `json:"amount" binding:"required"`
	Status    string `json:"status" binding:"required,oneof=PENDING REWARDED"`
}

// AdjustPoints rewrites one ledger entry and applies the balance delta. The
// original entry stays in the log with its new amount; no row is deleted.
func AdjustPoints(engine *ledger.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input AdjustPointsInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		txn, err := engine.Adjust(c.Request.Context(), input.HistoryID, *input.Amount, input.Status)
		if err != nil {
			c.JSON(500, gin.H{"error": "Failed to adjust points: " + err.Error()})
			return
		}
		c.JSON(200, gin.H{
			"message":     "Points adjusted",
			"transaction": txn,
		})
	}
}

type BanInput struct {
	Banned bool `json:"banned"`
}

// BanAccount suspends or restores a passenger or puller. Banned accounts can
// still log in to see history but cannot create or work rides.
func BanAccount(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input BanInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		var result *gorm.DB
		switch c.Param("role") {
		case models.RolePassenger:
			result = db.Model(&models.Passenger{}).Where("id = ?", c.Param("id")).
				Update("is_banned", input.Banned)
		case models.RolePuller:
			result = db.Model(&models.Puller{}).Where("id = ?", c.Param("id")).
				Update("is_banned", input.Banned)
		default:
			c.JSON(400, gin.H{"error": "Role must be passenger or puller"})
			return
		}

		if result.Error != nil {
			c.JSON(500, gin.H{"error": "Failed to update account"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(404, gin.H{"error": "Account not found"})
			return
		}
		c.JSON(200, gin.H{"message": "Account updated"})
	}
}

// RunReconciliation triggers an immediate ledger sweep instead of waiting for
// the next scheduled run.
func RunReconciliation(rec *ledger.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := rec.RunOnce(c.Request.Context())
		if err != nil {
			c.JSON(500, gin.H{"error": "Reconciliation failed: " + err.Error()})
			return
		}
		c.JSON(200, gin.H{"report": report})
	}
}
