package handlers

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/pkg/utils"
)

type RegisterInput struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
	Role     string `json:"role" binding:"required,oneof=passenger puller"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func Register(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		switch input.Role {
		case models.RolePassenger:
			passenger := models.Passenger{
				Username:    input.Username,
				Email:       input.Email,
				Password:    input.Password,
				PhoneNumber: input.Phone,
			}
			if err := passenger.HashPassword(); err != nil {
				c.JSON(500, gin.H{"error": "Failed to hash password"})
				return
			}
			if result := db.Create(&passenger); result.Error != nil {
				c.JSON(500, gin.H{"error": "Failed to create account: " + result.Error.Error()})
				return
			}
			c.JSON(201, gin.H{
				"message": "Account created successfully",
				"user": gin.H{
					"id":       passenger.ID,
					"username": passenger.Username,
					"email":    passenger.Email,
					"role":     models.RolePassenger,
				},
			})

		case models.RolePuller:
			puller := models.Puller{
				Username:    input.Username,
				Email:       input.Email,
				Password:    input.Password,
				PhoneNumber: input.Phone,
			}
			if err := puller.HashPassword(); err != nil {
				c.JSON(500, gin.H{"error": "Failed to hash password"})
				return
			}
			if result := db.Create(&puller); result.Error != nil {
				c.JSON(500, gin.H{"error": "Failed to create account: " + result.Error.Error()})
				return
			}
			c.JSON(201, gin.H{
				"message": "Account created successfully",
				"user": gin.H{
					"id":       puller.ID,
					"username": puller.Username,
					"email":    puller.Email,
					"role":     models.RolePuller,
				},
			})
		}
	}
}

// Login checks the passenger, puller and admin tables in turn; emails are
// unique within a table but the same address may not exist across tables.
func Login(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		var passenger models.Passenger
		if err := db.Where("email = ?", input.Email).First(&passenger).Error; err == nil {
			if passenger.CheckPassword(input.Password) != nil {
				c.JSON(401, gin.H{"error": "Invalid email or password"})
				return
			}
			if passenger.IsBanned {
				c.JSON(403, gin.H{"error": "Account is suspended"})
				return
			}
			issueToken(c, passenger.ID, passenger.Email, passenger.Username, models.RolePassenger)
			return
		}

		var puller models.Puller
		if err := db.Where("email = ?", input.Email).First(&puller).Error; err == nil {
			if puller.CheckPassword(input.Password) != nil {
				c.JSON(401, gin.H{"error": "Invalid email or password"})
				return
			}
			if puller.IsBanned {
				c.JSON(403, gin.H{"error": "Account is suspended"})
				return
			}
			issueToken(c, puller.ID, puller.Email, puller.Username, models.RolePuller)
			return
		}

		var admin models.Admin
		if err := db.Where("email = ?", input.Email).First(&admin).Error; err == nil {
			if admin.CheckPassword(input.Password) != nil {
				c.JSON(401, gin.H{"error": "Invalid email or password"})
				return
			}
			issueToken(c, admin.ID, admin.Email, admin.Username, models.RoleAdmin)
			return
		}

		c.JSON(401, gin.H{"error": "Invalid email or password"})
	}
}

// UpdateFCMToken stores the device token a passenger registered for pushes.
func UpdateFCMToken(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			FCMToken string `json:"fcmToken" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}

		userID := c.MustGet("userId").(uint)
		result := db.Model(&models.Passenger{}).Where("id = ?", userID).
			Update("fcm_token", input.FCMToken)
		if result.Error != nil {
			c.JSON(500, gin.H{"error": "Failed to update device token"})
			return
		}
		if result.RowsAffected == 0 {
			c.JSON(404, gin.H{"error": "Passenger not found"})
			return
		}
		c.JSON(200, gin.H{"message": "Device token updated"})
	}
}

func issueToken(c *gin.Context, id uint, email, username, role string) {
	token, err := utils.GenerateToken(id, email, role)
	if err != nil {
		c.JSON(500, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(200, gin.H{
		"token": token,
		"user": gin.H{
			"id":       id,
			"username": username,
			"email":    email,
			"role":     role,
		},
	})
}
