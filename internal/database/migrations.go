package database

import (
	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/models"
)

func RunMigrations(db *gorm.DB) error {
	// Create tables if they don't exist
	err := db.AutoMigrate(
		&models.Passenger{},
		&models.Puller{},
		&models.Admin{},
		&models.Ride{},
		&models.RewardTransaction{},
	)
	if err != nil {
		return err
	}

	// Enforce the status enum and non-negative balances at the database
	// level; AutoMigrate does not manage check constraints.
	db.Exec(`ALTER TABLE rides DROP CONSTRAINT IF EXISTS rides_status_check`)
	if err := db.Exec(`ALTER TABLE rides ADD CONSTRAINT rides_status_check
		CHECK (status IN ('REQUESTED', 'ACCEPTED', 'ACTIVE', 'COMPLETED', 'CANCELED'))`).Error; err != nil {
		return err
	}

	db.Exec(`ALTER TABLE pullers DROP CONSTRAINT IF EXISTS pullers_points_balance_check`)
	if err := db.Exec(`ALTER TABLE pullers ADD CONSTRAINT pullers_points_balance_check
		CHECK (points_balance >= 0)`).Error; err != nil {
		return err
	}

	db.Exec(`ALTER TABLE reward_transactions DROP CONSTRAINT IF EXISTS reward_transactions_status_check`)
	if err := db.Exec(`ALTER TABLE reward_transactions ADD CONSTRAINT reward_transactions_status_check
		CHECK (status IN ('PENDING', 'REWARDED'))`).Error; err != nil {
		return err
	}

	return nil
}
