package models

import (
	"time"

	"gorm.io/gorm"
)

// Reward transaction statuses and types.
const (
	RewardStatusPending  = "PENDING"
	RewardStatusRewarded = "REWARDED"

	RewardTypeRideCompletion = "RIDE_REWARD"
	RewardTypeManual         = "MANUAL_ADJUSTMENT"
)

// RewardTransaction is one append-only entry in the points ledger. The
// composite unique index on (ride_id, type) means at most one RIDE_REWARD row
// can ever exist per ride; manual adjustments carry a null ride_id and are
// unaffected (Postgres treats NULLs as distinct in unique indexes).
type RewardTransaction struct {
	gorm.Model
	PullerID        uint      `json:"pullerId" gorm:"not null;index"`
	RideID          *string   `json:"rideId,omitempty" gorm:"type:uuid;uniqueIndex:idx_reward_ride_type"`
	PointsAmount    int       `json:"pointsAmount" gorm:"not null"`
	Status          string    `json:"status" gorm:"not null;default:'PENDING'"`
	Type            string    `json:"type" gorm:"not null;uniqueIndex:idx_reward_ride_type"`
	TransactionDate time.Time `json:"transactionDate" gorm:"not null"`
	Puller          *Puller   `json:"puller,omitempty" gorm:"foreignKey:PullerID"`
}

// TableName specifies the table name
func (RewardTransaction) TableName() string {
	return "reward_transactions"
}
