package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ride status constants. Statuses only move forward through the lifecycle;
// COMPLETED and CANCELED are terminal.
const (
	RideStatusRequested = "REQUESTED"
	RideStatusAccepted  = "ACCEPTED"
	RideStatusActive    = "ACTIVE"
	RideStatusCompleted = "COMPLETED"
	RideStatusCanceled  = "CANCELED"
)

// Ride represents one passenger transport request and its lifecycle record.
// Rides are never deleted; terminal rows are kept as history. PassengerID is
// nullable so simulated requests can exist without an owning account, and
// PullerID stays null until a puller wins the accept race.
type Ride struct {
	ID                    string     `json:"rideId" gorm:"type:uuid;primaryKey"`
	PassengerID           *uint      `json:"passengerId,omitempty" gorm:"index"`
	PullerID              *uint      `json:"pullerId,omitempty" gorm:"index"`
	PickupLocationID      string     `json:"pickupLocationId" gorm:"not null"`
	DestinationLocationID string     `json:"destinationLocationId" gorm:"not null"`
	Status                string     `json:"status" gorm:"not null;default:'REQUESTED';index"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	Passenger             *Passenger `json:"passenger,omitempty" gorm:"foreignKey:PassengerID"`
	Puller                *Puller    `json:"puller,omitempty" gorm:"foreignKey:PullerID"`
}

// TableName specifies the table name
func (Ride) TableName() string {
	return "rides"
}

// BeforeCreate assigns the opaque ride identifier.
func (r *Ride) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// IsTerminalStatus reports whether no further transition may leave the status.
func IsTerminalStatus(status string) bool {
	return status == RideStatusCompleted || status == RideStatusCanceled
}

// legalTransitions is the full edge set of the ride state machine.
// ACCEPTED -> COMPLETED is legal so short hops can be finalized without an
// explicit start.
var legalTransitions = map[string][]string{
	RideStatusRequested: {RideStatusAccepted, RideStatusCanceled},
	RideStatusAccepted:  {RideStatusActive, RideStatusCompleted, RideStatusCanceled},
	RideStatusActive:    {RideStatusCompleted, RideStatusCanceled},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to string) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
