package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/models"
)

// AccountDirectory resolves passenger and puller identifiers to their account
// records. The coordinator uses it for existence and ban checks before any
// conditional write.
type AccountDirectory interface {
	PassengerByID(ctx context.Context, id uint) (*models.Passenger, error)
	PullerByID(ctx context.Context, id uint) (*models.Puller, error)
}

// GormAccounts backs AccountDirectory with the relational store.
type GormAccounts struct {
	db *gorm.DB
}

func NewGormAccounts(db *gorm.DB) *GormAccounts {
	return &GormAccounts{db: db}
}

func (a *GormAccounts) PassengerByID(ctx context.Context, id uint) (*models.Passenger, error) {
	var p models.Passenger
	err := a.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &p, nil
}

func (a *GormAccounts) PullerByID(ctx context.Context, id uint) (*models.Puller, error) {
	var p models.Puller
	err := a.db.WithContext(ctx).First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &p, nil
}
