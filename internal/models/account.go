package models

import (
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Account role constants used in JWT claims.
const (
	RolePassenger = "passenger"
	RolePuller    = "puller"
	RoleAdmin     = "admin"
)

// Passenger is a rider account. FCMToken is optional and only used for
// best-effort device pushes.
type Passenger struct {
	gorm.Model
	Username     string `gorm:"column:username;unique;not null"`
	Email        string `gorm:"column:email;unique;not null"`
	Password     string `gorm:"-:migration"` // Temporary field for password handling
	PasswordHash string `gorm:"column:password_hash;not null"`
	PhoneNumber  string `gorm:"column:phone_number"`
	IsBanned     bool   `gorm:"column:is_banned;not null;default:false"`
	FCMToken     string `gorm:"column:fcm_token"`
}

// TableName specifies the table name
func (Passenger) TableName() string {
	return "passengers"
}

func (p *Passenger) HashPassword() error {
	if p.Password == "" {
		return nil
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = string(hashedPassword)
	return nil
}

func (p *Passenger) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password))
}

// Puller is the service-provider account fulfilling rides. PointsBalance is
// mutated only by the reward ledger engine; the transaction log remains the
// source of truth if the balance ever drifts.
type Puller struct {
	gorm.Model
	Username      string `gorm:"column:username;unique;not null"`
	Email         string `gorm:"column:email;unique;not null"`
	Password      string `gorm:"-:migration"`
	PasswordHash  string `gorm:"column:password_hash;not null"`
	PhoneNumber   string `gorm:"column:phone_number"`
	PointsBalance int    `gorm:"column:points_balance;not null;default:0"`
	IsOnline      bool   `gorm:"column:is_online;not null;default:false"`
	IsBanned      bool   `gorm:"column:is_banned;not null;default:false"`
}

// TableName specifies the table name
func (Puller) TableName() string {
	return "pullers"
}

func (p *Puller) HashPassword() error {
	if p.Password == "" {
		return nil
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	p.PasswordHash = string(hashedPassword)
	return nil
}

func (p *Puller) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password))
}

// Admin is an operator account for the dashboard endpoints.
type Admin struct {
	gorm.Model
	Username     string `gorm:"column:username;unique;not null"`
	Email        string `gorm:"column:email;unique;not null"`
	Password     string `gorm:"-:migration"`
	PasswordHash string `gorm:"column:password_hash;not null"`
}

// TableName specifies the table name
func (Admin) TableName() string {
	return "admins"
}

func (a *Admin) CheckPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password))
}
