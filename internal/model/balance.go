package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserBalance is the cash ledger head for one user. One row per user,
// mutated only through the transfer engine.
type UserBalance struct {
	ID          uint64          `gorm:"primaryKey"`
	UserID      uint64          `gorm:"uniqueIndex;not null"`
	CashBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Version     uint64          `gorm:"not null;default:0"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (UserBalance) TableName() string { return "user_balance" }

// PharmacyBalance is the cash ledger head for one pharmacy.
type PharmacyBalance struct {
	ID          uint64          `gorm:"primaryKey"`
	PharmacyID  uint64          `gorm:"uniqueIndex;not null"`
	CashBalance decimal.Decimal `gorm:"type:numeric(20,8);not null;default:'0'"`
	Version     uint64          `gorm:"not null;default:0"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime"`
}

func (PharmacyBalance) TableName() string { return "pharmacy_balance" }
