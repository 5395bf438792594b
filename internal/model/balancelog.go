package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserBalanceLog is the append-only audit trail of the user ledger.
// Amount is the signed transfer amount; Before/After snapshot the
// balance around it. Rows are never updated or deleted.
type UserBalanceLog struct {
	ID            uint64          `gorm:"primaryKey"`
	UserID        uint64          `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Actor         string          `gorm:"size:32;not null"`
	RequestID     *string         `gorm:"size:64;uniqueIndex"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
}

func (UserBalanceLog) TableName() string { return "user_balance_log" }

// PharmacyBalanceLog mirrors UserBalanceLog for the pharmacy side.
type PharmacyBalanceLog struct {
	ID            uint64          `gorm:"primaryKey"`
	PharmacyID    uint64          `gorm:"index;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Actor         string          `gorm:"size:32;not null"`
	RequestID     *string         `gorm:"size:64;uniqueIndex"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
}

func (PharmacyBalanceLog) TableName() string { return "pharmacy_balance_log" }
