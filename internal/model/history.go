package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionHistory is one completed mask purchase, written by the
// order process. This service only ever reads it.
type TransactionHistory struct {
	ID              uint64          `gorm:"primaryKey"`
	UserID          uint64          `gorm:"index;not null"`
	PharmacyID      uint64          `gorm:"index;not null"`
	MaskID          uint64          `gorm:"index;not null"`
	TransactionDate time.Time       `gorm:"index;not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,8);not null"`
}

func (TransactionHistory) TableName() string { return "user_transaction_history" }
