package model

import "github.com/shopspring/decimal"

type User struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string `gorm:"size:128;not null"`
}

func (User) TableName() string { return "user" }

type Pharmacy struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string `gorm:"size:128;not null"`
}

func (Pharmacy) TableName() string { return "pharmacy" }

type Mask struct {
	ID   uint64 `gorm:"primaryKey"`
	Name string `gorm:"size:128;not null"`
}

func (Mask) TableName() string { return "mask" }

// PharmacyProduct is one mask listed for sale by one pharmacy.
type PharmacyProduct struct {
	ID            uint64          `gorm:"primaryKey"`
	PharmacyID    uint64          `gorm:"index;not null"`
	MaskID        uint64          `gorm:"index;not null"`
	ProductTypeID uint64          `gorm:"index;not null"`
	Price         decimal.Decimal `gorm:"type:numeric(20,8);not null"`
}

func (PharmacyProduct) TableName() string { return "pharmacy_product" }
