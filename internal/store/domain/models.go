package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Store is the lookup record for a physical store. Payments reference stores
// by id; the allocation read path joins names from here.
type Store struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Code      string       `gorm:"type:text;not null;uniqueIndex"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Store) TableName() string { return "stores" }

// BankAccount is an optional funding account a payment was drawn from.
type BankAccount struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	StoreID       snowflake.ID `gorm:"not null;index"`
	Name          string       `gorm:"type:text;not null"`
	AccountNumber string       `gorm:"type:text"`
	CreatedAt     time.Time    `gorm:"not null"`
	UpdatedAt     time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (BankAccount) TableName() string { return "bank_accounts" }
