package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Direction tells whether a posting adds to or takes from a store's cash on hand.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// CashTransaction is one immutable posting on a store's cash-on-hand ledger.
type CashTransaction struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	StoreID         snowflake.ID    `gorm:"not null;index" json:"store_id"`
	Direction       Direction       `gorm:"type:text;not null" json:"direction"`
	Amount          decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	ReasonCode      string          `gorm:"type:text;not null;index" json:"reason_code"`
	ReferenceID     *snowflake.ID   `gorm:"index" json:"reference_id,omitempty"`
	TransactionDate time.Time       `gorm:"not null" json:"transaction_date"`
	Description     string          `gorm:"type:text" json:"description,omitempty"`
	CreatedBy       *snowflake.ID   `json:"created_by,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (CashTransaction) TableName() string { return "cash_transactions" }

// Posting describes a cash movement to record.
type Posting struct {
	StoreID     snowflake.ID
	Amount      decimal.Decimal
	ReasonCode  string
	ReferenceID *snowflake.ID
	Date        time.Time
	Description string
	Actor       *snowflake.ID
}
