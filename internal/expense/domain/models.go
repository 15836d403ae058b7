package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ReimbursementStatus string

const (
	ReimbursementStatusNone       ReimbursementStatus = "none"
	ReimbursementStatusPending    ReimbursementStatus = "pending"
	ReimbursementStatusReimbursed ReimbursementStatus = "reimbursed"
)

// Expense is an operating expense booked against a store.
type Expense struct {
	ID                     snowflake.ID        `gorm:"primaryKey" json:"id"`
	StoreID                snowflake.ID        `gorm:"not null;index" json:"store_id"`
	ExpenseDate            time.Time           `gorm:"not null" json:"expense_date"`
	ExpenseType            string              `gorm:"type:text;not null" json:"expense_type"`
	Description            string              `gorm:"type:text" json:"description,omitempty"`
	Amount                 decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency               string              `gorm:"type:text;not null" json:"currency"`
	PaymentMethod          string              `gorm:"type:text" json:"payment_method,omitempty"`
	Reimbursable           bool                `gorm:"not null" json:"reimbursable"`
	ReimbursementTo        string              `gorm:"type:text" json:"reimbursement_to,omitempty"`
	ReimbursementStatus    ReimbursementStatus `gorm:"type:text;not null" json:"reimbursement_status"`
	ReimbursedAt           *time.Time          `json:"reimbursed_at,omitempty"`
	ReimbursedAmount       decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"reimbursed_amount"`
	ReimbursementMethod    *string             `gorm:"type:text" json:"reimbursement_method,omitempty"`
	ReimbursementReference *string             `gorm:"type:text" json:"reimbursement_reference,omitempty"`
	SourcePaymentID        *snowflake.ID       `gorm:"index" json:"source_payment_id,omitempty"`
	SourceAllocationID     *snowflake.ID       `gorm:"index" json:"source_allocation_id,omitempty"`
	Metadata               datatypes.JSONMap   `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedBy              *snowflake.ID       `json:"created_by,omitempty"`
	CreatedAt              time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time           `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Expense) TableName() string { return "operating_expenses" }
