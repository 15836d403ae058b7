package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type ReimbursementStatus string

const (
	ReimbursementStatusPending     ReimbursementStatus = "pending"
	ReimbursementStatusCompleted   ReimbursementStatus = "completed"
	ReimbursementStatusNotRequired ReimbursementStatus = "not_required"
)

// Valid reports whether s is one of the known reimbursement states.
func (s ReimbursementStatus) Valid() bool {
	switch s {
	case ReimbursementStatusPending, ReimbursementStatusCompleted, ReimbursementStatusNotRequired:
		return true
	default:
		return false
	}
}

type SplitMode string

const (
	SplitModeAmount     SplitMode = "amount"
	SplitModePercentage SplitMode = "percentage"
)

// MirrorContext selects whether allocations also materialize as expenses.
type MirrorContext string

const (
	MirrorContextPayment MirrorContext = "payment"
	MirrorContextExpense MirrorContext = "expense"
)

// StoreRole filters payments by how a store participates in them.
type StoreRole string

const (
	StoreRoleSource StoreRole = "source"
	StoreRoleTarget StoreRole = "target"
	StoreRoleAll    StoreRole = "all"
)

type TargetKind string

const (
	TargetKindNone    TargetKind = "none"
	TargetKindExpense TargetKind = "expense"
)

// Target is what an allocation materialized as on the target store.
type Target struct {
	Kind TargetKind   `gorm:"column:target_type;type:text;not null" json:"type"`
	ID   snowflake.ID `gorm:"column:target_id" json:"id,omitempty"`
}

func NoTarget() Target {
	return Target{Kind: TargetKindNone}
}

func ExpenseTarget(id snowflake.ID) Target {
	return Target{Kind: TargetKindExpense, ID: id}
}

// ExpenseID returns the mirrored expense id, if any.
func (t Target) ExpenseID() (snowflake.ID, bool) {
	switch t.Kind {
	case TargetKindExpense:
		return t.ID, t.ID != 0
	case TargetKindNone:
		return 0, false
	default:
		return 0, false
	}
}

// Payment is money paid by one store and split across stores.
type Payment struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	SourceStoreID snowflake.ID      `gorm:"not null;index" json:"source_store_id"`
	PaymentDate   time.Time         `gorm:"not null;index" json:"payment_date"`
	Method        string            `gorm:"type:text;not null" json:"method"`
	Reference     *string           `gorm:"type:text" json:"reference,omitempty"`
	Amount        decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency      string            `gorm:"type:text;not null" json:"currency"`
	PaidTo        string            `gorm:"type:text" json:"paid_to,omitempty"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	BankAccountID *snowflake.ID     `json:"bank_account_id,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedBy     snowflake.ID      `gorm:"not null" json:"created_by"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "store_payments" }

// Allocation is one store's share of a payment and its reimbursement state.
type Allocation struct {
	ID                      snowflake.ID        `gorm:"primaryKey" json:"id"`
	PaymentID               snowflake.ID        `gorm:"not null;index" json:"payment_id"`
	TargetStoreID           snowflake.ID        `gorm:"not null;index" json:"target_store_id"`
	AllocatedAmount         decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"allocated_amount"`
	AllocationPercentage    decimal.NullDecimal `gorm:"type:numeric(7,3)" json:"allocation_percentage"`
	Target                  Target              `gorm:"embedded" json:"target"`
	Memo                    string              `gorm:"type:text" json:"memo,omitempty"`
	ApproverID              *snowflake.ID       `json:"approver_id,omitempty"`
	Metadata                datatypes.JSONMap   `gorm:"type:jsonb" json:"metadata,omitempty"`
	ReimbursementRequired   bool                `gorm:"not null" json:"reimbursement_required"`
	ReimbursementStatus     ReimbursementStatus `gorm:"type:text;not null" json:"reimbursement_status"`
	ReimbursedAt            *time.Time          `json:"reimbursed_at,omitempty"`
	ReimbursedAmount        decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"reimbursed_amount"`
	ReimbursedBy            *snowflake.ID       `json:"reimbursed_by,omitempty"`
	ReimbursementMethod     *string             `gorm:"type:text" json:"reimbursement_method,omitempty"`
	ReimbursementReference  *string             `gorm:"type:text" json:"reimbursement_reference,omitempty"`
	ReimbursedCashAmount    decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"reimbursed_cash_amount"`
	SourceCashTransactionID *snowflake.ID       `json:"source_cash_transaction_id,omitempty"`
	TargetCashTransactionID *snowflake.ID       `json:"target_cash_transaction_id,omitempty"`
	CreatedAt               time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt               time.Time           `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Allocation) TableName() string { return "store_payment_allocations" }
