package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/pkg/patch"
	"gorm.io/gorm"
)

type CreateExpenseRequest struct {
	StoreID            snowflake.ID
	ExpenseDate        time.Time
	ExpenseType        string
	Description        string
	Amount             decimal.Decimal
	Currency           string
	PaymentMethod      string
	Reimbursable       bool
	ReimbursementTo    string
	SourcePaymentID    *snowflake.ID
	SourceAllocationID *snowflake.ID
	Metadata           map[string]any
	CreatedBy          *snowflake.ID
}

// Patch lists the fields Update may change. Omitted fields keep their value.
type Patch struct {
	Amount                 patch.Optional[decimal.Decimal]
	Description            patch.Optional[string]
	Reimbursable           patch.Optional[bool]
	ReimbursementStatus    patch.Optional[ReimbursementStatus]
	ReimbursedAt           patch.Nullable[time.Time]
	ReimbursedAmount       patch.Nullable[decimal.Decimal]
	ReimbursementMethod    patch.Nullable[string]
	ReimbursementReference patch.Nullable[string]
}

// Service is the operating-expense CRUD gateway. Every call takes the
// caller's handle so expense writes share the caller's transaction.
type Service interface {
	Create(ctx context.Context, tx *gorm.DB, req CreateExpenseRequest) (*Expense, error)
	Update(ctx context.Context, tx *gorm.DB, id snowflake.ID, p Patch) (*Expense, error)
	Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Expense, error)
	ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*Expense, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, expense *Expense) error
	Save(ctx context.Context, db *gorm.DB, expense *Expense) error
	DeleteByID(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Expense, error)
	FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]*Expense, error)
}

var (
	ErrNotFound            = errors.New("expense_not_found")
	ErrInvalidStore        = errors.New("invalid_store")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidExpenseType  = errors.New("invalid_expense_type")
	ErrInvalidExpenseDate  = errors.New("invalid_expense_date")
	ErrInvalidReimbursable = errors.New("invalid_reimbursement_status")
)
