package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Service interface {
	CreatePayment(ctx context.Context, actorID snowflake.ID, req PaymentRequest) (*PaymentView, error)
	UpdatePayment(ctx context.Context, actorID snowflake.ID, paymentID snowflake.ID, req PaymentRequest) (*PaymentView, error)
	DeletePayment(ctx context.Context, actorID snowflake.ID, paymentID snowflake.ID) error
	RemoveAllocation(ctx context.Context, actorID snowflake.ID, allocationID snowflake.ID) (*PaymentView, error)
	ListPayments(ctx context.Context, actorID snowflake.ID, req ListPaymentsRequest) (ListPaymentsResponse, error)
	GetPayment(ctx context.Context, paymentID snowflake.ID) (*PaymentView, error)
	UpdateAllocationReimbursement(ctx context.Context, actorID snowflake.ID, allocationID snowflake.ID, p ReimbursementPatch) (*AllocationView, error)
	StoreCashBalance(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (decimal.Decimal, error)
}

// PaymentFilter narrows ListPayments. Results are ordered newest first and
// paged by id.
type PaymentFilter struct {
	StoreID  snowflake.ID
	Role     StoreRole
	From     *time.Time
	To       *time.Time
	BeforeID *snowflake.ID
	Limit    int
}

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	SavePayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	DeletePayment(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindPayment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	LockPayment(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, filter PaymentFilter) ([]*Payment, error)

	InsertAllocation(ctx context.Context, db *gorm.DB, allocation *Allocation) error
	SaveAllocation(ctx context.Context, db *gorm.DB, allocation *Allocation) error
	DeleteAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	DeleteAllocationsByPayment(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) error
	FindAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Allocation, error)
	LockAllocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Allocation, error)
	LockAllocations(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*Allocation, error)
	LockStoreAllocation(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, storeID snowflake.ID) (*Allocation, error)
	ListAllocations(ctx context.Context, db *gorm.DB, paymentIDs []snowflake.ID) ([]*Allocation, error)

	StoreNames(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]string, error)
	BankAccountNames(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]string, error)
}
