package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service posts movements on the cash-on-hand ledger. Postings take the
// caller's transaction so they commit or roll back with it.
type Service interface {
	AddCash(ctx context.Context, tx *gorm.DB, posting Posting) (*CashTransaction, error)
	SubtractCash(ctx context.Context, tx *gorm.DB, posting Posting) (*CashTransaction, error)
	GetBalance(ctx context.Context, db *gorm.DB, storeID snowflake.ID) (decimal.Decimal, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *CashTransaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CashTransaction, error)
	SumByDirection(ctx context.Context, db *gorm.DB, storeID snowflake.ID) (in decimal.Decimal, out decimal.Decimal, err error)
}

var (
	ErrInvalidStore      = errors.New("invalid_store")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidReasonCode = errors.New("invalid_reason_code")
	ErrMissingTx         = errors.New("missing_transaction")
)
