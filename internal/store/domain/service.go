package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateStoreRequest struct {
	Name string
	// Code defaults to the slug of Name.
	Code string
}

type CreateBankAccountRequest struct {
	Name          string
	AccountNumber string
}

// Service registers stores and their funding accounts. The creator of a
// store becomes its owner.
type Service interface {
	CreateStore(ctx context.Context, actorID snowflake.ID, req CreateStoreRequest) (Store, error)
	GetStore(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (Store, error)
	CreateBankAccount(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID, req CreateBankAccountRequest) (BankAccount, error)
	ListBankAccounts(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) ([]BankAccount, error)
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidCode        = errors.New("invalid_code")
	ErrInvalidAccountName = errors.New("invalid_account_name")
	ErrCodeTaken          = errors.New("store_code_taken")
	ErrForbidden          = errors.New("store_forbidden")
	ErrNotFound           = errors.New("store_not_found")
)
