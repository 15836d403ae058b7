package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/pkg/db/pagination"
	"github.com/smallbiznis/storesplit/pkg/patch"
)

// PaymentHeader is the payment-level part of a create or update request.
type PaymentHeader struct {
	SourceStoreID snowflake.ID    `json:"source_store_id"`
	PaymentDate   time.Time       `json:"payment_date"`
	Method        string          `json:"method"`
	Reference     *string         `json:"reference,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency,omitempty"`
	PaidTo        string          `json:"paid_to,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	BankAccountID *snowflake.ID   `json:"bank_account_id,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// AllocationRequest asks for one target store's share. Amount is read in
// amount mode and Percentage in percentage mode.
type AllocationRequest struct {
	TargetStoreID snowflake.ID     `json:"target_store_id"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Percentage    *decimal.Decimal `json:"percentage,omitempty"`
	Memo          string           `json:"memo,omitempty"`
	ApproverID    *snowflake.ID    `json:"approver_id,omitempty"`
	// ReimbursementRequired defaults to true for every store other than the
	// payment's source store.
	ReimbursementRequired *bool          `json:"reimbursement_required,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
}

// ExpenseOptions tunes the expenses mirrored in the expense context.
type ExpenseOptions struct {
	ExpenseType string `json:"expense_type,omitempty"`
	Description string `json:"description,omitempty"`
}

// PaymentRequest creates a payment or fully replaces one.
type PaymentRequest struct {
	PaymentHeader
	Allocations []AllocationRequest `json:"allocations"`
	Mode        SplitMode           `json:"mode"`
	Context     MirrorContext       `json:"context"`
	Expense     ExpenseOptions      `json:"expense"`
}

type ListPaymentsRequest struct {
	pagination.Pagination
	StoreID snowflake.ID
	Role    StoreRole
	From    *time.Time
	To      *time.Time
}

type ListPaymentsResponse struct {
	pagination.PageInfo
	Payments []PaymentView `json:"payments"`
}

// ReimbursementPatch changes the reimbursement state of one allocation.
// Omitted fields keep their current value.
type ReimbursementPatch struct {
	Status                 patch.Optional[ReimbursementStatus] `json:"status"`
	ReimbursedAmount       patch.Nullable[decimal.Decimal]     `json:"reimbursed_amount"`
	ReimbursementMethod    patch.Nullable[string]              `json:"reimbursement_method"`
	ReimbursementReference patch.Nullable[string]              `json:"reimbursement_reference"`
	ReimbursedCashAmount   patch.Nullable[decimal.Decimal]     `json:"reimbursed_cash_amount"`
	ReimbursementRequired  patch.Optional[bool]                `json:"reimbursement_required"`
}

type PaymentView struct {
	Payment
	SourceStoreName string           `json:"source_store_name,omitempty"`
	BankAccountName string           `json:"bank_account_name,omitempty"`
	Allocations     []AllocationView `json:"allocations"`
}

type AllocationView struct {
	Allocation
	TargetStoreName string          `json:"target_store_name,omitempty"`
	Expense         *ExpenseSummary `json:"expense,omitempty"`
}

// ExpenseSummary is the mirrored expense as seen from an allocation.
type ExpenseSummary struct {
	ID                  snowflake.ID    `json:"id"`
	ExpenseType         string          `json:"expense_type"`
	Amount              decimal.Decimal `json:"amount"`
	Reimbursable        bool            `json:"reimbursable"`
	ReimbursementStatus string          `json:"reimbursement_status"`
}
