package domain

import (
	"errors"
	"fmt"
)

// Category errors. Every error the service returns for a rule violation wraps
// exactly one of these so callers can branch with errors.Is.
var (
	ErrValidation    = errors.New("validation_error")
	ErrAccessDenied  = errors.New("access_denied")
	ErrStateConflict = errors.New("state_conflict")
	ErrNotFound      = errors.New("not_found")
)

var (
	ErrPaymentNotFound    = fmt.Errorf("%w: payment not found", ErrNotFound)
	ErrAllocationNotFound = fmt.Errorf("%w: allocation not found", ErrNotFound)

	ErrInvalidTotal         = fmt.Errorf("%w: payment amount must be greater than zero", ErrValidation)
	ErrNoAllocations        = fmt.Errorf("%w: at least one allocation is required", ErrValidation)
	ErrMissingTarget        = fmt.Errorf("%w: missing target", ErrValidation)
	ErrInvalidSplitMode     = fmt.Errorf("%w: split mode must be amount or percentage", ErrValidation)
	ErrInvalidContext       = fmt.Errorf("%w: context must be payment or expense", ErrValidation)
	ErrInvalidAmount        = fmt.Errorf("%w: allocation amount must be greater than zero", ErrValidation)
	ErrInvalidPercentage    = fmt.Errorf("%w: allocation percentage must be greater than zero", ErrValidation)
	ErrPercentageSum        = fmt.Errorf("%w: percentages must sum to 100", ErrValidation)
	ErrAllocationSum        = fmt.Errorf("%w: allocations must sum to total", ErrValidation)
	ErrInvalidSourceStore   = fmt.Errorf("%w: source store is required", ErrValidation)
	ErrInvalidPaymentDate   = fmt.Errorf("%w: payment date is required", ErrValidation)
	ErrInvalidMethod        = fmt.Errorf("%w: payment method is required", ErrValidation)
	ErrInvalidStoreFilter   = fmt.Errorf("%w: store_id is required", ErrValidation)
	ErrInvalidRole          = fmt.Errorf("%w: role must be source, target or all", ErrValidation)
	ErrInvalidDateRange     = fmt.Errorf("%w: from must not be after to", ErrValidation)
	ErrInvalidPageToken     = fmt.Errorf("%w: invalid page token", ErrValidation)
	ErrInvalidStatus        = fmt.Errorf("%w: unknown reimbursement status", ErrValidation)
	ErrContradictoryPatch   = fmt.Errorf("%w: reimbursement_required contradicts status", ErrValidation)
	ErrInvalidReimbursement = fmt.Errorf("%w: reimbursed amount must be greater than zero", ErrValidation)
	ErrInvalidCashAmount    = fmt.Errorf("%w: reimbursed cash amount must be greater than zero", ErrValidation)

	ErrStoreAccessDenied = fmt.Errorf("%w: actor cannot manage store", ErrAccessDenied)

	ErrCompletedAllocation = fmt.Errorf("%w: payment has a completed reimbursement", ErrStateConflict)
	ErrAllocationCompleted = fmt.Errorf("%w: allocation reimbursement is completed", ErrStateConflict)
)
