package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	expensedomain "github.com/smallbiznis/storesplit/internal/expense/domain"
	"github.com/smallbiznis/storesplit/pkg/patch"
	"gorm.io/gorm"
)

// mirrorExpenses books one operating expense per allocation on its target
// store and links the allocation to it.
func (s *Service) mirrorExpenses(ctx context.Context, tx *gorm.DB, payment *domain.Payment, allocations []*domain.Allocation, opts domain.ExpenseOptions, actorID snowflake.ID) error {
	expenseType := strings.TrimSpace(opts.ExpenseType)
	if expenseType == "" {
		expenseType = s.rules.Get().Expense.Type
	}

	for _, allocation := range allocations {
		description := strings.TrimSpace(opts.Description)
		if description == "" {
			description = allocation.Memo
		}
		if description == "" {
			description = fmt.Sprintf("Share of payment %s", payment.ID)
		}

		paymentID := payment.ID
		allocationID := allocation.ID
		createdBy := actorID
		expense, err := s.expenses.Create(ctx, tx, expensedomain.CreateExpenseRequest{
			StoreID:            allocation.TargetStoreID,
			ExpenseDate:        payment.PaymentDate,
			ExpenseType:        expenseType,
			Description:        description,
			Amount:             allocation.AllocatedAmount,
			Currency:           payment.Currency,
			PaymentMethod:      payment.Method,
			Reimbursable:       allocation.ReimbursementRequired,
			ReimbursementTo:    payment.PaidTo,
			SourcePaymentID:    &paymentID,
			SourceAllocationID: &allocationID,
			CreatedBy:          &createdBy,
		})
		if err != nil {
			return err
		}

		allocation.Target = domain.ExpenseTarget(expense.ID)
		if err := s.repo.SaveAllocation(ctx, tx, allocation); err != nil {
			return err
		}
	}
	return nil
}

// deleteMirror removes whatever the allocation materialized as.
func (s *Service) deleteMirror(ctx context.Context, tx *gorm.DB, allocation *domain.Allocation) error {
	switch allocation.Target.Kind {
	case domain.TargetKindExpense:
		if allocation.Target.ID == 0 {
			return nil
		}
		return s.expenses.Delete(ctx, tx, allocation.Target.ID)
	case domain.TargetKindNone:
		return nil
	default:
		return nil
	}
}

// syncExpense copies the allocation's reimbursement state onto its mirrored
// expense. A missing expense is skipped.
func (s *Service) syncExpense(ctx context.Context, tx *gorm.DB, allocation *domain.Allocation) error {
	expenseID, ok := allocation.Target.ExpenseID()
	if !ok {
		return nil
	}

	var p expensedomain.Patch
	switch allocation.ReimbursementStatus {
	case domain.ReimbursementStatusCompleted:
		p = expensedomain.Patch{
			Reimbursable:           patch.Some(true),
			ReimbursementStatus:    patch.Some(expensedomain.ReimbursementStatusReimbursed),
			ReimbursedAt:           nullableOf(allocation.ReimbursedAt),
			ReimbursedAmount:       nullableDecimal(allocation.ReimbursedAmount),
			ReimbursementMethod:    nullableOf(allocation.ReimbursementMethod),
			ReimbursementReference: nullableOf(allocation.ReimbursementReference),
		}
	case domain.ReimbursementStatusPending:
		p = clearedExpensePatch(true, expensedomain.ReimbursementStatusPending)
	case domain.ReimbursementStatusNotRequired:
		p = clearedExpensePatch(false, expensedomain.ReimbursementStatusNone)
	default:
		return domain.ErrInvalidStatus
	}

	if _, err := s.expenses.Update(ctx, tx, expenseID, p); err != nil {
		if errors.Is(err, expensedomain.ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func clearedExpensePatch(reimbursable bool, status expensedomain.ReimbursementStatus) expensedomain.Patch {
	return expensedomain.Patch{
		Reimbursable:           patch.Some(reimbursable),
		ReimbursementStatus:    patch.Some(status),
		ReimbursedAt:           patch.Null[time.Time](),
		ReimbursedAmount:       patch.Null[decimal.Decimal](),
		ReimbursementMethod:    patch.Null[string](),
		ReimbursementReference: patch.Null[string](),
	}
}

func nullableOf[T any](value *T) patch.Nullable[T] {
	if value == nil {
		return patch.Null[T]()
	}
	return patch.Value(*value)
}

func nullableDecimal(value decimal.NullDecimal) patch.Nullable[decimal.Decimal] {
	if !value.Valid {
		return patch.Null[decimal.Decimal]()
	}
	return patch.Value(value.Decimal)
}
