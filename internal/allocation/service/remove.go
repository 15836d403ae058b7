package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/internal/allocation/split"
	expensedomain "github.com/smallbiznis/storesplit/internal/expense/domain"
	"github.com/smallbiznis/storesplit/pkg/patch"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// RemoveAllocation deletes one allocation and hands its amount back to the
// payment's source store, so the payment keeps summing to its total.
func (s *Service) RemoveAllocation(ctx context.Context, actorID snowflake.ID, allocationID snowflake.ID) (_ *domain.PaymentView, err error) {
	ctx, span := tracer.Start(ctx, "allocation.RemoveAllocation")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("allocation_id", allocationID.String()))

	var (
		payment *domain.Payment
		removed decimal.Decimal
		merged  bool
	)
	err = s.uow.Do(ctx, func(tx *gorm.DB) error {
		var target *domain.Allocation
		payment, target, err = s.lockAllocation(ctx, tx, allocationID)
		if err != nil {
			return err
		}
		if err := s.requireEitherAccess(ctx, actorID, payment.SourceStoreID, target.TargetStoreID); err != nil {
			return err
		}
		if target.ReimbursementStatus == domain.ReimbursementStatusCompleted {
			return domain.ErrAllocationCompleted
		}

		if err := s.deleteMirror(ctx, tx, target); err != nil {
			return err
		}
		if err := s.repo.DeleteAllocation(ctx, tx, target.ID); err != nil {
			return err
		}

		removed = target.AllocatedAmount
		if removed.IsPositive() {
			merged, err = s.returnToSource(ctx, tx, payment, removed, actorID)
			if err != nil {
				return err
			}
		}

		return s.recomputePercentages(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, payment.SourceStoreID, actorID, "store_payment.allocation_removed", "store_payment_allocation", allocationID, map[string]any{
		"payment_id": payment.ID.String(),
		"amount":     removed.StringFixed(2),
		"merged":     merged,
	})
	s.obsMetrics.RecordAllocationRemoved(ctx, merged)

	return s.loadView(ctx, s.db, payment.ID)
}

// returnToSource adds amount to the source store's own allocation, creating
// one when the payment has none. It reports whether an existing allocation
// absorbed the amount.
func (s *Service) returnToSource(ctx context.Context, tx *gorm.DB, payment *domain.Payment, amount decimal.Decimal, actorID snowflake.ID) (bool, error) {
	now := s.clock.Now().UTC()
	existing, err := s.repo.LockStoreAllocation(ctx, tx, payment.ID, payment.SourceStoreID)
	if err != nil {
		return false, err
	}

	if existing == nil {
		allocation := &domain.Allocation{
			ID:                    s.genID.Generate(),
			PaymentID:             payment.ID,
			TargetStoreID:         payment.SourceStoreID,
			AllocatedAmount:       amount.Round(2),
			Target:                domain.NoTarget(),
			ReimbursementRequired: false,
			ReimbursementStatus:   domain.ReimbursementStatusNotRequired,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		return false, s.repo.InsertAllocation(ctx, tx, allocation)
	}

	rules := s.rules.Get()
	plan, err := domain.PlanTransition(*existing, domain.ReimbursementPatch{
		Status: patch.Some(domain.ReimbursementStatusNotRequired),
	}, rules.IsCashMethod)
	if err != nil {
		return false, err
	}
	if plan.ReverseCash {
		if err := s.reverseCash(ctx, tx, payment, existing, plan.ReversalAmount, actorID); err != nil {
			return false, err
		}
	}
	plan.Apply(existing, actorID, now)
	existing.ReimbursementMethod = nil
	existing.ReimbursementReference = nil
	existing.AllocatedAmount = existing.AllocatedAmount.Add(amount).Round(2)
	existing.UpdatedAt = now
	if err := s.repo.SaveAllocation(ctx, tx, existing); err != nil {
		return false, err
	}

	if expenseID, ok := existing.Target.ExpenseID(); ok {
		p := clearedExpensePatch(false, expensedomain.ReimbursementStatusNone)
		p.Amount = patch.Some(existing.AllocatedAmount)
		if _, err := s.expenses.Update(ctx, tx, expenseID, p); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) recomputePercentages(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	remaining, err := s.repo.ListAllocations(ctx, tx, []snowflake.ID{payment.ID})
	if err != nil {
		return err
	}
	for _, allocation := range remaining {
		pct := split.Percentage(allocation.AllocatedAmount, payment.Amount)
		if allocation.AllocationPercentage.Valid && allocation.AllocationPercentage.Decimal.Equal(pct) {
			continue
		}
		allocation.AllocationPercentage = decimal.NewNullDecimal(pct)
		if err := s.repo.SaveAllocation(ctx, tx, allocation); err != nil {
			return err
		}
	}
	return nil
}
