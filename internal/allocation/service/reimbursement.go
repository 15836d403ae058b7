package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	cashdomain "github.com/smallbiznis/storesplit/internal/cashledger/domain"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// UpdateAllocationReimbursement moves an allocation through its
// reimbursement states, posting or reversing cash settlements and keeping the
// mirrored expense in step.
func (s *Service) UpdateAllocationReimbursement(ctx context.Context, actorID snowflake.ID, allocationID snowflake.ID, p domain.ReimbursementPatch) (_ *domain.AllocationView, err error) {
	ctx, span := tracer.Start(ctx, "allocation.UpdateAllocationReimbursement")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("allocation_id", allocationID.String()))

	rules := s.rules.Get()
	var (
		paymentID     snowflake.ID
		sourceStoreID snowflake.ID
		plan          domain.TransitionPlan
	)
	err = s.uow.Do(ctx, func(tx *gorm.DB) error {
		payment, allocation, err := s.lockAllocation(ctx, tx, allocationID)
		if err != nil {
			return err
		}
		if err := s.requireEitherAccess(ctx, actorID, payment.SourceStoreID, allocation.TargetStoreID); err != nil {
			return err
		}

		plan, err = domain.PlanTransition(*allocation, p, rules.IsCashMethod)
		if err != nil {
			return err
		}
		if plan.ReverseCash {
			if err := s.reverseCash(ctx, tx, payment, allocation, plan.ReversalAmount, actorID); err != nil {
				return err
			}
		}

		now := s.clock.Now().UTC()
		plan.Apply(allocation, actorID, now)
		allocation.UpdatedAt = now
		if plan.PostCash {
			if err := s.postCash(ctx, tx, payment, allocation, actorID); err != nil {
				return err
			}
		}
		if err := s.repo.SaveAllocation(ctx, tx, allocation); err != nil {
			return err
		}
		if err := s.syncExpense(ctx, tx, allocation); err != nil {
			return err
		}

		paymentID = payment.ID
		sourceStoreID = payment.SourceStoreID
		return nil
	})
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{
		"payment_id": paymentID.String(),
		"from":       string(plan.From),
		"to":         string(plan.To),
	}
	if plan.ReimbursedAmount.Valid {
		metadata["reimbursed_amount"] = plan.ReimbursedAmount.Decimal.StringFixed(2)
	}
	if plan.Reference != nil {
		metadata["reimbursement_reference"] = *plan.Reference
	}
	s.audit(ctx, sourceStoreID, actorID, "store_payment_allocation.reimbursement_updated", "store_payment_allocation", allocationID, metadata)
	s.obsMetrics.RecordReimbursementTransition(ctx, string(plan.From), string(plan.To))

	view, err := s.loadView(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	for i := range view.Allocations {
		if view.Allocations[i].ID == allocationID {
			return &view.Allocations[i], nil
		}
	}
	return nil, domain.ErrAllocationNotFound
}

// postCash records the cash settlement: the target store hands cash back to
// the source store. Sides that already carry a posting are left alone.
func (s *Service) postCash(ctx context.Context, tx *gorm.DB, payment *domain.Payment, allocation *domain.Allocation, actorID snowflake.ID) error {
	if !allocation.ReimbursedCashAmount.Valid {
		return nil
	}
	amount := allocation.ReimbursedCashAmount.Decimal
	reason := s.rules.Get().ReasonCodes.Reimbursement
	date := s.clock.Now().UTC()
	if allocation.ReimbursedAt != nil {
		date = *allocation.ReimbursedAt
	}

	if allocation.TargetCashTransactionID == nil {
		entry, err := s.cashLedger.SubtractCash(ctx, tx, s.posting(allocation, allocation.TargetStoreID, amount, reason, date, actorID,
			fmt.Sprintf("Reimbursement paid for payment %s", payment.ID)))
		if err != nil {
			return err
		}
		allocation.TargetCashTransactionID = &entry.ID
	}
	if allocation.SourceCashTransactionID == nil {
		entry, err := s.cashLedger.AddCash(ctx, tx, s.posting(allocation, payment.SourceStoreID, amount, reason, date, actorID,
			fmt.Sprintf("Reimbursement received for payment %s", payment.ID)))
		if err != nil {
			return err
		}
		allocation.SourceCashTransactionID = &entry.ID
	}
	return nil
}

// reverseCash undoes a previous cash settlement with the opposite postings.
// Only sides that were actually posted are reversed.
func (s *Service) reverseCash(ctx context.Context, tx *gorm.DB, payment *domain.Payment, allocation *domain.Allocation, amount decimal.Decimal, actorID snowflake.ID) error {
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return nil
	}
	reason := s.rules.Get().ReasonCodes.ReimbursementReversal
	date := s.clock.Now().UTC()

	if allocation.TargetCashTransactionID != nil {
		if _, err := s.cashLedger.AddCash(ctx, tx, s.posting(allocation, allocation.TargetStoreID, amount, reason, date, actorID,
			fmt.Sprintf("Reimbursement reversed for payment %s", payment.ID))); err != nil {
			return err
		}
	}
	if allocation.SourceCashTransactionID != nil {
		if _, err := s.cashLedger.SubtractCash(ctx, tx, s.posting(allocation, payment.SourceStoreID, amount, reason, date, actorID,
			fmt.Sprintf("Reimbursement reversed for payment %s", payment.ID))); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) posting(allocation *domain.Allocation, storeID snowflake.ID, amount decimal.Decimal, reason string, date time.Time, actorID snowflake.ID, description string) cashdomain.Posting {
	reference := allocation.ID
	posting := cashdomain.Posting{
		StoreID:     storeID,
		Amount:      amount,
		ReasonCode:  reason,
		ReferenceID: &reference,
		Date:        date,
		Description: description,
	}
	if actorID != 0 {
		actor := actorID
		posting.Actor = &actor
	}
	return posting
}
