package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/internal/allocation/split"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// UpdatePayment replaces a payment's header and its whole allocation set in
// one transaction.
func (s *Service) UpdatePayment(ctx context.Context, actorID snowflake.ID, paymentID snowflake.ID, req domain.PaymentRequest) (_ *domain.PaymentView, err error) {
	ctx, span := tracer.Start(ctx, "allocation.UpdatePayment")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("payment_id", paymentID.String()))

	req, err = s.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	var sourceStoreID snowflake.ID
	var allocationCount int
	err = s.uow.Do(ctx, func(tx *gorm.DB) error {
		payment, err := s.repo.LockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		if err := s.requireAccess(ctx, actorID, payment.SourceStoreID); err != nil {
			return err
		}
		if req.SourceStoreID != payment.SourceStoreID {
			if err := s.requireAccess(ctx, actorID, req.SourceStoreID); err != nil {
				return err
			}
		}

		current, err := s.repo.LockAllocations(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if hasCompleted(current) {
			return domain.ErrCompletedAllocation
		}

		lines, err := split.Split(req.Amount, req.Mode, splitRequests(req.Allocations), s.accessFunc(ctx, actorID))
		if err != nil {
			return err
		}

		for _, allocation := range current {
			if err := s.deleteMirror(ctx, tx, allocation); err != nil {
				return err
			}
		}
		if err := s.repo.DeleteAllocationsByPayment(ctx, tx, payment.ID); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		applyHeader(payment, req.PaymentHeader, now)
		if err := s.repo.SavePayment(ctx, tx, payment); err != nil {
			return err
		}

		allocations := s.buildAllocations(payment, lines, req.Allocations, now)
		for _, allocation := range allocations {
			if err := s.repo.InsertAllocation(ctx, tx, allocation); err != nil {
				return err
			}
		}
		if req.Context == domain.MirrorContextExpense {
			if err := s.mirrorExpenses(ctx, tx, payment, allocations, req.Expense, actorID); err != nil {
				return err
			}
		}

		sourceStoreID = payment.SourceStoreID
		allocationCount = len(allocations)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, sourceStoreID, actorID, "store_payment.updated", "store_payment", paymentID, map[string]any{
		"amount":      req.Amount.StringFixed(2),
		"allocations": allocationCount,
		"split_mode":  string(req.Mode),
		"context":     string(req.Context),
	})
	s.obsMetrics.RecordPaymentUpdated(ctx, string(req.Mode))

	return s.loadView(ctx, s.db, paymentID)
}

// DeletePayment removes a payment, its allocations and their mirrored
// expenses. Payments with a completed reimbursement are kept.
func (s *Service) DeletePayment(ctx context.Context, actorID snowflake.ID, paymentID snowflake.ID) (err error) {
	ctx, span := tracer.Start(ctx, "allocation.DeletePayment")
	defer func() { finishSpan(span, err) }()
	span.SetAttributes(attribute.String("payment_id", paymentID.String()))

	var sourceStoreID snowflake.ID
	err = s.uow.Do(ctx, func(tx *gorm.DB) error {
		payment, err := s.repo.LockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return domain.ErrPaymentNotFound
		}
		if err := s.requireAccess(ctx, actorID, payment.SourceStoreID); err != nil {
			return err
		}

		allocations, err := s.repo.LockAllocations(ctx, tx, payment.ID)
		if err != nil {
			return err
		}
		if hasCompleted(allocations) {
			return domain.ErrCompletedAllocation
		}
		for _, allocation := range allocations {
			if err := s.deleteMirror(ctx, tx, allocation); err != nil {
				return err
			}
		}
		if err := s.repo.DeleteAllocationsByPayment(ctx, tx, payment.ID); err != nil {
			return err
		}
		if err := s.repo.DeletePayment(ctx, tx, payment.ID); err != nil {
			return err
		}
		sourceStoreID = payment.SourceStoreID
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, sourceStoreID, actorID, "store_payment.deleted", "store_payment", paymentID, nil)
	s.obsMetrics.RecordPaymentDeleted(ctx)
	return nil
}

func hasCompleted(allocations []*domain.Allocation) bool {
	for _, allocation := range allocations {
		if allocation.ReimbursementStatus == domain.ReimbursementStatusCompleted {
			return true
		}
	}
	return false
}
