package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CashMethodFunc reports whether a reimbursement method settles in cash.
type CashMethodFunc func(method string) bool

// TransitionPlan is the outcome of applying a ReimbursementPatch to an
// allocation, before any side effect runs.
type TransitionPlan struct {
	From     ReimbursementStatus
	To       ReimbursementStatus
	Required bool

	ReimbursedAmount decimal.NullDecimal
	Method           *string
	Reference        *string
	CashAmount       decimal.NullDecimal

	// ReverseCash undoes the existing postings for ReversalAmount.
	ReverseCash    bool
	ReversalAmount decimal.Decimal

	// PostCash records the settlement for every side lacking a posting.
	PostCash bool
}

// PlanTransition validates p against the allocation's current state and
// resolves every defaulted field.
func PlanTransition(current Allocation, p ReimbursementPatch, isCash CashMethodFunc) (TransitionPlan, error) {
	if isCash == nil {
		isCash = func(method string) bool { return strings.EqualFold(strings.TrimSpace(method), "cash") }
	}

	plan := TransitionPlan{From: current.ReimbursementStatus}

	switch {
	case p.Status.Set:
		to := p.Status.Value
		if !to.Valid() {
			return TransitionPlan{}, ErrInvalidStatus
		}
		if required, ok := p.ReimbursementRequired.Get(); ok {
			if required == (to == ReimbursementStatusNotRequired) {
				return TransitionPlan{}, ErrContradictoryPatch
			}
		}
		plan.To = to
	case p.ReimbursementRequired.Set:
		if !p.ReimbursementRequired.Value {
			plan.To = ReimbursementStatusNotRequired
		} else if plan.From == ReimbursementStatusNotRequired {
			plan.To = ReimbursementStatusPending
		} else {
			plan.To = plan.From
		}
	default:
		plan.To = plan.From
	}
	if !plan.To.Valid() {
		return TransitionPlan{}, ErrInvalidStatus
	}
	plan.Required = plan.To != ReimbursementStatusNotRequired

	plan.Method = normalizeText(p.ReimbursementMethod.Apply(current.ReimbursementMethod))
	plan.Reference = normalizeText(p.ReimbursementReference.Apply(current.ReimbursementReference))
	newIsCash := plan.Method != nil && isCash(*plan.Method)

	if plan.To == ReimbursementStatusCompleted {
		amount := current.AllocatedAmount
		switch {
		case p.ReimbursedAmount.Set && !p.ReimbursedAmount.Null:
			amount = p.ReimbursedAmount.Value
		case plan.From == ReimbursementStatusCompleted && current.ReimbursedAmount.Valid:
			amount = current.ReimbursedAmount.Decimal
		}
		amount = amount.Round(2)
		if !amount.IsPositive() {
			return TransitionPlan{}, ErrInvalidReimbursement
		}
		plan.ReimbursedAmount = decimal.NewNullDecimal(amount)

		if newIsCash {
			cash := amount
			switch {
			case p.ReimbursedCashAmount.Set && !p.ReimbursedCashAmount.Null:
				cash = p.ReimbursedCashAmount.Value
			case plan.From == ReimbursementStatusCompleted && !p.ReimbursedAmount.Set && current.ReimbursedCashAmount.Valid:
				cash = current.ReimbursedCashAmount.Decimal
			}
			cash = cash.Round(2)
			if !cash.IsPositive() {
				return TransitionPlan{}, ErrInvalidCashAmount
			}
			plan.CashAmount = decimal.NewNullDecimal(cash)
			plan.PostCash = true
		}
	}

	// Existing postings are reversed even when their method is no longer
	// configured as cash.
	hasPostings := current.SourceCashTransactionID != nil || current.TargetCashTransactionID != nil
	if hasPostings {
		settlementChanged := plan.To != ReimbursementStatusCompleted ||
			!newIsCash ||
			!current.ReimbursedCashAmount.Valid ||
			!current.ReimbursedCashAmount.Decimal.Equal(plan.CashAmount.Decimal)
		if settlementChanged {
			plan.ReverseCash = true
			plan.ReversalAmount = current.ReimbursedCashAmount.Decimal
			if !current.ReimbursedCashAmount.Valid {
				plan.ReversalAmount = current.ReimbursedAmount.Decimal
			}
		}
	}

	return plan, nil
}

// Apply writes the planned state onto a. Cash transaction ids are cleared on
// reversal; the caller fills new ones after posting.
func (plan TransitionPlan) Apply(a *Allocation, actorID snowflake.ID, now time.Time) {
	a.ReimbursementStatus = plan.To
	a.ReimbursementRequired = plan.Required
	a.ReimbursementMethod = plan.Method
	a.ReimbursementReference = plan.Reference

	if plan.ReverseCash {
		a.SourceCashTransactionID = nil
		a.TargetCashTransactionID = nil
		a.ReimbursedCashAmount = decimal.NullDecimal{}
	}

	switch plan.To {
	case ReimbursementStatusCompleted:
		stamped := now.UTC()
		a.ReimbursedAt = &stamped
		by := actorID
		a.ReimbursedBy = &by
		a.ReimbursedAmount = plan.ReimbursedAmount
		if plan.PostCash {
			a.ReimbursedCashAmount = plan.CashAmount
		} else {
			a.ReimbursedCashAmount = decimal.NullDecimal{}
			a.SourceCashTransactionID = nil
			a.TargetCashTransactionID = nil
		}
	case ReimbursementStatusPending, ReimbursementStatusNotRequired:
		a.ReimbursedAt = nil
		a.ReimbursedAmount = decimal.NullDecimal{}
		a.ReimbursedBy = nil
		a.ReimbursedCashAmount = decimal.NullDecimal{}
		a.SourceCashTransactionID = nil
		a.TargetCashTransactionID = nil
	}
}

func normalizeText(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
