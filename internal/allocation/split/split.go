// Package split turns raw allocation requests into exact per-store amounts.
package split

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.RequireFromString("0.01")
)

// Request is one requested share before splitting.
type Request struct {
	TargetStoreID snowflake.ID
	Amount        *decimal.Decimal
	Percentage    *decimal.Decimal
}

// Line is a resolved share. Amounts are rounded to the cent and percentages
// to three decimals.
type Line struct {
	TargetStoreID snowflake.ID
	Amount        decimal.Decimal
	Percentage    decimal.Decimal
}

// AccessFunc reports whether the caller may allocate to storeID.
type AccessFunc func(storeID snowflake.ID) (bool, error)

// Split validates reqs against total and returns one line per request in
// the same order. In percentage mode the last line absorbs the rounding
// remainder so the amounts always add up to total.
func Split(total decimal.Decimal, mode domain.SplitMode, reqs []Request, canAccess AccessFunc) ([]Line, error) {
	total = total.Round(2)
	if !total.IsPositive() {
		return nil, domain.ErrInvalidTotal
	}
	if len(reqs) == 0 {
		return nil, domain.ErrNoAllocations
	}
	if mode != domain.SplitModeAmount && mode != domain.SplitModePercentage {
		return nil, domain.ErrInvalidSplitMode
	}
	for i, req := range reqs {
		if req.TargetStoreID == 0 {
			return nil, fmt.Errorf("%w (allocation %d)", domain.ErrMissingTarget, i)
		}
	}
	if err := checkAccess(reqs, canAccess); err != nil {
		return nil, err
	}

	var (
		lines []Line
		err   error
	)
	switch mode {
	case domain.SplitModePercentage:
		lines, err = byPercentage(total, reqs)
	case domain.SplitModeAmount:
		lines, err = byAmount(reqs)
	}
	if err != nil {
		return nil, err
	}

	sum := decimal.Zero
	for _, line := range lines {
		sum = sum.Add(line.Amount)
	}
	if sum.Sub(total).Abs().GreaterThan(tolerance) {
		return nil, domain.ErrAllocationSum
	}

	for i := range lines {
		lines[i].Percentage = Percentage(lines[i].Amount, total)
	}
	return lines, nil
}

// Percentage derives a stored percentage from an amount.
func Percentage(amount, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(hundred).DivRound(total, 6).Round(3)
}

func byPercentage(total decimal.Decimal, reqs []Request) ([]Line, error) {
	pctSum := decimal.Zero
	for i, req := range reqs {
		if req.Percentage == nil || !req.Percentage.IsPositive() {
			return nil, fmt.Errorf("%w (allocation %d)", domain.ErrInvalidPercentage, i)
		}
		pctSum = pctSum.Add(*req.Percentage)
	}
	if pctSum.Sub(hundred).Abs().GreaterThan(tolerance) {
		return nil, domain.ErrPercentageSum
	}

	lines := make([]Line, len(reqs))
	running := decimal.Zero
	last := len(reqs) - 1
	for i, req := range reqs {
		amount := total.Sub(running)
		if i < last {
			amount = total.Mul(*req.Percentage).Div(hundred).Round(2)
		}
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w (allocation %d)", domain.ErrInvalidAmount, i)
		}
		running = running.Add(amount)
		lines[i] = Line{TargetStoreID: req.TargetStoreID, Amount: amount}
	}
	return lines, nil
}

func byAmount(reqs []Request) ([]Line, error) {
	lines := make([]Line, len(reqs))
	for i, req := range reqs {
		if req.Amount == nil {
			return nil, fmt.Errorf("%w (allocation %d)", domain.ErrInvalidAmount, i)
		}
		amount := req.Amount.Round(2)
		if !amount.IsPositive() {
			return nil, fmt.Errorf("%w (allocation %d)", domain.ErrInvalidAmount, i)
		}
		lines[i] = Line{TargetStoreID: req.TargetStoreID, Amount: amount}
	}
	return lines, nil
}

func checkAccess(reqs []Request, canAccess AccessFunc) error {
	if canAccess == nil {
		return nil
	}
	checked := make(map[snowflake.ID]struct{}, len(reqs))
	for _, req := range reqs {
		if _, ok := checked[req.TargetStoreID]; ok {
			continue
		}
		checked[req.TargetStoreID] = struct{}{}
		allowed, err := canAccess(req.TargetStoreID)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: store %s", domain.ErrStoreAccessDenied, req.TargetStoreID)
		}
	}
	return nil
}
