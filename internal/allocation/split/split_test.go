package split

import (
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func sum(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return total
}

func allowAll(snowflake.ID) (bool, error) { return true, nil }

func TestPercentageRemainderGoesToLastAllocation(t *testing.T) {
	lines, err := Split(decimal.RequireFromString("100.00"), domain.SplitModePercentage, []Request{
		{TargetStoreID: 1, Percentage: dec("33.33")},
		{TargetStoreID: 2, Percentage: dec("33.33")},
		{TargetStoreID: 3, Percentage: dec("33.34")},
	}, allowAll)
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, "33.33", lines[0].Amount.StringFixed(2))
	assert.Equal(t, "33.33", lines[1].Amount.StringFixed(2))
	assert.Equal(t, "33.34", lines[2].Amount.StringFixed(2))
	assert.True(t, sum(lines).Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, "33.340", lines[2].Percentage.StringFixed(3))
}

func TestPercentageRoundingAbsorbedByLast(t *testing.T) {
	lines, err := Split(decimal.RequireFromString("10.00"), domain.SplitModePercentage, []Request{
		{TargetStoreID: 1, Percentage: dec("33.333")},
		{TargetStoreID: 2, Percentage: dec("33.333")},
		{TargetStoreID: 3, Percentage: dec("33.334")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "3.33", lines[0].Amount.StringFixed(2))
	assert.Equal(t, "3.33", lines[1].Amount.StringFixed(2))
	assert.Equal(t, "3.34", lines[2].Amount.StringFixed(2))
	assert.True(t, sum(lines).Equal(decimal.RequireFromString("10")))
}

func TestPercentageFortySixty(t *testing.T) {
	lines, err := Split(decimal.RequireFromString("150"), domain.SplitModePercentage, []Request{
		{TargetStoreID: 2, Percentage: dec("40")},
		{TargetStoreID: 3, Percentage: dec("60")},
	}, allowAll)
	require.NoError(t, err)
	assert.Equal(t, "60.00", lines[0].Amount.StringFixed(2))
	assert.Equal(t, "90.00", lines[1].Amount.StringFixed(2))
	assert.Equal(t, "40.000", lines[0].Percentage.StringFixed(3))
	assert.Equal(t, "60.000", lines[1].Percentage.StringFixed(3))
}

func TestPercentageMustSumToHundred(t *testing.T) {
	_, err := Split(decimal.NewFromInt(100), domain.SplitModePercentage, []Request{
		{TargetStoreID: 1, Percentage: dec("50")},
		{TargetStoreID: 2, Percentage: dec("49.9")},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrPercentageSum)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = Split(decimal.NewFromInt(100), domain.SplitModePercentage, []Request{
		{TargetStoreID: 1, Percentage: dec("50")},
		{TargetStoreID: 2, Percentage: dec("49.995")},
	}, nil)
	assert.NoError(t, err, "within tolerance")
}

func TestPercentageMustBePositive(t *testing.T) {
	_, err := Split(decimal.NewFromInt(100), domain.SplitModePercentage, []Request{
		{TargetStoreID: 1, Percentage: dec("100")},
		{TargetStoreID: 2, Percentage: dec("0")},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)

	_, err = Split(decimal.NewFromInt(100), domain.SplitModePercentage, []Request{
		{TargetStoreID: 1},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPercentage)
}

func TestAmountModeDerivesPercentages(t *testing.T) {
	lines, err := Split(decimal.RequireFromString("90"), domain.SplitModeAmount, []Request{
		{TargetStoreID: 1, Amount: dec("30")},
		{TargetStoreID: 2, Amount: dec("60")},
	}, allowAll)
	require.NoError(t, err)
	assert.Equal(t, "33.333", lines[0].Percentage.StringFixed(3))
	assert.Equal(t, "66.667", lines[1].Percentage.StringFixed(3))
}

func TestAmountModeMustSumToTotal(t *testing.T) {
	_, err := Split(decimal.RequireFromString("100"), domain.SplitModeAmount, []Request{
		{TargetStoreID: 1, Amount: dec("40")},
		{TargetStoreID: 2, Amount: dec("50")},
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllocationSum)
	assert.Contains(t, err.Error(), "allocations must sum to total")

	_, err = Split(decimal.RequireFromString("100"), domain.SplitModeAmount, []Request{
		{TargetStoreID: 1, Amount: dec("40")},
		{TargetStoreID: 2, Amount: dec("-10")},
		{TargetStoreID: 3, Amount: dec("70")},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestValidatesInputs(t *testing.T) {
	_, err := Split(decimal.Zero, domain.SplitModeAmount, []Request{{TargetStoreID: 1, Amount: dec("1")}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTotal)

	_, err = Split(decimal.NewFromInt(5), domain.SplitModeAmount, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNoAllocations)

	_, err = Split(decimal.NewFromInt(5), domain.SplitMode("even"), []Request{{TargetStoreID: 1}}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSplitMode)

	_, err = Split(decimal.NewFromInt(5), domain.SplitModeAmount, []Request{{Amount: dec("5")}}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingTarget)
}

func TestAccessPredicate(t *testing.T) {
	calls := map[snowflake.ID]int{}
	deny := func(id snowflake.ID) (bool, error) {
		calls[id]++
		return id != 3, nil
	}

	_, err := Split(decimal.NewFromInt(10), domain.SplitModeAmount, []Request{
		{TargetStoreID: 1, Amount: dec("5")},
		{TargetStoreID: 1, Amount: dec("3")},
		{TargetStoreID: 3, Amount: dec("2")},
	}, deny)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)
	assert.Equal(t, 1, calls[1], "each store is checked once")

	boom := errors.New("enforcer unavailable")
	_, err = Split(decimal.NewFromInt(10), domain.SplitModeAmount, []Request{
		{TargetStoreID: 1, Amount: dec("10")},
	}, func(snowflake.ID) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestSumInvariantAcrossManyPercentageSplits(t *testing.T) {
	totals := []string{"0.03", "1.00", "99.99", "1234.57", "100000.01"}
	shares := [][]string{
		{"33.33", "33.33", "33.34"},
		{"12.5", "12.5", "25", "50"},
		{"99.99", "0.01"},
		{"14.285", "14.285", "14.286", "14.286", "14.286", "14.286", "14.286"},
	}
	for _, total := range totals {
		for _, set := range shares {
			reqs := make([]Request, len(set))
			for i, pct := range set {
				reqs[i] = Request{TargetStoreID: snowflake.ID(i + 1), Percentage: dec(pct)}
			}
			lines, err := Split(decimal.RequireFromString(total), domain.SplitModePercentage, reqs, nil)
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInvalidAmount, "total %s shares %v", total, set)
				continue
			}
			assert.True(t, sum(lines).Equal(decimal.RequireFromString(total)), "total %s shares %v", total, set)
		}
	}
}
