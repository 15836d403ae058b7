package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePaymentVoucher(t *testing.T) {
	provider := New()

	r, err := provider.GeneratePaymentVoucher(context.Background(), VoucherData{
		PaymentID:   "1001",
		PaymentDate: "2026-03-01",
		SourceStore: "Store A",
		Method:      "bank_transfer",
		Currency:    "USD",
		Total:       "150.00",
		Lines: []VoucherLine{
			{Store: "Store A", Percentage: "40.000", Amount: "60.00", Reimbursement: "not_required"},
			{Store: "Store B", Percentage: "60.000", Amount: "90.00", Reimbursement: "pending"},
		},
	})
	require.NoError(t, err)

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestGeneratePaymentVoucherRequiresLines(t *testing.T) {
	_, err := New().GeneratePaymentVoucher(context.Background(), VoucherData{PaymentID: "1"})
	require.ErrorIs(t, err, ErrEmptyVoucher)
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "x", orDash("x"))
}
