package pdf

import (
	"context"
	"io"

	"go.uber.org/fx"
)

// Provider renders printable documents for store payments.
type Provider interface {
	GeneratePaymentVoucher(ctx context.Context, data VoucherData) (io.Reader, error)
}

var Module = fx.Module("pdf.provider",
	fx.Provide(New),
)
