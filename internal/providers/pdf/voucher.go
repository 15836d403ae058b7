package pdf

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

var ErrEmptyVoucher = errors.New("voucher has no allocations")

// VoucherData is a pre-formatted payment with one line per store share.
// Amounts are rendered as given.
type VoucherData struct {
	PaymentID   string
	PaymentDate string
	SourceStore string
	Method      string
	Reference   string
	PaidTo      string
	BankAccount string
	Notes       string
	Currency    string
	Total       string

	Lines []VoucherLine
}

type VoucherLine struct {
	Store         string
	Memo          string
	Percentage    string
	Amount        string
	Reimbursement string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GeneratePaymentVoucher(ctx context.Context, data VoucherData) (io.Reader, error) {
	if len(data.Lines) == 0 {
		return nil, ErrEmptyVoucher
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(15,
		text.NewCol(8, "Store Payment Voucher", props.Text{
			Size:  18,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Total+" "+data.Currency, props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(30,
		col.New(6).Add(
			text.New("Payment: "+data.PaymentID, props.Text{Top: 0}),
			text.New("Date: "+data.PaymentDate, props.Text{Top: 5}),
			text.New("Paid by: "+data.SourceStore, props.Text{Top: 10}),
			text.New("Paid to: "+orDash(data.PaidTo), props.Text{Top: 15}),
		),
		col.New(6).Add(
			text.New("Method: "+data.Method, props.Text{Top: 0}),
			text.New("Reference: "+orDash(data.Reference), props.Text{Top: 5}),
			text.New("Bank account: "+orDash(data.BankAccount), props.Text{Top: 10}),
		),
	)

	if data.Notes != "" {
		m.AddRow(12, text.NewCol(12, data.Notes, props.Text{Size: 9}))
	}

	m.AddRow(4, line.NewCol(12))

	m.AddRow(10,
		text.NewCol(4, "Store", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Memo", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(1, "%", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Reimbursement", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, l := range data.Lines {
		m.AddRow(8,
			text.NewCol(4, l.Store, props.Text{Size: 9}),
			text.NewCol(3, l.Memo, props.Text{Size: 9}),
			text.NewCol(1, l.Percentage, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, l.Amount, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, l.Reimbursement, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(4, line.NewCol(12))
	m.AddRow(10,
		col.New(6),
		text.NewCol(2, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(4, data.Total+" "+data.Currency, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
