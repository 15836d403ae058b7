package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	allocationdomain "github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/internal/providers/pdf"
)

const voucherDateLayout = "2006-01-02"

// GetStorePaymentVoucher streams a printable PDF of the payment and its
// store shares.
func (s *Server) GetStorePaymentVoucher(c *gin.Context) {
	if s.pdfProvider == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	view, err := s.allocationSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.requireStoreAccess(c, view.SourceStoreID, allocationTargets(view)...); err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdfProvider.GeneratePaymentVoucher(c.Request.Context(), voucherData(view))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="payment-%s.pdf"`, view.ID.String()))
	c.Data(http.StatusOK, "application/pdf", body)
}

func voucherData(view *allocationdomain.PaymentView) pdf.VoucherData {
	data := pdf.VoucherData{
		PaymentID:   view.ID.String(),
		PaymentDate: view.PaymentDate.Format(voucherDateLayout),
		SourceStore: storeLabel(view.SourceStoreName, view.SourceStoreID.String()),
		Method:      view.Method,
		PaidTo:      view.PaidTo,
		BankAccount: view.BankAccountName,
		Notes:       view.Notes,
		Currency:    view.Currency,
		Total:       view.Amount.StringFixed(2),
		Lines:       make([]pdf.VoucherLine, 0, len(view.Allocations)),
	}
	if view.Reference != nil {
		data.Reference = *view.Reference
	}

	for _, a := range view.Allocations {
		line := pdf.VoucherLine{
			Store:         storeLabel(a.TargetStoreName, a.TargetStoreID.String()),
			Memo:          a.Memo,
			Amount:        a.AllocatedAmount.StringFixed(2),
			Reimbursement: string(a.ReimbursementStatus),
		}
		if a.AllocationPercentage.Valid {
			line.Percentage = a.AllocationPercentage.Decimal.StringFixed(3)
		}
		data.Lines = append(data.Lines, line)
	}
	return data
}

func storeLabel(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
