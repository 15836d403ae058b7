package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	allocationdomain "github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/pkg/db/pagination"
)

type allocationBody struct {
	TargetStoreID         string           `json:"target_store_id"`
	Amount                *decimal.Decimal `json:"amount"`
	Percentage            *decimal.Decimal `json:"percentage"`
	Memo                  string           `json:"memo"`
	ApproverID            string           `json:"approver_id"`
	ReimbursementRequired *bool            `json:"reimbursement_required"`
	Metadata              map[string]any   `json:"metadata"`
}

type storePaymentBody struct {
	SourceStoreID      string           `json:"source_store_id"`
	PaymentDate        string           `json:"payment_date"`
	Method             string           `json:"method"`
	Reference          *string          `json:"reference"`
	Amount             decimal.Decimal  `json:"amount"`
	Currency           string           `json:"currency"`
	PaidTo             string           `json:"paid_to"`
	Notes              string           `json:"notes"`
	BankAccountID      string           `json:"bank_account_id"`
	Metadata           map[string]any   `json:"metadata"`
	Mode               string           `json:"mode"`
	Context            string           `json:"context"`
	ExpenseType        string           `json:"expense_type"`
	ExpenseDescription string           `json:"expense_description"`
	Allocations        []allocationBody `json:"allocations"`
}

func (b storePaymentBody) toRequest() (allocationdomain.PaymentRequest, error) {
	sourceStoreID, err := parseSnowflakeID(b.SourceStoreID)
	if err != nil {
		return allocationdomain.PaymentRequest{}, newValidationError("source_store_id", "invalid_source_store_id", "invalid source_store_id")
	}
	paymentDate, err := parseOptionalTime(b.PaymentDate, false)
	if err != nil || paymentDate == nil {
		return allocationdomain.PaymentRequest{}, newValidationError("payment_date", "invalid_payment_date", "invalid payment_date")
	}
	bankAccountID, err := parseOptionalSnowflakeID(b.BankAccountID)
	if err != nil {
		return allocationdomain.PaymentRequest{}, newValidationError("bank_account_id", "invalid_bank_account_id", "invalid bank_account_id")
	}

	req := allocationdomain.PaymentRequest{
		PaymentHeader: allocationdomain.PaymentHeader{
			SourceStoreID: sourceStoreID,
			PaymentDate:   *paymentDate,
			Method:        b.Method,
			Reference:     b.Reference,
			Amount:        b.Amount,
			Currency:      b.Currency,
			PaidTo:        b.PaidTo,
			Notes:         b.Notes,
			BankAccountID: bankAccountID,
			Metadata:      b.Metadata,
		},
		Mode:    allocationdomain.SplitMode(strings.TrimSpace(b.Mode)),
		Context: allocationdomain.MirrorContext(strings.TrimSpace(b.Context)),
		Expense: allocationdomain.ExpenseOptions{
			ExpenseType: b.ExpenseType,
			Description: b.ExpenseDescription,
		},
		Allocations: make([]allocationdomain.AllocationRequest, 0, len(b.Allocations)),
	}

	for _, item := range b.Allocations {
		target, err := parseOptionalSnowflakeID(item.TargetStoreID)
		if err != nil {
			return allocationdomain.PaymentRequest{}, newValidationError("target_store_id", "invalid_target_store_id", "invalid target_store_id")
		}
		var targetStoreID snowflake.ID
		if target != nil {
			targetStoreID = *target
		}
		approverID, err := parseOptionalSnowflakeID(item.ApproverID)
		if err != nil {
			return allocationdomain.PaymentRequest{}, newValidationError("approver_id", "invalid_approver_id", "invalid approver_id")
		}
		req.Allocations = append(req.Allocations, allocationdomain.AllocationRequest{
			TargetStoreID:         targetStoreID,
			Amount:                item.Amount,
			Percentage:            item.Percentage,
			Memo:                  item.Memo,
			ApproverID:            approverID,
			ReimbursementRequired: item.ReimbursementRequired,
			Metadata:              item.Metadata,
		})
	}
	return req, nil
}

func (s *Server) CreateStorePayment(c *gin.Context) {
	var body storePaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := body.toRequest()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view, err := s.allocationSvc.CreatePayment(c.Request.Context(), actorID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": view})
}

type listStorePaymentsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	StoreID   string `form:"store_id"`
	Role      string `form:"role"`
	From      string `form:"from"`
	To        string `form:"to"`
}

func (s *Server) ListStorePayments(c *gin.Context) {
	var query listStorePaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	storeID, err := parseSnowflakeID(query.StoreID)
	if err != nil {
		AbortWithError(c, newValidationError("store_id", "invalid_store_id", "store_id is required"))
		return
	}
	from, err := parseOptionalTime(query.From, false)
	if err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	}
	to, err := parseOptionalTime(query.To, true)
	if err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp, err := s.allocationSvc.ListPayments(c.Request.Context(), actorID, allocationdomain.ListPaymentsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		StoreID: storeID,
		Role:    allocationdomain.StoreRole(strings.TrimSpace(query.Role)),
		From:    from,
		To:      to,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Payments, "page_info": resp.PageInfo})
}

func (s *Server) GetStorePayment(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) UpdateStorePayment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var body storePaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req, err := body.toRequest()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view, err := s.allocationSvc.UpdatePayment(c.Request.Context(), actorID, id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) DeleteStorePayment(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.allocationSvc.DeletePayment(c.Request.Context(), actorID, id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RemoveStorePaymentAllocation(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view, err := s.allocationSvc.RemoveAllocation(c.Request.Context(), actorID, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) UpdateAllocationReimbursement(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	var patch allocationdomain.ReimbursementPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	actorID, err := actorFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	view, err := s.allocationSvc.UpdateAllocationReimbursement(c.Request.Context(), actorID, id, patch)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func allocationTargets(view *allocationdomain.PaymentView) []snowflake.ID {
	targets := make([]snowflake.ID, 0, len(view.Allocations))
	for _, allocation := range view.Allocations {
		targets = append(targets, allocation.TargetStoreID)
	}
	return targets
}
