package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/storesplit/internal/access"
	"github.com/smallbiznis/storesplit/internal/allocation/domain"
	"github.com/smallbiznis/storesplit/internal/allocation/split"
	auditdomain "github.com/smallbiznis/storesplit/internal/audit/domain"
	cashdomain "github.com/smallbiznis/storesplit/internal/cashledger/domain"
	"github.com/smallbiznis/storesplit/internal/clock"
	"github.com/smallbiznis/storesplit/internal/config"
	expensedomain "github.com/smallbiznis/storesplit/internal/expense/domain"
	"github.com/smallbiznis/storesplit/internal/logger"
	obsmetrics "github.com/smallbiznis/storesplit/internal/observability/metrics"
	"github.com/smallbiznis/storesplit/pkg/db"
	"github.com/smallbiznis/storesplit/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("storesplit/allocation")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	UoW        db.UnitOfWork
	Repo       domain.Repository
	Access     access.Service
	CashLedger cashdomain.Service
	Expenses   expensedomain.Service
	Rules      *config.AllocationRulesHolder
	AuditSvc   auditdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	uow        db.UnitOfWork
	repo       domain.Repository
	access     access.Service
	cashLedger cashdomain.Service
	expenses   expensedomain.Service
	rules      *config.AllocationRulesHolder
	auditSvc   auditdomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	rules := p.Rules
	if rules == nil {
		rules = config.NewStaticAllocationRules(config.DefaultAllocationRules())
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("allocation.service"),
		genID:      p.GenID,
		uow:        p.UoW,
		repo:       p.Repo,
		access:     p.Access,
		cashLedger: p.CashLedger,
		expenses:   p.Expenses,
		rules:      rules,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) CreatePayment(ctx context.Context, actorID snowflake.ID, req domain.PaymentRequest) (_ *domain.PaymentView, err error) {
	ctx, span := tracer.Start(ctx, "allocation.CreatePayment")
	defer func() { finishSpan(span, err) }()

	req, err = s.normalizeRequest(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("split_mode", string(req.Mode)),
		attribute.String("context", string(req.Context)),
	)

	if err := s.requireAccess(ctx, actorID, req.SourceStoreID); err != nil {
		return nil, err
	}
	lines, err := split.Split(req.Amount, req.Mode, splitRequests(req.Allocations), s.accessFunc(ctx, actorID))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	payment := &domain.Payment{
		ID:        s.genID.Generate(),
		CreatedBy: actorID,
		CreatedAt: now,
	}
	applyHeader(payment, req.PaymentHeader, now)
	allocations := s.buildAllocations(payment, lines, req.Allocations, now)

	if err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
			return err
		}
		for _, allocation := range allocations {
			if err := s.repo.InsertAllocation(ctx, tx, allocation); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if req.Context == domain.MirrorContextExpense {
		mirrorErr := s.uow.Do(ctx, func(tx *gorm.DB) error {
			return s.mirrorExpenses(ctx, tx, payment, allocations, req.Expense, actorID)
		})
		if mirrorErr != nil {
			s.compensateCreate(ctx, payment.ID)
			return nil, fmt.Errorf("mirror expenses: %w", mirrorErr)
		}
	}

	s.audit(ctx, payment.SourceStoreID, actorID, "store_payment.created", "store_payment", payment.ID, map[string]any{
		"amount":      payment.Amount.StringFixed(2),
		"allocations": len(allocations),
		"split_mode":  string(req.Mode),
		"context":     string(req.Context),
	})
	s.obsMetrics.RecordPaymentCreated(ctx, string(req.Mode), string(req.Context))

	return s.loadView(ctx, s.db, payment.ID)
}

// compensateCreate removes a payment whose expense mirroring failed after the
// core insert had committed.
func (s *Service) compensateCreate(ctx context.Context, paymentID snowflake.ID) {
	err := s.uow.Do(ctx, func(tx *gorm.DB) error {
		if err := s.repo.DeleteAllocationsByPayment(ctx, tx, paymentID); err != nil {
			return err
		}
		return s.repo.DeletePayment(ctx, tx, paymentID)
	})
	if err != nil {
		logger.WithContext(ctx, s.log).Error("failed to compensate payment after mirroring error",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) GetPayment(ctx context.Context, paymentID snowflake.ID) (_ *domain.PaymentView, err error) {
	ctx, span := tracer.Start(ctx, "allocation.GetPayment")
	defer func() { finishSpan(span, err) }()

	return s.loadView(ctx, s.db, paymentID)
}

func (s *Service) ListPayments(ctx context.Context, actorID snowflake.ID, req domain.ListPaymentsRequest) (_ domain.ListPaymentsResponse, err error) {
	ctx, span := tracer.Start(ctx, "allocation.ListPayments")
	defer func() { finishSpan(span, err) }()

	if req.StoreID == 0 {
		return domain.ListPaymentsResponse{}, domain.ErrInvalidStoreFilter
	}
	role := domain.StoreRole(strings.ToLower(strings.TrimSpace(string(req.Role))))
	switch role {
	case "":
		role = domain.StoreRoleAll
	case domain.StoreRoleSource, domain.StoreRoleTarget, domain.StoreRoleAll:
	default:
		return domain.ListPaymentsResponse{}, domain.ErrInvalidRole
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return domain.ListPaymentsResponse{}, domain.ErrInvalidDateRange
	}
	if err := s.requireAccess(ctx, actorID, req.StoreID); err != nil {
		return domain.ListPaymentsResponse{}, err
	}

	var beforeID *snowflake.ID
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return domain.ListPaymentsResponse{}, domain.ErrInvalidPageToken
		}
		beforeID = &id
	}

	limit := req.Limit()
	items, err := s.repo.ListPayments(ctx, s.db, domain.PaymentFilter{
		StoreID:  req.StoreID,
		Role:     role,
		From:     req.From,
		To:       req.To,
		BeforeID: beforeID,
		Limit:    limit,
	})
	if err != nil {
		return domain.ListPaymentsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *domain.Payment) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > limit {
		items = items[:limit]
	}

	views, err := s.buildViews(ctx, s.db, items)
	if err != nil {
		return domain.ListPaymentsResponse{}, err
	}

	resp := domain.ListPaymentsResponse{Payments: views}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) StoreCashBalance(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) (_ decimal.Decimal, err error) {
	ctx, span := tracer.Start(ctx, "allocation.StoreCashBalance")
	defer func() { finishSpan(span, err) }()

	if storeID == 0 {
		return decimal.Zero, domain.ErrInvalidStoreFilter
	}
	if err := s.requireAccess(ctx, actorID, storeID); err != nil {
		return decimal.Zero, err
	}
	return s.cashLedger.GetBalance(ctx, s.db, storeID)
}

func (s *Service) normalizeRequest(req domain.PaymentRequest) (domain.PaymentRequest, error) {
	if req.SourceStoreID == 0 {
		return req, domain.ErrInvalidSourceStore
	}
	if req.PaymentDate.IsZero() {
		return req, domain.ErrInvalidPaymentDate
	}
	req.Method = strings.TrimSpace(req.Method)
	if req.Method == "" {
		return req, domain.ErrInvalidMethod
	}
	req.Amount = req.Amount.Round(2)
	if !req.Amount.IsPositive() {
		return req, domain.ErrInvalidTotal
	}
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = strings.ToUpper(s.rules.Get().DefaultCurrency)
	}

	req.Mode = domain.SplitMode(strings.ToLower(strings.TrimSpace(string(req.Mode))))
	switch req.Mode {
	case "":
		req.Mode = domain.SplitModeAmount
	case domain.SplitModeAmount, domain.SplitModePercentage:
	default:
		return req, domain.ErrInvalidSplitMode
	}

	req.Context = domain.MirrorContext(strings.ToLower(strings.TrimSpace(string(req.Context))))
	switch req.Context {
	case "":
		req.Context = domain.MirrorContextPayment
	case domain.MirrorContextPayment, domain.MirrorContextExpense:
	default:
		return req, domain.ErrInvalidContext
	}
	return req, nil
}

func applyHeader(payment *domain.Payment, header domain.PaymentHeader, now time.Time) {
	payment.SourceStoreID = header.SourceStoreID
	payment.PaymentDate = header.PaymentDate.UTC()
	payment.Method = header.Method
	payment.Reference = trimmedPtr(header.Reference)
	payment.Amount = header.Amount
	payment.Currency = header.Currency
	payment.PaidTo = strings.TrimSpace(header.PaidTo)
	payment.Notes = strings.TrimSpace(header.Notes)
	payment.BankAccountID = header.BankAccountID
	payment.Metadata = nil
	if len(header.Metadata) > 0 {
		payment.Metadata = datatypes.JSONMap(header.Metadata)
	}
	payment.UpdatedAt = now
}

func (s *Service) buildAllocations(payment *domain.Payment, lines []split.Line, reqs []domain.AllocationRequest, now time.Time) []*domain.Allocation {
	allocations := make([]*domain.Allocation, 0, len(lines))
	for i, line := range lines {
		req := reqs[i]
		required := line.TargetStoreID != payment.SourceStoreID
		if req.ReimbursementRequired != nil {
			required = *req.ReimbursementRequired
		}
		status := domain.ReimbursementStatusNotRequired
		if required {
			status = domain.ReimbursementStatusPending
		}

		allocation := &domain.Allocation{
			ID:                    s.genID.Generate(),
			PaymentID:             payment.ID,
			TargetStoreID:         line.TargetStoreID,
			AllocatedAmount:       line.Amount,
			AllocationPercentage:  decimal.NewNullDecimal(line.Percentage),
			Target:                domain.NoTarget(),
			Memo:                  strings.TrimSpace(req.Memo),
			ApproverID:            req.ApproverID,
			ReimbursementRequired: required,
			ReimbursementStatus:   status,
			CreatedAt:             now,
			UpdatedAt:             now,
		}
		if len(req.Metadata) > 0 {
			allocation.Metadata = datatypes.JSONMap(req.Metadata)
		}
		allocations = append(allocations, allocation)
	}
	return allocations
}

func splitRequests(reqs []domain.AllocationRequest) []split.Request {
	out := make([]split.Request, len(reqs))
	for i, req := range reqs {
		out[i] = split.Request{
			TargetStoreID: req.TargetStoreID,
			Amount:        req.Amount,
			Percentage:    req.Percentage,
		}
	}
	return out
}

func (s *Service) accessFunc(ctx context.Context, actorID snowflake.ID) split.AccessFunc {
	return func(storeID snowflake.ID) (bool, error) {
		return s.access.CanAccess(ctx, actorID, storeID)
	}
}

func (s *Service) requireAccess(ctx context.Context, actorID snowflake.ID, storeID snowflake.ID) error {
	allowed, err := s.access.CanAccess(ctx, actorID, storeID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: store %s", domain.ErrStoreAccessDenied, storeID)
	}
	return nil
}

// requireEitherAccess passes when the actor manages at least one of the stores.
func (s *Service) requireEitherAccess(ctx context.Context, actorID snowflake.ID, first, second snowflake.ID) error {
	allowed, err := s.access.CanAccess(ctx, actorID, first)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}
	return s.requireAccess(ctx, actorID, second)
}

// lockAllocation locks the owning payment before the allocation so every
// writer on a payment takes its locks in the same order.
func (s *Service) lockAllocation(ctx context.Context, tx *gorm.DB, allocationID snowflake.ID) (*domain.Payment, *domain.Allocation, error) {
	found, err := s.repo.FindAllocation(ctx, tx, allocationID)
	if err != nil {
		return nil, nil, err
	}
	if found == nil {
		return nil, nil, domain.ErrAllocationNotFound
	}
	payment, err := s.repo.LockPayment(ctx, tx, found.PaymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, domain.ErrPaymentNotFound
	}
	allocation, err := s.repo.LockAllocation(ctx, tx, allocationID)
	if err != nil {
		return nil, nil, err
	}
	// Removed while we waited on the payment.
	if allocation == nil {
		return nil, nil, domain.ErrAllocationNotFound
	}
	return payment, allocation, nil
}

func (s *Service) loadView(ctx context.Context, conn *gorm.DB, paymentID snowflake.ID) (*domain.PaymentView, error) {
	payment, err := s.repo.FindPayment(ctx, conn, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	views, err := s.buildViews(ctx, conn, []*domain.Payment{payment})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// buildViews joins allocations, store and bank names, and mirrored expense
// summaries onto payments with one IN query per table.
func (s *Service) buildViews(ctx context.Context, conn *gorm.DB, payments []*domain.Payment) ([]domain.PaymentView, error) {
	views := make([]domain.PaymentView, 0, len(payments))
	if len(payments) == 0 {
		return views, nil
	}

	paymentIDs := make([]snowflake.ID, 0, len(payments))
	storeIDs := make([]snowflake.ID, 0, len(payments))
	bankIDs := make([]snowflake.ID, 0)
	for _, payment := range payments {
		paymentIDs = append(paymentIDs, payment.ID)
		storeIDs = append(storeIDs, payment.SourceStoreID)
		if payment.BankAccountID != nil {
			bankIDs = append(bankIDs, *payment.BankAccountID)
		}
	}

	allocations, err := s.repo.ListAllocations(ctx, conn, paymentIDs)
	if err != nil {
		return nil, err
	}
	byPayment := make(map[snowflake.ID][]*domain.Allocation, len(payments))
	expenseIDs := make([]snowflake.ID, 0)
	for _, allocation := range allocations {
		byPayment[allocation.PaymentID] = append(byPayment[allocation.PaymentID], allocation)
		storeIDs = append(storeIDs, allocation.TargetStoreID)
		if id, ok := allocation.Target.ExpenseID(); ok {
			expenseIDs = append(expenseIDs, id)
		}
	}

	storeNames, err := s.repo.StoreNames(ctx, conn, uniqueIDs(storeIDs))
	if err != nil {
		return nil, err
	}
	bankNames, err := s.repo.BankAccountNames(ctx, conn, uniqueIDs(bankIDs))
	if err != nil {
		return nil, err
	}
	expenses, err := s.expenses.ListByIDs(ctx, conn, expenseIDs)
	if err != nil {
		return nil, err
	}

	for _, payment := range payments {
		view := domain.PaymentView{
			Payment:         *payment,
			SourceStoreName: storeNames[payment.SourceStoreID],
			Allocations:     make([]domain.AllocationView, 0, len(byPayment[payment.ID])),
		}
		if payment.BankAccountID != nil {
			view.BankAccountName = bankNames[*payment.BankAccountID]
		}
		for _, allocation := range byPayment[payment.ID] {
			view.Allocations = append(view.Allocations, allocationView(allocation, storeNames, expenses))
		}
		views = append(views, view)
	}
	return views, nil
}

func allocationView(allocation *domain.Allocation, storeNames map[snowflake.ID]string, expenses map[snowflake.ID]*expensedomain.Expense) domain.AllocationView {
	view := domain.AllocationView{
		Allocation:      *allocation,
		TargetStoreName: storeNames[allocation.TargetStoreID],
	}
	if id, ok := allocation.Target.ExpenseID(); ok {
		if expense := expenses[id]; expense != nil {
			view.Expense = &domain.ExpenseSummary{
				ID:                  expense.ID,
				ExpenseType:         expense.ExpenseType,
				Amount:              expense.Amount,
				Reimbursable:        expense.Reimbursable,
				ReimbursementStatus: string(expense.ReimbursementStatus),
			}
		}
	}
	return view
}

func (s *Service) audit(ctx context.Context, storeID snowflake.ID, actorID snowflake.ID, action string, targetType string, targetID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	actorType := string(auditdomain.ActorTypeUser)
	var actor *string
	if actorID == access.SystemActor {
		actorType = string(auditdomain.ActorTypeSystem)
	} else {
		id := actorID.String()
		actor = &id
	}
	target := targetID.String()
	if err := s.auditSvc.AuditLog(ctx, &storeID, actorType, actor, action, targetType, &target, metadata); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to write allocation audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func uniqueIDs(ids []snowflake.ID) []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(ids))
	out := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
