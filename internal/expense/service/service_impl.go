package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storesplit/internal/clock"
	"github.com/smallbiznis/storesplit/internal/expense/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:   p.Log.Named("expense.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: clk,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req domain.CreateExpenseRequest) (*domain.Expense, error) {
	if req.StoreID == 0 {
		return nil, domain.ErrInvalidStore
	}
	if !req.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	expenseType := strings.TrimSpace(req.ExpenseType)
	if expenseType == "" {
		return nil, domain.ErrInvalidExpenseType
	}
	if req.ExpenseDate.IsZero() {
		return nil, domain.ErrInvalidExpenseDate
	}

	status := domain.ReimbursementStatusNone
	if req.Reimbursable {
		status = domain.ReimbursementStatusPending
	}

	now := s.clock.Now().UTC()
	expense := &domain.Expense{
		ID:                  s.genID.Generate(),
		StoreID:             req.StoreID,
		ExpenseDate:         req.ExpenseDate.UTC(),
		ExpenseType:         expenseType,
		Description:         strings.TrimSpace(req.Description),
		Amount:              req.Amount.Round(2),
		Currency:            strings.ToUpper(strings.TrimSpace(req.Currency)),
		PaymentMethod:       strings.TrimSpace(req.PaymentMethod),
		Reimbursable:        req.Reimbursable,
		ReimbursementTo:     strings.TrimSpace(req.ReimbursementTo),
		ReimbursementStatus: status,
		SourcePaymentID:     req.SourcePaymentID,
		SourceAllocationID:  req.SourceAllocationID,
		CreatedBy:           req.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if len(req.Metadata) > 0 {
		expense.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, tx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

func (s *Service) Update(ctx context.Context, tx *gorm.DB, id snowflake.ID, p domain.Patch) (*domain.Expense, error) {
	expense, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, domain.ErrNotFound
	}

	if amount, ok := p.Amount.Get(); ok {
		if !amount.IsPositive() {
			return nil, domain.ErrInvalidAmount
		}
		expense.Amount = amount.Round(2)
	}
	if description, ok := p.Description.Get(); ok {
		expense.Description = strings.TrimSpace(description)
	}
	if reimbursable, ok := p.Reimbursable.Get(); ok {
		expense.Reimbursable = reimbursable
	}
	if status, ok := p.ReimbursementStatus.Get(); ok {
		switch status {
		case domain.ReimbursementStatusNone, domain.ReimbursementStatusPending, domain.ReimbursementStatusReimbursed:
			expense.ReimbursementStatus = status
		default:
			return nil, domain.ErrInvalidReimbursable
		}
	}
	expense.ReimbursedAt = p.ReimbursedAt.Apply(expense.ReimbursedAt)
	if p.ReimbursedAmount.Set {
		expense.ReimbursedAmount.Valid = !p.ReimbursedAmount.Null
		expense.ReimbursedAmount.Decimal = p.ReimbursedAmount.Value.Round(2)
	}
	expense.ReimbursementMethod = p.ReimbursementMethod.Apply(expense.ReimbursementMethod)
	expense.ReimbursementReference = p.ReimbursementReference.Apply(expense.ReimbursementReference)
	expense.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.Save(ctx, tx, expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// Delete removes the expense. Deleting a missing expense is not an error.
func (s *Service) Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	if id == 0 {
		return nil
	}
	return s.repo.DeleteByID(ctx, tx, id)
}

func (s *Service) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Expense, error) {
	expense, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, err
	}
	if expense == nil {
		return nil, domain.ErrNotFound
	}
	return expense, nil
}

func (s *Service) ListByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (map[snowflake.ID]*domain.Expense, error) {
	items, err := s.repo.FindByIDs(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[snowflake.ID]*domain.Expense, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}
